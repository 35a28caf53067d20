package store

import (
	"context"
	"errors"
	"math/big"

	"github.com/RyuseiKamei/MeowChain/internal/chain"

	"github.com/gofiber/fiber/v2"
)

// TokenBalancer is the slice of the chain client the profile needs.
type TokenBalancer interface {
	TokenBalance(ctx context.Context, address string) (*big.Int, error)
}

func RegisterRoutes(r fiber.Router, balances *Balances, live TokenBalancer, decimals int, authMiddleware fiber.Handler) {
	r.Get("/balance", authMiddleware, func(c *fiber.Ctx) error {
		address := c.Query("address")
		if address == "" {
			return fiber.NewError(fiber.StatusBadRequest, "address required")
		}

		cached, err := balances.Balance(c.Context(), address)
		if err != nil && !errors.Is(err, ErrNotCached) {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		resp := fiber.Map{"address": address, "cached_balance": cached}
		if live != nil {
			if base, err := live.TokenBalance(c.Context(), address); err == nil {
				formatted := chain.FormatUnits(base, decimals)
				resp["balance"] = formatted
				_ = balances.SaveBalance(c.Context(), address, base)
			}
		}
		return c.JSON(resp)
	})

	r.Post("/wallet", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			UserID  string `json:"user_id"`
			Address string `json:"address"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.Address == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user_id and address required")
		}
		if err := balances.SaveWallet(c.Context(), req.UserID, req.Address); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"user_id": req.UserID, "address": req.Address})
	})

	r.Get("/wallet/:userID", func(c *fiber.Ctx) error {
		address, err := balances.Wallet(c.Context(), c.Params("userID"))
		if err != nil {
			if errors.Is(err, ErrNotCached) {
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"address": address})
	})
}
