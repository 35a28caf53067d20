package shop

import (
	"errors"

	"github.com/RyuseiKamei/MeowChain/internal/settlement"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/items", func(c *fiber.Ctx) error {
		items, err := svc.Items(c.Context(), c.Query("wallet"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(items)
	})

	r.Post("/items/:id/purchase", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			WalletAddress string `json:"wallet_address"`
			Accept        bool   `json:"accept"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.WalletAddress == "" {
			return fiber.NewError(fiber.StatusBadRequest, "wallet_address required")
		}

		userID, _ := c.Locals("user_id").(string)
		settled, err := svc.Buy(c.Context(), c.Params("id"), userID, req.WalletAddress, req.Accept)
		if err != nil {
			switch {
			case errors.Is(err, ErrItemNotFound):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			case errors.Is(err, ErrWalletMismatch):
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			case errors.Is(err, ErrItemUnavailable), errors.Is(err, ErrNotEligible):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, settlement.ErrInsufficientTokenBalance),
				errors.Is(err, settlement.ErrInsufficientGasBalance):
				return fiber.NewError(fiber.StatusPaymentRequired, err.Error())
			case errors.Is(err, settlement.ErrTransferFailed):
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.JSON(settled)
	})
}
