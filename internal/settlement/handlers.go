package settlement

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes exposes the confirmation protocol. dispense is the
// post-success hook for purchase settlements (the device trigger).
func RegisterRoutes(r fiber.Router, engine *Engine, dispense func(), authMiddleware fiber.Handler) {
	r.Post("/:id/confirm", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Accept bool `json:"accept"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		current, err := engine.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}

		var hook func()
		if current.Kind == KindPurchase {
			hook = dispense
		}

		settled, err := engine.Confirm(c.Context(), current.ID, req.Accept, hook)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotConfirmable):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, ErrInsufficientTokenBalance),
				errors.Is(err, ErrInsufficientGasBalance):
				return fiber.NewError(fiber.StatusPaymentRequired, err.Error())
			case errors.Is(err, ErrTransferFailed):
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.JSON(settled)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		s, err := engine.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(s)
	})
}
