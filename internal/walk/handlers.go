package walk

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Session
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		// The session owner is whoever the token says, never the body.
		req.UserID = authedUser(c)
		if req.UserID == "" || req.WalletAddress == "" {
			return fiber.NewError(fiber.StatusBadRequest, "authenticated user and wallet_address required")
		}
		session, err := svc.Start(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/:id/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var req Fix
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.Ingest(c.Context(), c.Params("id"), authedUser(c), req)
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionNotActive):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, ErrNotOwner):
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			case errors.Is(err, ErrStaleFix):
				return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.JSON(res)
	})

	r.Post("/:id/provider-error", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Reason string `json:"reason"`
		}
		_ = c.BodyParser(&req)
		if err := svc.ReportProviderError(c.Params("id"), authedUser(c), req.Reason); err != nil {
			if errors.Is(err, ErrNotOwner) {
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			}
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return c.JSON(fiber.Map{"status": StatusDegraded})
	})

	r.Post("/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		result, err := svc.Stop(c.Context(), c.Params("id"), authedUser(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionNotActive):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, ErrNotOwner):
				return fiber.NewError(fiber.StatusForbidden, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}
		return c.JSON(result)
	})

	r.Get("/:id/summary", func(c *fiber.Ctx) error {
		summary, err := svc.Summary(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(summary)
	})

	r.Get("/:id/route", func(c *fiber.Ctx) error {
		route, err := svc.Route(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(route)
	})
}

func authedUser(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}
