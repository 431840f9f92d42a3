package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/servers"
)

// statusForKind maps an error kind to the HTTP status returned to the UI
func statusForKind(kind auth.ErrorKind) int {
	switch kind {
	case auth.KindValidation:
		return fiber.StatusBadRequest
	case auth.KindAuthRejected:
		return fiber.StatusUnauthorized
	case auth.KindTimeout:
		return fiber.StatusGatewayTimeout
	case auth.KindConnectionRefused, auth.KindCORS, auth.KindNetwork:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError sends err as {"error", "kind"} with the matching status
func writeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, servers.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Server not found",
		})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var authErr *auth.Error
		if !errors.As(err, &authErr) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Request cancelled while waiting for another change to finish",
			})
		}
	}

	classified := auth.ClassifyError(err)
	status := statusForKind(classified.Kind)
	if status == fiber.StatusInternalServerError {
		log.Printf("[api] %s: %v", c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": classified.Message(),
		"kind":  classified.Kind,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"kind":  auth.KindValidation,
	})
}
