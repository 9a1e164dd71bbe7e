package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/service"
	"github.com/mansoorceksport/sitekit/internal/wizard"
	"github.com/rs/zerolog/log"
)

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": msg})
}

// parseBody decodes the JSON body into dst and runs its validate tags
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return service.ValidateInput(dst)
}

// writeError maps service errors onto HTTP responses
func writeError(c *fiber.Ctx, err error) error {
	var (
		verr    *domain.ValidationError
		gateway *domain.GatewayError
		ferr    *fiber.Error
	)
	if locked, isLocked := wizard.AsStepLocked(err); isLocked {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "complete the previous steps first",
			"step":    locked.Step,
			"missing": locked.Missing,
		})
	}

	switch {
	case errors.As(err, &ferr):
		return fail(c, ferr.Code, ferr.Message)
	case errors.As(err, &verr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   "validation failed",
			"fields":  verr.Fields,
		})
	case errors.As(err, &gateway):
		log.Warn().Err(err).Str("component", "http").Str("path", c.Path()).Msg("gateway error")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success":   false,
			"error":     gateway.UserMessage(),
			"provider":  gateway.Provider,
			"retryable": true,
		})
	case errors.Is(err, domain.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		return fail(c, fiber.StatusForbidden, "access forbidden")
	case errors.Is(err, domain.ErrNoGatewayConfigured):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success":   false,
			"error":     domain.ErrNoGatewayConfigured.Error(),
			"available": false,
		})
	case errors.Is(err, domain.ErrTotalUnavailable):
		return fail(c, fiber.StatusConflict, "this order cannot be completed right now, please contact us")
	case errors.Is(err, domain.ErrAttemptFinished):
		return fail(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrProviderNotAllowed), errors.Is(err, domain.ErrInvalidQuantity):
		return fail(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success":   false,
			"error":     domain.ErrUnavailable.Error(),
			"retryable": true,
		})
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, domain.ErrInvalidSignature):
		return fail(c, fiber.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrLoginDisabled):
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}

	log.Error().Err(err).Str("component", "http").Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	return fail(c, fiber.StatusInternalServerError, "internal server error")
}

// ErrorHandler is the Fiber fallback for errors returned by handlers and middleware
func ErrorHandler(c *fiber.Ctx, err error) error {
	return writeError(c, err)
}
