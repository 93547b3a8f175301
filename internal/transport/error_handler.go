package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

// ErrorHandler renders every handler error as {"error": ...}. Domain errors
// that reach it unmapped are classified here; other errors become a 500 with
// a generic message.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code, message := classify(err)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}

func classify(err error) (int, string) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, err.Error()
	default:
		return fiber.StatusInternalServerError, internalErrorMessage
	}
}
