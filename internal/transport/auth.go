package transport

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// BearerAuth accepts requests whose Authorization header carries one of tokens.
// An empty token list rejects every request.
func BearerAuth(tokens []string, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := make([][]byte, 0, len(tokens))
	for _, token := range tokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			allowed = append(allowed, []byte(trimmed))
		}
	}

	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		for _, candidate := range allowed {
			if subtle.ConstantTimeCompare(candidate, []byte(token)) == 1 {
				return c.Next()
			}
		}

		logger.Warn("rejected bearer token",
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
