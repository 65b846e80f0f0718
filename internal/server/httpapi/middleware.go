package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/gofiber/fiber/v2"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the session claims attached by the auth gate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// sessionToken reads the session cookie, falling back to a bearer token.
func sessionToken(c *fiber.Ctx) string {
	if token := c.Cookies(common.SessionCookieName); token != "" {
		return token
	}
	header := c.Get(common.AuthorizationHeaderName)
	if len(header) > len(common.BearerPrefix) && strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return strings.TrimSpace(header[len(common.BearerPrefix):])
	}
	return ""
}

// authMiddleware rejects requests without a valid session token with 401 and
// attaches the verified claims to the request otherwise.
func authMiddleware(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := sessionToken(c)
		if token == "" {
			return fail(c, fiber.StatusUnauthorized, msgAuthRequired)
		}

		claims, err := auth.ParseToken(token, secret)
		if err != nil {
			return fail(c, fiber.StatusUnauthorized, msgInvalidSession)
		}

		c.Locals(claimsKey, claims)
		c.SetUserContext(context.WithValue(c.UserContext(), claimsKey, claims))
		return c.Next()
	}
}

// accessLog logs one line per request.
func accessLog(logger logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// render now so the logged status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		args := []any{
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
		}
		if err != nil {
			logger.Error(c.UserContext(), "HTTP Request Error", append(args, "error", err)...)
			return nil
		}
		logger.Info(c.UserContext(), "HTTP Request", args...)
		return nil
	}
}

// observeHTTP records request latency by route pattern.
func observeHTTP(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		m.ObserveHTTP(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start))
		return err
	}
}
