package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// requestLogger tags every request with an id and logs it at Debug once
// handled.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			reqID := uuid.NewString()
			c.Response().Header().Set("X-Request-ID", reqID)

			start := time.Now()
			err := next(c)

			status := 0
			if resp, uerr := echo.UnwrapResponse(c.Response()); uerr == nil {
				status = resp.Status
			}
			s.logger.Debug("Request handled",
				"request_id", reqID,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds())
			return err
		}
	}
}

// apiKeyGuard rejects /api/* requests that do not present the configured
// key. Without a configured key the guard passes everything through;
// /healthz and /metrics are never guarded.
func (s *Server) apiKeyGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if s.apiKey == "" || !strings.HasPrefix(c.Request().URL.Path, "/api/") {
				return next(c)
			}
			if subtle.ConstantTimeCompare([]byte(callerToken(c)), []byte(s.apiKey)) == 1 {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
	}
}

// callerToken extracts the caller's credential.
// Priority: Authorization bearer token > X-API-Key > "".
func callerToken(c *echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return tok
		}
		return auth
	}
	return c.Request().Header.Get("X-API-Key")
}
