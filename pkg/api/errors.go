package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/netsight-io/netsight/pkg/client"
)

// mapClientError maps backend client errors to gateway HTTP responses.
// Backend 4xx statuses pass through with their message (the SRQL parser's
// diagnostics live there); backend 5xx becomes 502 so callers can tell
// gateway faults from backend faults.
func mapClientError(err error) *echo.HTTPError {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Status >= http.StatusInternalServerError:
			return echo.NewHTTPError(http.StatusBadGateway, "backend unavailable")
		case statusErr.Status == http.StatusTooManyRequests:
			return echo.NewHTTPError(http.StatusTooManyRequests, "backend is rate limiting")
		case statusErr.Message != "":
			return echo.NewHTTPError(statusErr.Status, statusErr.Message)
		default:
			return echo.NewHTTPError(statusErr.Status, http.StatusText(statusErr.Status))
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "backend request timed out")
	}
	if errors.Is(err, context.Canceled) {
		// Caller went away; the status is moot but 499-style handling keeps
		// logs quiet.
		return echo.NewHTTPError(http.StatusBadGateway, "request canceled")
	}

	slog.Error("Unexpected backend error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
