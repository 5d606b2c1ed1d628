package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/srql"
	"github.com/netsight-io/netsight/pkg/version"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// healthHandler handles GET /healthz. It reports the gateway process only;
// backend reachability surfaces through the API routes themselves.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
	})
}

func (s *Server) versionHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &VersionResponse{
		Name:      version.AppName,
		GitCommit: version.GitCommit,
	})
}

// queryHandler handles POST /api/query: the cached SRQL proxy. Identical
// queries from callers holding the same token share one cache entry and one
// in-flight backend request.
func (s *Server) queryHandler(c *echo.Context) error {
	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	canonical := fmt.Sprintf("%s|limit=%d|cursor=%s|dir=%s", req.Query, req.Limit, req.Cursor, req.Direction)
	key := srql.CacheKey(canonical, callerToken(c), srql.TimeWindow{})

	resp, err := s.queries.Get(c.Request().Context(), key, s.cfg.Cache.QueryTTL, func(ctx context.Context) (*models.QueryResponse, error) {
		return s.backend.Query(ctx, req)
	})
	if err != nil {
		return mapClientError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// summaryHandler handles GET /api/summary.
func (s *Server) summaryHandler(c *echo.Context) error {
	sum, err := s.analytics.Summary(c.Request().Context(), callerToken(c))
	if err != nil {
		return mapClientError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

// pollersHandler handles GET /api/pollers.
func (s *Server) pollersHandler(c *echo.Context) error {
	pollers, err := s.backend.Pollers(c.Request().Context())
	if err != nil {
		return mapClientError(err)
	}
	return c.JSON(http.StatusOK, pollers)
}

// criticalLogsHandler handles GET /api/logs/critical?limit=N.
func (s *Server) criticalLogsHandler(c *echo.Context) error {
	limit := defaultLogLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxLogLimit)
	}

	logs, err := s.backend.CriticalLogs(c.Request().Context(), limit)
	if err != nil {
		return mapClientError(err)
	}
	return c.JSON(http.StatusOK, logs)
}

// rperfHandler handles GET /api/pollers/:id/rperf?start=&end=.
func (s *Server) rperfHandler(c *echo.Context) error {
	w, err := windowFromQuery(c)
	if err != nil {
		return err
	}

	series, err := s.rperf.Timeseries(c.Request().Context(), c.Param("id"), w)
	if err != nil {
		return mapClientError(err)
	}
	return c.JSON(http.StatusOK, series)
}

// sysmonHandler handles GET /api/pollers/:id/sysmon/:kind?start=&end= for
// kind cpu, memory, or disk.
func (s *Server) sysmonHandler(c *echo.Context) error {
	w, err := windowFromQuery(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	pollerID := c.Param("id")

	switch c.Param("kind") {
	case "cpu":
		series, err := s.sysmon.CPU(ctx, pollerID, w)
		if err != nil {
			return mapClientError(err)
		}
		return c.JSON(http.StatusOK, series)
	case "memory":
		series, err := s.sysmon.Memory(ctx, pollerID, w)
		if err != nil {
			return mapClientError(err)
		}
		return c.JSON(http.StatusOK, series)
	case "disk":
		series, err := s.sysmon.Disk(ctx, pollerID, w)
		if err != nil {
			return mapClientError(err)
		}
		return c.JSON(http.StatusOK, series)
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown sysmon metric kind")
	}
}

// windowFromQuery parses start/end query params. Timestamps may be RFC3339 or
// unix seconds/milliseconds. A fully absent window stays zero so the backend
// applies its default range; a half-open one is completed against now.
func windowFromQuery(c *echo.Context) (srql.TimeWindow, error) {
	var w srql.TimeWindow

	if v := c.QueryParam("start"); v != "" {
		t, ok := srql.NormalizeTimestamp(v)
		if !ok {
			return w, echo.NewHTTPError(http.StatusBadRequest, "invalid start timestamp")
		}
		w.Start = t
	}
	if v := c.QueryParam("end"); v != "" {
		t, ok := srql.NormalizeTimestamp(v)
		if !ok {
			return w, echo.NewHTTPError(http.StatusBadRequest, "invalid end timestamp")
		}
		w.End = t
	}

	if !w.Start.IsZero() && w.End.IsZero() {
		w.End = time.Now().UTC()
	}
	if w.Start.IsZero() && !w.End.IsZero() {
		w.Start = w.End.Add(-24 * time.Hour)
	}
	return w, nil
}
