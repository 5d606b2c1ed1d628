package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/netsight-io/netsight/pkg/models"
	"github.com/netsight-io/netsight/pkg/stream"
)

const bridgeWriteTimeout = 5 * time.Second

// streamHandler handles GET /api/stream?query=... by accepting the browser
// socket and running a reconnecting subscriber against the backend stream for
// it. Data, error, and complete frames are forwarded as-is; backend
// reconnects stay invisible to the browser.
func (s *Server) streamHandler(c *echo.Context) error {
	query := c.QueryParam("query")
	if strings.TrimSpace(query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	browser, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedWSOrigins,
	})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	logger := s.logger.With("bridge_id", uuid.NewString())
	logger.Info("Stream bridge opened", "query", query)

	b := &bridge{browser: browser, ctx: ctx, logger: logger}
	sub := stream.NewSubscriber(stream.Config{
		URL:                  s.streamURL,
		BaseDelay:            s.cfg.Stream.BaseDelay,
		MaxReconnectAttempts: s.cfg.Stream.MaxReconnectAttempts,
		MaxDelay:             s.cfg.Stream.MaxDelay,
		Metrics:              s.streamMetrics,
	}, b.handlers())

	sub.Connect(ctx, query)
	defer sub.Disconnect()

	// Block on the browser socket. Outbound frames are written by the
	// subscriber's dispatch goroutine; this loop only notices the browser
	// going away or the post-completion close.
	for {
		if _, _, err := browser.Read(ctx); err != nil {
			break
		}
	}

	_ = browser.CloseNow()
	logger.Info("Stream bridge closed")
	return nil
}

// bridge forwards subscriber events onto one browser socket. Handlers run on
// the subscriber's dispatch goroutine, so writes are already serialized.
type bridge struct {
	browser *websocket.Conn
	ctx     context.Context
	logger  *slog.Logger
}

func (b *bridge) handlers() stream.Handlers {
	return stream.Handlers{
		OnData: func(data json.RawMessage) {
			b.send(models.StreamMessage{Type: models.MessageTypeData, Data: data})
		},
		OnError: func(msg string) {
			b.send(models.StreamMessage{Type: models.MessageTypeError, Error: msg})
		},
		OnComplete: func() {
			b.send(models.StreamMessage{Type: models.MessageTypeComplete})
			// Completion ends the stream for good: close the browser socket
			// so its read loop unblocks.
			_ = b.browser.Close(websocket.StatusNormalClosure, "stream complete")
		},
		OnConnection: func(up bool) {
			b.logger.Debug("Backend stream connection changed", "connected", up)
		},
	}
}

func (b *bridge) send(msg models.StreamMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("Failed to marshal stream frame", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, bridgeWriteTimeout)
	defer cancel()
	if err := b.browser.Write(ctx, websocket.MessageText, data); err != nil {
		b.logger.Debug("Browser write failed", "error", err)
	}
}
