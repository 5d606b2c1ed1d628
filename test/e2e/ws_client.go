package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/netsight-io/netsight/pkg/models"
)

// WSEvent is one frame received from the gateway's stream bridge.
type WSEvent struct {
	Type     string
	Raw      json.RawMessage
	Msg      models.StreamMessage
	Received time.Time
}

// WSClient connects to the gateway stream endpoint and collects frames.
type WSClient struct {
	conn    *websocket.Conn
	events  []WSEvent
	readErr error
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// WSConnect dials the stream endpoint (query already encoded into wsURL) and
// starts collecting frames in a background goroutine.
func WSConnect(ctx context.Context, wsURL string) (*WSClient, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)
	c := &WSClient{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}

	go c.readLoop()

	return c, nil
}

// WaitForEvent waits until a frame matching the predicate arrives, or timeout.
func (c *WSClient) WaitForEvent(predicate func(WSEvent) bool, timeout time.Duration) (*WSEvent, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for frame (collected %d)", len(c.Events()))
		case <-tick.C:
			c.mu.Lock()
			for i := range c.events {
				if predicate(c.events[i]) {
					evt := c.events[i]
					c.mu.Unlock()
					return &evt, nil
				}
			}
			c.mu.Unlock()
		}
	}
}

// WaitForType waits for a frame with the given type.
func (c *WSClient) WaitForType(frameType string, timeout time.Duration) (*WSEvent, error) {
	return c.WaitForEvent(func(e WSEvent) bool {
		return e.Type == frameType
	}, timeout)
}

// Events returns a snapshot of all collected frames.
func (c *WSClient) Events() []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]WSEvent, len(c.events))
	copy(result, c.events)
	return result
}

// EventsByType returns frames filtered by type.
func (c *WSClient) EventsByType(frameType string) []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []WSEvent
	for _, e := range c.events {
		if e.Type == frameType {
			result = append(result, e)
		}
	}
	return result
}

// WaitDone blocks until the read loop exits (the connection closed), or
// timeout.
func (c *WSClient) WaitDone(timeout time.Duration) error {
	select {
	case <-c.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for connection close")
	}
}

// CloseStatus reports the close code that ended the read loop, or -1 while
// the connection is still open.
func (c *WSClient) CloseStatus() websocket.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.CloseStatus(c.readErr)
}

// Close tears down the connection and waits for the read loop to exit.
func (c *WSClient) Close() error {
	c.cancel()
	_ = c.conn.CloseNow()
	<-c.doneCh
	return nil
}

// readLoop reads frames and appends them to the events slice.
func (c *WSClient) readLoop() {
	defer close(c.doneCh)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		var msg models.StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // Skip malformed frames.
		}

		c.mu.Lock()
		c.events = append(c.events, WSEvent{
			Type:     msg.Type,
			Raw:      json.RawMessage(data),
			Msg:      msg,
			Received: time.Now(),
		})
		c.mu.Unlock()
	}
}
