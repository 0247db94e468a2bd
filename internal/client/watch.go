package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 5 * time.Second

// Event is a post change delivered by the server's event stream.
type Event struct {
	Type       string    `json:"type"`
	Post       Post      `json:"post"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Watcher follows the server's post event stream.
type Watcher struct {
	url            string
	handle         func(Event)
	logger         *slog.Logger
	reconnectDelay time.Duration
}

// NewWatcher creates a watcher that calls handle for every event received
// from the server behind c.
func (c *Client) NewWatcher(handle func(Event), logger *slog.Logger) (*Watcher, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/posts/events"

	return &Watcher{
		url:            u.String(),
		handle:         handle,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}, nil
}

// Start connects to the event stream and dispatches events until the context
// is cancelled. It automatically reconnects on transient errors.
func (w *Watcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := w.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Error("event stream error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(w.reconnectDelay):
				}
			}
		}
	}
}

func (w *Watcher) subscribe(ctx context.Context) error {
	w.logger.Debug("connecting to event stream", "url", w.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not watch ctx; closing the connection unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	w.logger.Info("connected to event stream")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			w.logger.Error("failed to parse event", "error", err)
			continue
		}
		w.handle(ev)
	}
}
