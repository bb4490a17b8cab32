package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/dispatch-client/internal/logging"
	"github.com/example/dispatch-client/internal/observability"
)

const writeWait = 10 * time.Second

// Channel keeps one authenticated websocket open to the backend, decodes
// inbound frames onto a Bus and lets callers send best-effort messages.
// A dropped connection is re-dialled with exponential backoff until Run's
// context ends.
type Channel struct {
	url    string
	token  func() string
	bus    *Bus
	dialer *websocket.Dialer
	logger *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration

	mu        sync.Mutex // guards conn and serializes writes
	conn      *websocket.Conn
	connected atomic.Bool

	listenMu  sync.Mutex
	listeners []func(bool)
}

// NewChannel dials rawURL with the token returned by token appended as the
// "token" query parameter on every attempt, so a re-login is picked up on
// the next reconnect.
func NewChannel(rawURL string, token func() string, bus *Bus, logger *slog.Logger) *Channel {
	return &Channel{
		url:        rawURL,
		token:      token,
		bus:        bus,
		dialer:     websocket.DefaultDialer,
		logger:     logging.OrDiscard(logger),
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

func (c *Channel) Connected() bool { return c.connected.Load() }

// OnStateChange registers fn to be called with the new state whenever the
// connection opens or closes.
func (c *Channel) OnStateChange(fn func(connected bool)) {
	c.listenMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenMu.Unlock()
}

func (c *Channel) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	if v {
		observability.ChannelConnected.Set(1)
	} else {
		observability.ChannelConnected.Set(0)
	}
	c.listenMu.Lock()
	ls := slices.Clone(c.listeners)
	c.listenMu.Unlock()
	for _, fn := range ls {
		fn(v)
	}
}

func (c *Channel) dialURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	if c.token != nil {
		q.Set("token", c.token())
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects and reads until ctx is cancelled. It always returns a non-nil
// error: ctx.Err() on shutdown, or a configuration error that retrying
// cannot fix.
func (c *Channel) Run(ctx context.Context) error {
	backoff := c.MinBackoff
	first := true
	for {
		target, err := c.dialURL()
		if err != nil {
			return err
		}
		if !first {
			observability.ChannelReconnect.Inc()
		}
		first = false

		conn, _, err := c.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("realtime dial failed", "error", err, "retry_in", backoff.String())
		} else {
			backoff = c.MinBackoff
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("realtime connection lost", "retry_in", backoff.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.MaxBackoff {
			backoff = c.MaxBackoff
		}
	}
}

func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setConnected(true)
	c.logger.Info("realtime connected")

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.mu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				c.logger.Warn("realtime read failed", "error", err)
			}
			break
		}
		ev, err := Decode(data)
		if err != nil {
			observability.EventsMalformed.Inc()
			c.logger.Warn("dropping realtime frame", "error", err)
			continue
		}
		observability.EventsReceived.WithLabelValues(string(ev.Type())).Inc()
		c.bus.Publish(ev)
	}
	close(done)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	c.setConnected(false)
}

// Send writes ev if the socket is open. A message sent while disconnected is
// dropped and counted; it is never queued for later delivery and the caller
// gets no confirmation either way.
func (c *Channel) Send(ev Event) {
	data, err := Encode(ev)
	if err != nil {
		c.logger.Error("realtime encode failed", "type", ev.Type(), "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		observability.OutboundDropped.Inc()
		c.logger.Debug("realtime send dropped, not connected", "type", ev.Type())
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		observability.OutboundDropped.Inc()
		c.logger.Warn("realtime send failed", "type", ev.Type(), "error", err)
	}
}
