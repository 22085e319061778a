// Package client is the operator side of the event channel: one websocket
// to the hub, a mirror of the server-authoritative state kept current by
// server events, fire-and-forget command emitters and a single-slot
// notification.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// ErrNotConnected is returned by emitters once the connection is gone.
var ErrNotConnected = errors.New("client: not connected")

type options struct {
	attempts     uint
	delay        time.Duration
	writeTimeout time.Duration
	header       http.Header
	dialer       *websocket.Dialer
	notifyFor    time.Duration
}

// Option customizes Dial.
type Option func(*options)

// WithRetry sets how often and how far apart the initial dial is tried.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(o *options) {
		o.attempts = attempts
		o.delay = delay
	}
}

// WithHeader adds request headers to the websocket handshake.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithNotificationTimeout overrides how long a notification stays visible.
func WithNotificationTimeout(d time.Duration) Option {
	return func(o *options) { o.notifyFor = d }
}

// Client holds one event-channel connection and the state it mirrors.
type Client struct {
	url    string
	opts   options
	ws     *websocket.Conn
	wmu    sync.Mutex
	conn   atomic.Bool
	done   chan struct{}
	closed atomic.Bool

	mirror *Mirror
	notify *Notifier
}

// Dial connects to the hub's event channel. Only the initial dial is
// retried; once established, a dropped connection is final.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{
		attempts:     3,
		delay:        500 * time.Millisecond,
		writeTimeout: 5 * time.Second,
		dialer:       websocket.DefaultDialer,
		notifyFor:    DefaultNotificationTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var ws *websocket.Conn
	err := retry.Do(func() error {
		c, resp, err := o.dialer.DialContext(ctx, url, o.header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return err
		}
		ws = c
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			obs.Logger.Warn("client_dial_retry", "url", url, "attempt", attempt+1, "error", err.Error())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	n := NewNotifier(o.notifyFor)
	c := &Client{
		url:    url,
		opts:   o,
		ws:     ws,
		done:   make(chan struct{}),
		notify: n,
		mirror: NewMirror(n),
	}
	c.conn.Store(true)
	c.mirror.setConnected(true)
	obs.Logger.Info("client_connected", "url", url)
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.conn.Store(false)
			c.mirror.setConnected(false)
			if !c.closed.Load() {
				obs.Logger.Warn("client_disconnected", "url", c.url, "error", err.Error())
			}
			return
		}
		env, err := event.Decode(frame)
		if err != nil {
			obs.Logger.Warn("client_bad_frame", "error", err.Error())
			continue
		}
		if err := c.mirror.Apply(env); err != nil {
			obs.Logger.Warn("client_event_rejected", "event", env.Event, "error", err.Error())
		}
	}
}

// Connected reports whether the channel is still up.
func (c *Client) Connected() bool { return c.conn.Load() }

// Done is closed when the read loop ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Mirror returns the state mirror fed by this connection.
func (c *Client) Mirror() *Mirror { return c.mirror }

// Snapshot is shorthand for Mirror().Snapshot().
func (c *Client) Snapshot() State { return c.mirror.Snapshot() }

// Notifications returns the notification slot.
func (c *Client) Notifications() *Notifier { return c.notify }

// Emit sends a named event. It does not wait for any reply.
func (c *Client) Emit(name string, data any) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	frame, err := event.Encode(name, data)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	return nil
}

// Close shuts the connection down and waits for the read loop to end.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.writeTimeout))
	c.wmu.Unlock()
	err := c.ws.Close()
	<-c.done
	c.notify.Stop()
	return err
}
