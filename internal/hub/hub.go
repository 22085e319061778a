// Package hub serves the checkout event channel over websockets. Every
// session gets a reader and a writer goroutine; broadcasts are encoded once
// and queued to each session without blocking, and a session that cannot
// keep up is disconnected.
package hub

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// Dispatcher runs commands received from sessions.
type Dispatcher interface {
	// Greeting returns the events a session receives right after connecting.
	Greeting() []event.Message
	// Handle runs one command. The returned messages go to the sender only.
	Handle(ctx context.Context, sessionID string, env event.Envelope) []event.Message
	// Forget is called once a session is gone.
	Forget(sessionID string)
}

// Settings tune session buffers and keepalive.
type Settings struct {
	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DefaultSettings match the hub's configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		SendBuffer:   64,
		PingInterval: 25 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Stats counts sessions and traffic.
type Stats struct {
	Sessions   int    `json:"sessions"`
	Accepted   uint64 `json:"accepted"`
	Broadcasts uint64 `json:"broadcasts"`
	Commands   uint64 `json:"commands"`
	Dropped    uint64 `json:"dropped_sessions"`
}

type session struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub owns the live sessions.
type Hub struct {
	settings Settings
	dispatch Dispatcher
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool

	accepted   atomic.Uint64
	broadcasts atomic.Uint64
	commands   atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a hub dispatching commands to d.
func New(d Dispatcher, s Settings) *Hub {
	def := DefaultSettings()
	if s.SendBuffer <= 0 {
		s.SendBuffer = def.SendBuffer
	}
	if s.PingInterval <= 0 {
		s.PingInterval = def.PingInterval
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = def.WriteTimeout
	}
	h := &Hub{
		settings: s,
		dispatch: d,
		sessions: make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.settings.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.settings.AllowedOrigins, "*") || slices.Contains(h.settings.AllowedOrigins, origin)
}

// Broadcast sends m to every session. It never blocks.
func (h *Hub) Broadcast(m event.Message) {
	frame, err := m.Frame()
	if err != nil {
		obs.Logger.Error("broadcast_encode_failed", "event", m.Name, "error", err.Error())
		return
	}
	h.broadcasts.Add(1)
	var slow []*session
	h.mu.RLock()
	for _, s := range h.sessions {
		select {
		case s.send <- frame:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		obs.Logger.Warn("session_dropped_slow", "session_id", s.id, "event", m.Name)
		h.dropped.Add(1)
		h.remove(s)
	}
}

// sendTo queues m for one session.
func (h *Hub) sendTo(s *session, m event.Message) bool {
	frame, err := m.Frame()
	if err != nil {
		obs.Logger.Error("reply_encode_failed", "session_id", s.id, "event", m.Name, "error", err.Error())
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		h.dropped.Add(1)
		h.remove(s)
		return false
	}
}

func (h *Hub) add(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.id] = s
	return true
}

// remove unregisters s and stops its goroutines. It may run under the
// dispatcher's lock (via Broadcast), so Forget is left to ServeHTTP.
func (h *Hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	s.cancel()
}

// ServeHTTP upgrades the request and runs the session until either side
// closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Logger.Warn("websocket_upgrade_failed", "error", err.Error(), "remote_addr", r.RemoteAddr)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     ulid.Make().String(),
		ws:     ws,
		send:   make(chan []byte, h.settings.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	if !h.add(s) {
		cancel()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.settings.WriteTimeout))
		_ = ws.Close()
		return
	}
	h.accepted.Add(1)
	obs.Logger.Info("session_connected", "session_id", s.id, "remote_addr", r.RemoteAddr)

	for _, m := range h.dispatch.Greeting() {
		h.sendTo(s, m)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writer(s)
	}()
	h.reader(s)
	h.remove(s)
	<-done
	_ = ws.Close()
	h.dispatch.Forget(s.id)
	obs.Logger.Info("session_disconnected", "session_id", s.id)
}

func (h *Hub) readTimeout() time.Duration { return 2 * h.settings.PingInterval }

func (h *Hub) reader(s *session) {
	defer s.cancel()
	_ = s.ws.SetReadDeadline(time.Now().Add(h.readTimeout()))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(h.readTimeout()))
	})
	for {
		mt, frame, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				obs.Logger.Info("session_read_error", "session_id", s.id, "error", err.Error())
			}
			return
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(h.readTimeout()))
		if mt != websocket.TextMessage {
			continue
		}
		env, err := event.Decode(frame)
		if err != nil {
			h.sendTo(s, event.New(event.CommandError, event.CommandErrorPayload{Message: err.Error()}))
			continue
		}
		h.commands.Add(1)
		obs.Logger.Debug("command_received", "session_id", s.id, "event", env.Event)
		for _, m := range h.dispatch.Handle(s.ctx, s.id, env) {
			if !h.sendTo(s, m) {
				return
			}
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (h *Hub) writer(s *session) {
	ping := time.NewTicker(h.settings.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.settings.WriteTimeout))
			// unblock the reader
			_ = s.ws.SetReadDeadline(time.Now())
			return
		case frame := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				obs.Logger.Info("session_write_error", "session_id", s.id, "error", err.Error())
				s.cancel()
				_ = s.ws.SetReadDeadline(time.Now())
				return
			}
		case <-ping.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.settings.WriteTimeout)); err != nil {
				s.cancel()
				_ = s.ws.SetReadDeadline(time.Now())
				return
			}
		}
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Sessions:   h.Sessions(),
		Accepted:   h.accepted.Load(),
		Broadcasts: h.broadcasts.Load(),
		Commands:   h.commands.Load(),
		Dropped:    h.dropped.Load(),
	}
}

// Close disconnects every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()
	for _, s := range all {
		h.remove(s)
	}
}
