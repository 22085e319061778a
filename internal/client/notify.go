package client

import (
	"sync"
	"time"
)

// DefaultNotificationTimeout is how long a notification stays visible.
const DefaultNotificationTimeout = 3 * time.Second

// Notifier holds at most one message. Showing a new one replaces the current
// message and restarts its timer; nothing is queued.
type Notifier struct {
	mu      sync.Mutex
	d       time.Duration
	msg     string
	gen     uint64
	timer   *time.Timer
	watch   []func(string)
	stopped bool
}

// NewNotifier returns a slot whose messages expire after d.
func NewNotifier(d time.Duration) *Notifier {
	if d <= 0 {
		d = DefaultNotificationTimeout
	}
	return &Notifier{d: d}
}

// Watch registers fn to be called with every new message, and with "" when
// the slot clears.
func (n *Notifier) Watch(fn func(msg string)) {
	n.mu.Lock()
	n.watch = append(n.watch, fn)
	n.mu.Unlock()
}

// Show displays msg, pre-empting whatever was shown.
func (n *Notifier) Show(msg string) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.gen++
	gen := n.gen
	n.msg = msg
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.d, func() { n.expire(gen) })
	watch := n.watchers()
	n.mu.Unlock()
	for _, fn := range watch {
		fn(msg)
	}
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.gen || n.msg == "" {
		n.mu.Unlock()
		return
	}
	n.msg = ""
	watch := n.watchers()
	n.mu.Unlock()
	for _, fn := range watch {
		fn("")
	}
}

func (n *Notifier) watchers() []func(string) {
	return append(([]func(string))(nil), n.watch...)
}

// Current returns the visible message, if any.
func (n *Notifier) Current() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.msg, n.msg != ""
}

// Stop cancels the pending timer and ignores later messages.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	if n.timer != nil {
		n.timer.Stop()
	}
}
