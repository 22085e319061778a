// Package feed distributes the live detection feed: a latest-frame bus that
// drops stale frames for slow viewers, a scene renderer for the frames the
// hub draws itself, and the MJPEG HTTP handlers.
package feed

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("feed: subscriber id already exists")
	// ErrBusClosed is returned when subscribing to a closed bus.
	ErrBusClosed = errors.New("feed: bus is closed")
)

// Frame is one JPEG image of the feed.
type Frame struct {
	Data      []byte
	Seq       uint64
	Timestamp time.Time
	// Source is "camera" for posted frames and "render" for drawn ones.
	Source string
}

// Stats counts published, delivered and replaced frames.
type Stats struct {
	Published   uint64 `json:"published"`
	Sent        uint64 `json:"sent"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Bus holds the latest frame and fans it out to subscribers. A subscriber
// whose channel is full has its pending frame replaced by the new one, so
// viewers always see the most recent image and never a backlog.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Frame
	latest Frame
	closed bool

	seq       atomic.Uint64
	published atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Frame)}
}

// Subscribe registers a channel. Use a buffer of 1 for latest-only delivery.
// The current frame, if any, is delivered right away.
func (b *Bus) Subscribe(id string, ch chan Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; ok {
		return ErrSubscriberExists
	}
	b.subs[id] = ch
	if b.latest.Seq > 0 {
		b.offer(ch, b.latest)
	}
	return nil
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish stores data as the latest frame and offers it to every
// subscriber without blocking. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(data []byte, source string) Frame {
	f := Frame{Data: data, Seq: b.seq.Add(1), Timestamp: time.Now(), Source: source}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return f
	}
	b.published.Add(1)
	b.latest = f
	for _, ch := range b.subs {
		b.offer(ch, f)
	}
	return f
}

func (b *Bus) offer(ch chan Frame, f Frame) {
	select {
	case ch <- f:
		b.sent.Add(1)
		return
	default:
	}
	// full: replace the pending frame
	select {
	case <-ch:
		b.dropped.Add(1)
	default:
	}
	select {
	case ch <- f:
		b.sent.Add(1)
	default:
		b.dropped.Add(1)
	}
}

// Latest returns the most recent frame.
func (b *Bus) Latest() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.latest.Seq > 0
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Sent:        b.sent.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: n,
	}
}

// Close drops all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
