package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

type entry struct {
	tx model.Transaction
	at time.Time
}

// Memory is an in-process ledger. History is lost on restart.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

func (l *Memory) Connected() bool { return true }

func (l *Memory) Save(_ context.Context, cart model.Cart, total float64) (model.Transaction, error) {
	at := l.now()
	tx := newTransaction(uuid.NewString(), ItemsFromCart(cart), total, at)
	l.mu.Lock()
	l.m[tx.ID] = entry{tx: tx, at: at}
	l.mu.Unlock()
	return tx, nil
}

// sorted returns entries newest first. Callers hold mu.
func (l *Memory) sorted(keep func(entry) bool) []entry {
	out := make([]entry, 0, len(l.m))
	for _, e := range l.m {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.After(out[j].at) })
	return out
}

func (l *Memory) List(_ context.Context, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	es := l.sorted(nil)
	if len(es) > limit {
		es = es[:limit]
	}
	out := make([]model.Transaction, len(es))
	for i, e := range es {
		out[i] = e.tx
	}
	return out, nil
}

func (l *Memory) ListRange(_ context.Context, from, to time.Time) ([]model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	es := l.sorted(func(e entry) bool {
		return !e.at.Before(from) && e.at.Before(to)
	})
	out := make([]model.Transaction, len(es))
	for i, e := range es {
		out[i] = e.tx
	}
	return out, nil
}

func (l *Memory) Get(_ context.Context, id string) (model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.m[id]
	if !ok {
		return model.Transaction{}, ErrNotFound
	}
	return e.tx, nil
}

func (l *Memory) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.m[id]; !ok {
		return ErrNotFound
	}
	delete(l.m, id)
	return nil
}

func (l *Memory) Close() error { return nil }
