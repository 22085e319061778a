// Package ledger stores completed checkout transactions.
package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

var (
	// ErrNotFound is returned when a transaction id is unknown.
	ErrNotFound = errors.New("ledger: transaction not found")
	// ErrDisconnected is returned by a ledger that has no backing store.
	ErrDisconnected = errors.New("ledger: not connected")
)

// DefaultLimit is the history size returned when no limit is given.
const DefaultLimit = 20

// DateLayout is the day format accepted by date range queries.
const DateLayout = "2006-01-02"

// displayLayout is the formatted_date layout.
const displayLayout = "2006-01-02 15:04:05"

// Ledger persists transactions. Implementations must be safe for
// concurrent use.
type Ledger interface {
	Connected() bool
	Save(ctx context.Context, cart model.Cart, total float64) (model.Transaction, error)
	List(ctx context.Context, limit int) ([]model.Transaction, error)
	ListRange(ctx context.Context, from, to time.Time) ([]model.Transaction, error)
	Get(ctx context.Context, id string) (model.Transaction, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ItemsFromCart freezes cart lines into transaction items sorted by name.
func ItemsFromCart(cart model.Cart) []model.TransactionItem {
	items := make([]model.TransactionItem, 0, len(cart))
	for name, it := range cart {
		items = append(items, model.TransactionItem{
			Name:     name,
			Price:    it.Price,
			Quantity: it.Quantity,
			Subtotal: it.Price * float64(it.Quantity),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// ParseRange turns inclusive YYYY-MM-DD bounds into a half-open
// [from, to) interval in UTC.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := time.Parse(DateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to.AddDate(0, 0, 1), nil
}

func newTransaction(id string, items []model.TransactionItem, total float64, at time.Time) model.Transaction {
	at = at.UTC()
	return model.Transaction{
		ID:            id,
		Items:         items,
		Total:         total,
		Timestamp:     at.Format(time.RFC3339Nano),
		FormattedDate: at.Format(displayLayout),
	}
}

// Disconnected is a Ledger with no backing store. Reads return nothing and
// writes fail with ErrDisconnected.
type Disconnected struct{}

func (Disconnected) Connected() bool { return false }
func (Disconnected) Save(context.Context, model.Cart, float64) (model.Transaction, error) {
	return model.Transaction{}, ErrDisconnected
}
func (Disconnected) List(context.Context, int) ([]model.Transaction, error) { return nil, nil }
func (Disconnected) ListRange(context.Context, time.Time, time.Time) ([]model.Transaction, error) {
	return nil, nil
}
func (Disconnected) Get(context.Context, string) (model.Transaction, error) {
	return model.Transaction{}, ErrDisconnected
}
func (Disconnected) Delete(context.Context, string) error { return ErrDisconnected }
func (Disconnected) Close() error                         { return nil }
