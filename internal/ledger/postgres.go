package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS checkout_transactions (
	id         TEXT PRIMARY KEY,
	items      TEXT NOT NULL,
	total      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

const indexCreatedAt = `
CREATE INDEX IF NOT EXISTS checkout_transactions_created_at_idx
	ON checkout_transactions (created_at DESC)`

// Postgres is a ledger backed by a PostgreSQL table.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects with the lib/pq driver, verifies the connection
// and creates the schema when missing.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	l := &Postgres{db: db, now: time.Now}
	for _, stmt := range []string{schemaTransactions, indexCreatedAt} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create ledger schema: %w", err)
		}
	}
	return l, nil
}

func (l *Postgres) Connected() bool { return l.db != nil }

func (l *Postgres) Save(ctx context.Context, cart model.Cart, total float64) (model.Transaction, error) {
	items := ItemsFromCart(cart)
	raw, err := json.Marshal(items)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("encode items: %w", err)
	}
	at := l.now().UTC()
	id := uuid.NewString()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO checkout_transactions (id, items, total, created_at) VALUES ($1, $2, $3, $4)`,
		id, string(raw), total, at)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return newTransaction(id, items, total, at), nil
}

func (l *Postgres) List(ctx context.Context, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, items, total, created_at FROM checkout_transactions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (l *Postgres) ListRange(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, items, total, created_at FROM checkout_transactions
		 WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at DESC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list transactions by range: %w", err)
	}
	return scanTransactions(rows)
}

func (l *Postgres) Get(ctx context.Context, id string) (model.Transaction, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, items, total, created_at FROM checkout_transactions WHERE id = $1`, id)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return model.Transaction{}, err
	}
	if len(txs) == 0 {
		return model.Transaction{}, ErrNotFound
	}
	return txs[0], nil
}

func (l *Postgres) Delete(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM checkout_transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *Postgres) Close() error { return l.db.Close() }

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var (
			id    string
			raw   string
			total float64
			at    time.Time
		)
		if err := rows.Scan(&id, &raw, &total, &at); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var items []model.TransactionItem
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", id, err)
		}
		out = append(out, newTransaction(id, items, total, at))
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
