// Package postgres implements the repository registry on PostgreSQL through
// database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hanko-field/storefront/internal/repositories"
)

//go:embed schema.sql
var schema string

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txContextKey struct{}

// Store exposes the PostgreSQL repositories behind repositories.Registry.
type Store struct {
	db *sql.DB
}

var _ repositories.Registry = (*Store)(nil)

// Open connects using the pgx driver and verifies the connection.
func Open(ctx context.Context, url string, maxOpenConns int) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("postgres: database url is required")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return mapError("postgres.schema", err)
	}
	return nil
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the running transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError("postgres.begin", err)
	}
	txCtx, hooks := repositories.WithCommitHooks(context.WithValue(ctx, txContextKey{}, tx))
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("postgres.commit", err)
	}
	hooks.Run(ctx)
	return nil
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return ok
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return s.db.Close() }

// Ping implements repositories.Registry.
func (s *Store) Ping(ctx context.Context) error {
	return mapError("postgres.ping", s.db.PingContext(ctx))
}

// Carts implements repositories.Registry.
func (s *Store) Carts() repositories.CartRepository { return cartRepository{store: s} }

// CartItems implements repositories.Registry.
func (s *Store) CartItems() repositories.CartItemRepository { return itemRepository{store: s} }

// Orders implements repositories.Registry.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{store: s} }

// Products implements repositories.Registry.
func (s *Store) Products() repositories.ProductRepository { return productRepository{store: s} }

// Counters implements repositories.Registry.
func (s *Store) Counters() repositories.CounterRepository { return counterRepository{store: s} }

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// lockClause adds row locking when running inside a transaction.
func lockClause(ctx context.Context) string {
	if inTx(ctx) {
		return " FOR UPDATE"
	}
	return ""
}
