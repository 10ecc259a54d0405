package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is the query surface shared by *sql.DB and *sql.Tx. Repositories
// resolve their querier per call so they join a caller's transaction when one
// is carried by the context.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// FromContext returns the transaction carried by ctx, or fallback when the
// call is not transactional.
func FromContext(ctx context.Context, fallback Querier) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return fallback
}

// TxManager begins transactions on a database handle and threads them through
// context. Nested InTx calls join the outer transaction.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager over db.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic.
func (m *TxManager) InTx(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
