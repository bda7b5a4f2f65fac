package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxManager scopes a unit of work to a single transaction.
type TxManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTxManager constructs a transaction manager over db.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx begins a transaction, hands it to fn and commits when fn succeeds.
// The transaction is rolled back when fn returns an error or panics.
func (m *TxManager) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the pool is reachable; used by readiness checks.
func (m *TxManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// conn returns tx when a unit of work is active, otherwise the pool.
func conn(db *sqlx.DB, tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
