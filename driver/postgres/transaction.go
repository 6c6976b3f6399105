// Package postgres provides the PostgreSQL store backend for orb3, built on
// pgx connection pools. This file adapts pgx.Tx to the core.Transaction
// interface so transactions can travel through a context.Context.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// pgTransaction wraps a pgx.Tx and implements core.Transaction.
type pgTransaction struct {
	tx pgx.Tx
}

// Commit finalizes the transaction, making all changes permanent.
func (t *pgTransaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction, discarding all changes made during it.
func (t *pgTransaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
