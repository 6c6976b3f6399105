// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the Store contract implemented by storage backends, and
// transaction plumbing for carrying an open transaction through a context.
package core

import "context"

// Store is the backend dispatch point for reads and writes. It receives the
// fully merged lookup Context, including the resolved predicate, effective
// limit and start, namespace, locale, and scope hints.
//
// Stores do not wrap, retry, or suppress their own failures; errors propagate
// to the caller unchanged.
type Store interface {
	// GetRecords returns the raw field mappings matching the lookup.
	GetRecords(ctx context.Context, model *Model, lookup *Context) ([]map[string]any, error)
	// SaveRecord persists the record's pending changes and returns the
	// authoritative field values to fold back into the record (generated
	// keys, server-side defaults).
	SaveRecord(ctx context.Context, record *Record, lookup *Context) (map[string]any, error)
	// DeleteRecord removes the record and returns the affected count.
	DeleteRecord(ctx context.Context, record *Record, lookup *Context) (int64, error)
}

// Transaction defines the contract for backend transaction management.
type Transaction interface {
	// Commit finalizes the transaction and makes all changes permanent.
	Commit(ctx context.Context) error
	// Rollback reverts the transaction, discarding all changes.
	Rollback(ctx context.Context) error
}

// Transactor is implemented by stores that support transactions.
type Transactor interface {
	// Transaction starts a new backend transaction.
	Transaction(ctx context.Context) (Transaction, error)
}

// transactionKey is an unexported context key for the ambient transaction.
// Using a private type prevents collisions with other context values.
type transactionKey struct{}

// WithTransaction injects a Transaction into the given context, letting store
// operations detect and reuse an ongoing transaction automatically.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom extracts a Transaction from the given context, if any.
func TransactionFrom(ctx context.Context) Transaction {
	if v, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return v
	}
	return nil
}

// TransactionFunc is the callback signature used by RunTransaction.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction executes fn inside a transaction on the given store,
// handling commit and rollback automatically. If fn returns an error the
// transaction is rolled back and the error returned; otherwise it commits.
//
// Example:
//
//	err := core.RunTransaction(ctx, store, func(txCtx context.Context) error {
//		if _, err := users.Create(txCtx, values); err != nil {
//			return err
//		}
//		_, err := orders.Create(txCtx, orderValues)
//		return err
//	})
func RunTransaction(ctx context.Context, store Transactor, fn TransactionFunc) error {
	tx, err := store.Transaction(ctx)
	if err != nil {
		return err
	}
	txCtx := WithTransaction(ctx, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx) // rollback on error
		return err
	}
	return tx.Commit(ctx)
}
