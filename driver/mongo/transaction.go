// Package mongo provides the MongoDB store backend for orb3, built on the
// official mongo-driver. This file adapts a mongo session to the
// core.Transaction interface so transactions can travel through a
// context.Context.
package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// mongoTransaction wraps a mongo session and implements core.Transaction.
type mongoTransaction struct {
	session mongo.Session
}

// Commit finalizes the transaction and ends the session.
func (t *mongoTransaction) Commit(ctx context.Context) error {
	defer t.session.EndSession(ctx)
	return t.session.CommitTransaction(ctx)
}

// Rollback aborts the transaction and ends the session.
func (t *mongoTransaction) Rollback(ctx context.Context) error {
	defer t.session.EndSession(ctx)
	return t.session.AbortTransaction(ctx)
}
