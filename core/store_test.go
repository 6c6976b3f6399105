package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransaction struct {
	committed  bool
	rolledBack bool
}

func (t *stubTransaction) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *stubTransaction) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type stubTransactor struct {
	tx  *stubTransaction
	err error
}

func (s *stubTransactor) Transaction(ctx context.Context) (Transaction, error) {
	return s.tx, s.err
}

func TestTransactionFromContext(t *testing.T) {
	tx := &stubTransaction{}
	ctx := WithTransaction(context.Background(), tx)

	assert.Same(t, tx, TransactionFrom(ctx))
	assert.Nil(t, TransactionFrom(context.Background()))
}

func TestRunTransactionCommits(t *testing.T) {
	tx := &stubTransaction{}
	store := &stubTransactor{tx: tx}

	var seen Transaction
	err := RunTransaction(context.Background(), store, func(txCtx context.Context) error {
		seen = TransactionFrom(txCtx)
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, tx, seen)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	tx := &stubTransaction{}
	store := &stubTransactor{tx: tx}

	boom := errors.New("boom")
	err := RunTransaction(context.Background(), store, func(txCtx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestRunTransactionBeginFailure(t *testing.T) {
	boom := errors.New("no connection")
	store := &stubTransactor{err: boom}

	err := RunTransaction(context.Background(), store, func(txCtx context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `User: unknown key "bogus"`,
		(&UnknownKeyError{Model: "User", Key: "bogus"}).Error())
	assert.Equal(t, "AuditLog: model is read-only",
		(&ReadOnlyError{Model: "AuditLog"}).Error())
	assert.Equal(t, "Pair: invalid key: want 2 key values, got 3",
		(&InvalidKeyError{Model: "Pair", Want: 2, Got: 3}).Error())
}
