package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionRows(t *testing.T) {
	rows := []map[string]any{{"id": 1}, {"id": 2}}
	store := &stubStore{rows: rows}
	model := userModel(store)

	collection := NewCollection(model, MakeContext())
	got, err := collection.Rows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestCollectionRecordsCarryContext(t *testing.T) {
	store := &stubStore{rows: []map[string]any{{"id": 1}}}
	model := userModel(store)
	lookup := MakeContext(WithLocale("pt_BR"))

	collection := NewCollection(model, lookup)
	records, err := collection.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pt_BR", records[0].Context().Locale)
}

func TestCollectionAtOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{rows: []map[string]any{{"id": 1}}}
	collection := NewCollection(userModel(store), MakeContext())

	record, err := collection.At(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, record)

	record, err = collection.At(ctx, -1)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestCollectionFirstLastEmpty(t *testing.T) {
	ctx := context.Background()
	collection := NewCollection(userModel(&stubStore{}), MakeContext())

	first, err := collection.First(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	last, err := collection.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestCollectionReservedKeys(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{rows: []map[string]any{
		{"id": 1, "username": "first"},
		{"id": 2, "username": "last"},
	}}
	collection := NewCollection(userModel(store), MakeContext())

	count, err := collection.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	name, err := collection.Get(ctx, "first.username")
	require.NoError(t, err)
	assert.Equal(t, "first", name)

	name, err = collection.Get(ctx, "last.username")
	require.NoError(t, err)
	assert.Equal(t, "last", name)
}

func TestCollectionGetUnknownKey(t *testing.T) {
	collection := NewCollection(userModel(&stubStore{}), MakeContext())

	_, err := collection.Get(context.Background(), "bogus")
	var unknown *UnknownKeyError
	require.ErrorAs(t, err, &unknown)
}

func TestCollectionGetFirstOnEmpty(t *testing.T) {
	collection := NewCollection(userModel(&stubStore{}), MakeContext())

	// dotted traversal through a missing record resolves to nil, not a panic
	value, err := collection.Get(context.Background(), "first.username")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestPreloadedCollectionSkipsStore(t *testing.T) {
	ctx := context.Background()
	model := userModel(&stubStore{})
	records := []*Record{model.NewRecord(map[string]any{"id": 1}, nil)}
	rows := []map[string]any{{"id": 1}}

	collection := PreloadedCollection(records, rows)
	count, err := collection.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := collection.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}
