package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFieldDefaults(t *testing.T) {
	f := NewField("name")

	assert.Equal(t, "name", f.Name)
	assert.Equal(t, "name", f.Column)
	assert.False(t, f.HasFlag(FlagKey))
}

func TestFieldOptions(t *testing.T) {
	f := NewField("id", Key(), Keyable(), Column("user_id"), Default(0))

	assert.True(t, f.HasFlag(FlagKey))
	assert.True(t, f.HasFlag(FlagKeyable))
	assert.False(t, f.HasFlag(FlagVirtual))
	assert.Equal(t, "user_id", f.Column)
	assert.Equal(t, 0, f.Default)
}

func TestFieldFlags(t *testing.T) {
	assert.True(t, NewField("x", Translatable()).HasFlag(FlagTranslatable))
	assert.True(t, NewField("x", Virtual()).HasFlag(FlagVirtual))
}

func TestNewSchema(t *testing.T) {
	s := NewSchema("users",
		Namespace("auth"),
		Fields(
			NewField("tenant", Key()),
			NewField("id", Key()),
			NewField("email", Keyable()),
			NewField("name", Default("unknown")),
		),
	)

	assert.Equal(t, "users", s.Table)
	assert.Equal(t, "auth", s.Namespace)
	assert.Len(t, s.Fields, 4)

	// key fields keep declaration order
	require.Len(t, s.KeyFields, 2)
	assert.Equal(t, "tenant", s.KeyFields[0].Name)
	assert.Equal(t, "id", s.KeyFields[1].Name)

	assert.Equal(t, map[string]any{"name": "unknown"}, s.Defaults)
}

func TestSchemaOrderedFields(t *testing.T) {
	s := NewSchema("t", Fields(
		NewField("c"),
		NewField("a"),
		NewField("b"),
	))

	names := []string{}
	for _, f := range s.OrderedFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestFieldsOptionDistinctFromContextFields(t *testing.T) {
	// schema Fields declares descriptors; context WithFields selects a
	// projection by name
	s := NewSchema("users", Fields(NewField("id", Key()), NewField("name")))
	lookup := MakeContext(WithFields("name"))

	assert.Len(t, s.Fields, 2)
	assert.Equal(t, []string{"name"}, lookup.Fields)
}

func TestSchemaCollectors(t *testing.T) {
	orders := &Collector{Name: "orders"}
	s := NewSchema("users", Collectors(orders))

	assert.Same(t, orders, s.Collectors["orders"])
}

func TestCollectorCollection(t *testing.T) {
	collector := &Collector{Name: "orders"}
	model := &Model{Name: "Order", Schema: NewSchema("orders", Fields(
		NewField("id", Key()),
		NewField("total"),
	))}

	rows := []map[string]any{{"id": 1, "total": 10}, {"id": 2, "total": 20}}
	collection := collector.Collection(rows, func(row map[string]any) *Record {
		return model.NewRecord(row, nil)
	})

	count, err := collection.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	records, err := collection.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	total, err := records[1].Get(context.Background(), "total")
	require.NoError(t, err)
	assert.Equal(t, 20, total)
}

func TestModelRegistry(t *testing.T) {
	m := &Model{Name: "registry_test_user", Schema: NewSchema("users")}
	RegisterModel(m)

	assert.Same(t, m, FindModel("registry_test_user"))
	assert.Nil(t, FindModel("registry_test_missing"))
}
