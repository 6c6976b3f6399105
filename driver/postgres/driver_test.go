package postgres

import (
	"testing"

	"github.com/orb-framework/orb3/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() *core.Model {
	return &core.Model{
		Name: "User",
		Schema: core.NewSchema("users",
			core.Fields(
				core.NewField("id", core.Key()),
				core.NewField("name"),
				core.NewField("email", core.Column("email_address")),
				core.NewField("display", core.Virtual()),
			),
		),
	}
}

func TestTableFor(t *testing.T) {
	model := testModel()

	assert.Equal(t, `"users"`, tableFor(model, core.MakeContext()))

	model.Schema.Namespace = "auth"
	assert.Equal(t, `"auth"."users"`, tableFor(model, core.MakeContext()))

	// lookup namespace overrides the schema's declared one
	lookup := core.MakeContext(core.WithNamespace("tenant_42"))
	assert.Equal(t, `"tenant_42"."users"`, tableFor(model, lookup))
}

func TestBuildPredicateNull(t *testing.T) {
	argList := []any{}
	assert.Equal(t, "1=1", buildPredicate(testModel(), nil, &argList))
	assert.Equal(t, "1=1", buildPredicate(testModel(), core.NewQuery(""), &argList))
	assert.Empty(t, argList)
}

func TestBuildPredicateComparisons(t *testing.T) {
	model := testModel()

	cases := []struct {
		predicate core.Predicate
		sql       string
		args      []any
	}{
		{core.NewQuery("name").Is("bob"), `"name" = $1`, []any{"bob"}},
		{core.NewQuery("name").IsNot("bob"), `"name" <> $1`, []any{"bob"}},
		{core.NewQuery("id").Gt(5), `"id" > $1`, []any{5}},
		{core.NewQuery("id").Gte(5), `"id" >= $1`, []any{5}},
		{core.NewQuery("id").Lt(5), `"id" < $1`, []any{5}},
		{core.NewQuery("id").Lte(5), `"id" <= $1`, []any{5}},
		{core.NewQuery("name").Like("b%"), `"name" ILIKE $1`, []any{"b%"}},
		{core.NewQuery("id").In(1, 2), `"id" IN ($1, $2)`, []any{1, 2}},
	}
	for _, c := range cases {
		argList := []any{}
		assert.Equal(t, c.sql, buildPredicate(model, c.predicate, &argList))
		assert.Equal(t, c.args, argList)
	}
}

func TestBuildPredicateNilValues(t *testing.T) {
	model := testModel()
	argList := []any{}

	assert.Equal(t, `"name" IS NULL`, buildPredicate(model, core.NewQuery("name").Is(nil), &argList))
	assert.Equal(t, `"name" IS NOT NULL`, buildPredicate(model, core.NewQuery("name").IsNot(nil), &argList))
	assert.Empty(t, argList)
}

func TestBuildPredicateEmptyIn(t *testing.T) {
	argList := []any{}
	assert.Equal(t, "1=0", buildPredicate(testModel(), core.NewQuery("id").In(), &argList))
}

func TestBuildPredicateColumnMapping(t *testing.T) {
	argList := []any{}
	sql := buildPredicate(testModel(), core.NewQuery("email").Is("x@y"), &argList)
	assert.Equal(t, `"email_address" = $1`, sql)
}

func TestBuildPredicateGroups(t *testing.T) {
	model := testModel()
	argList := []any{}

	combined := core.And(
		core.NewQuery("name").Is("bob"),
		core.Or(core.NewQuery("id").Gt(1), core.NewQuery("id").Lt(100)),
	)
	sql := buildPredicate(model, combined, &argList)
	assert.Equal(t, `("name" = $1 AND ("id" > $2 OR "id" < $3))`, sql)
	assert.Equal(t, []any{"bob", 1, 100}, argList)
}

func TestBuildSelect(t *testing.T) {
	model := testModel()
	lookup := core.MakeContext(
		core.WithWhere(core.NewQuery("name").Is("bob")),
		core.WithOrder("-id,name"),
		core.WithLimit(10),
		core.WithStart(20),
	)

	argList := []any{}
	sql := buildSelect(model, lookup, &argList)
	assert.Equal(t,
		`SELECT "id", "name", "email_address" FROM "users" WHERE "name" = $1`+
			` ORDER BY "id" DESC, "name" ASC LIMIT 10 OFFSET 20`,
		sql)
	assert.Equal(t, []any{"bob"}, argList)
}

func TestBuildSelectProjection(t *testing.T) {
	model := testModel()
	lookup := core.MakeContext(core.WithFields("email", "id"))

	argList := []any{}
	sql := buildSelect(model, lookup, &argList)
	assert.Equal(t, `SELECT "email_address", "id" FROM "users" WHERE 1=1`, sql)
}

func TestBuildSelectDistinct(t *testing.T) {
	model := testModel()
	lookup := core.MakeContext(core.WithDistinct("email"))

	argList := []any{}
	sql := buildSelect(model, lookup, &argList)
	assert.Equal(t,
		`SELECT DISTINCT ON ("email_address") "id", "name", "email_address" FROM "users" WHERE 1=1`,
		sql)
}

func TestBuildSelectPaging(t *testing.T) {
	model := testModel()
	lookup := core.MakeContext(core.WithPage(3), core.WithPageSize(10))

	argList := []any{}
	sql := buildSelect(model, lookup, &argList)
	assert.Contains(t, sql, "LIMIT 10 OFFSET 20")
}

func TestStoredFieldsSkipVirtual(t *testing.T) {
	fields := storedFields(testModel(), core.MakeContext())
	names := []string{}
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "name", "email"}, names)
}

func TestKeyCondition(t *testing.T) {
	model := testModel()
	record := model.NewRecord(map[string]any{"id": 7}, nil)

	argList := []any{}
	assert.Equal(t, `"id" = $1`, keyCondition(model, record, &argList))
	assert.Equal(t, []any{7}, argList)
}

func TestKeyConditionComposite(t *testing.T) {
	model := &core.Model{
		Name: "Pair",
		Schema: core.NewSchema("pairs", core.Fields(
			core.NewField("left", core.Key()),
			core.NewField("right", core.Key()),
		)),
	}
	record := model.NewRecord(map[string]any{"left": 1, "right": 2}, nil)

	argList := []any{}
	assert.Equal(t, `"left" = $1 AND "right" = $2`, keyCondition(model, record, &argList))
	assert.Equal(t, []any{1, 2}, argList)
}

func TestFieldNameForColumn(t *testing.T) {
	model := testModel()
	assert.Equal(t, "email", fieldNameForColumn(model, "email_address"))
	assert.Equal(t, "id", fieldNameForColumn(model, "id"))
	assert.Equal(t, "unmapped", fieldNameForColumn(model, "unmapped"))
}

func TestStoreImplementsContracts(t *testing.T) {
	var store any = &Store{}
	_, isStore := store.(core.Store)
	_, isTransactor := store.(core.Transactor)
	require.True(t, isStore)
	require.True(t, isTransactor)
}
