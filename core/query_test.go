package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryNullPredicate(t *testing.T) {
	assert.True(t, NewQuery("").IsNull())
	assert.False(t, NewQuery("name").IsNull())
	assert.False(t, NewModelQuery("User", "name").IsNull())

	var nilQuery *Query
	assert.True(t, nilQuery.IsNull())
}

func TestQueryCombinatorsDoNotMutate(t *testing.T) {
	name := NewQuery("name")

	a := name.Is("alice")
	b := name.IsNot("bob")

	assert.Equal(t, OpIs, a.Op)
	assert.Equal(t, "alice", a.Value)
	assert.Equal(t, OpIsNot, b.Op)
	assert.Equal(t, "bob", b.Value)

	// the template itself is untouched
	assert.Equal(t, OpIs, name.Op)
	assert.Nil(t, name.Value)
}

func TestQueryOperators(t *testing.T) {
	q := NewQuery("age")

	assert.Equal(t, OpGt, q.Gt(10).Op)
	assert.Equal(t, OpGte, q.Gte(10).Op)
	assert.Equal(t, OpLt, q.Lt(10).Op)
	assert.Equal(t, OpLte, q.Lte(10).Op)
	assert.Equal(t, OpLike, q.Like("a%").Op)

	in := q.In(1, 2, 3)
	assert.Equal(t, OpIn, in.Op)
	assert.Equal(t, []any{1, 2, 3}, in.Value)
}

func TestAndNullIdentity(t *testing.T) {
	a := NewQuery("a").Is(1)
	null := NewQuery("")

	assert.Same(t, a, And(a, null))
	assert.Same(t, a, And(null, a))
	assert.Same(t, a, a.And(null))
	assert.Nil(t, And(null, null))
	assert.Nil(t, And())
}

func TestOrNullIdentity(t *testing.T) {
	a := NewQuery("a").Is(1)
	null := NewQuery("")

	assert.Same(t, a, Or(a, null))
	assert.Same(t, a, Or(null, a))
	assert.Nil(t, Or(null))
}

func TestAndBuildsGroup(t *testing.T) {
	a := NewQuery("a").Is(1)
	b := NewQuery("b").Is(2)

	combined := a.And(b)
	group, ok := combined.(*QueryGroup)
	require.True(t, ok)
	assert.Equal(t, GroupAnd, group.Op)
	require.Len(t, group.Members, 2)
	assert.Same(t, a, group.Members[0])
	assert.Same(t, b, group.Members[1])
}

func TestSameOperatorChainsFlatten(t *testing.T) {
	a := NewQuery("a").Is(1)
	b := NewQuery("b").Is(2)
	c := NewQuery("c").Is(3)

	combined := a.And(b).And(c)
	group, ok := combined.(*QueryGroup)
	require.True(t, ok)
	assert.Equal(t, GroupAnd, group.Op)
	assert.Len(t, group.Members, 3)
}

func TestMixedOperatorsNest(t *testing.T) {
	a := NewQuery("a").Is(1)
	b := NewQuery("b").Is(2)
	c := NewQuery("c").Is(3)

	combined := a.And(b).Or(c)
	group, ok := combined.(*QueryGroup)
	require.True(t, ok)
	assert.Equal(t, GroupOr, group.Op)
	require.Len(t, group.Members, 2)

	inner, ok := group.Members[0].(*QueryGroup)
	require.True(t, ok)
	assert.Equal(t, GroupAnd, inner.Op)
	assert.Len(t, inner.Members, 2)
}

func TestGroupIsNull(t *testing.T) {
	var nilGroup *QueryGroup
	assert.True(t, nilGroup.IsNull())
	assert.True(t, (&QueryGroup{Op: GroupAnd}).IsNull())
	assert.False(t, (&QueryGroup{Op: GroupAnd, Members: []Predicate{NewQuery("a").Is(1)}}).IsNull())
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, "<null>", NewQuery("").String())
	assert.Equal(t, "name is alice", NewQuery("name").Is("alice").String())
	assert.Equal(t, "User.name is alice", NewModelQuery("User", "name").Is("alice").String())

	group := And(NewQuery("a").Is(1), NewQuery("b").Is(2))
	assert.Equal(t, "(a is 1 AND b is 2)", group.(*QueryGroup).String())
}
