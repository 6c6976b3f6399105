// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the predicate algebra: single-field Query nodes and
// boolean QueryGroup trees used to filter record lookups.
package core

import (
	"fmt"
	"strings"
)

// Op represents a comparison operator applied by a single Query node.
type Op string

const (
	// OpIs checks for equality (field = value, or IS NULL for nil values).
	OpIs Op = "is"
	// OpIsNot checks for inequality (field <> value, or IS NOT NULL for nil values).
	OpIsNot Op = "is_not"
	// OpGt checks for "greater than" (>).
	OpGt Op = "gt"
	// OpGte checks for "greater than or equal" (>=).
	OpGte Op = "gte"
	// OpLt checks for "less than" (<).
	OpLt Op = "lt"
	// OpLte checks for "less than or equal" (<=).
	OpLte Op = "lte"
	// OpLike performs a pattern match (SQL LIKE / regex equivalent).
	OpLike Op = "like"
	// OpIn checks whether the field value is contained in the provided list.
	OpIn Op = "in"
)

// GroupOp represents the boolean operator joining the members of a QueryGroup.
type GroupOp string

const (
	// GroupAnd joins members with logical AND.
	GroupAnd GroupOp = "and"
	// GroupOr joins members with logical OR.
	GroupOr GroupOp = "or"
)

// Predicate is the common contract for filter expressions. Both Query nodes
// and QueryGroup trees satisfy it, so either can appear anywhere a filter is
// expected (lookup contexts, combinators, store backends).
//
// Predicates are immutable: combinators always return new values, and trees
// may safely be shared across concurrent lookups without synchronization.
type Predicate interface {
	// And combines this predicate with another using logical AND.
	// Combining with a null predicate returns the non-null side unchanged.
	And(other Predicate) Predicate
	// Or combines this predicate with another using logical OR.
	// Combining with a null predicate returns the non-null side unchanged.
	Or(other Predicate) Predicate
	// IsNull reports whether this predicate carries no filter at all.
	// Backends treat a null predicate as "no filter".
	IsNull() bool
}

// Query represents a single comparison predicate: a field name, an operator,
// and a comparison value. An optional Model qualifier scopes the field to a
// specific model when the name alone would be ambiguous.
//
// A Query with neither Field nor Model is the null predicate: it contributes
// nothing when combined with others.
//
// Operator methods clone instead of mutating, so a bare node can be reused as
// a template:
//
//	name := core.NewQuery("name")
//	a := name.Is("alice")
//	b := name.IsNot("bob") // does not disturb a
type Query struct {
	Field string
	Model string
	Op    Op
	Value any
}

// NewQuery creates a Query node for the given field name.
func NewQuery(field string) *Query {
	return &Query{Field: field, Op: OpIs}
}

// NewModelQuery creates a Query node for a field scoped to a specific model.
func NewModelQuery(model, field string) *Query {
	return &Query{Field: field, Model: model, Op: OpIs}
}

// clone returns a copy of this node with the operator and value replaced.
func (q *Query) clone(op Op, value any) *Query {
	return &Query{Field: q.Field, Model: q.Model, Op: op, Value: value}
}

// Is returns a new Query checking for equality with v.
func (q *Query) Is(v any) *Query { return q.clone(OpIs, v) }

// IsNot returns a new Query checking for inequality with v.
func (q *Query) IsNot(v any) *Query { return q.clone(OpIsNot, v) }

// Gt returns a new Query checking for "greater than" v.
func (q *Query) Gt(v any) *Query { return q.clone(OpGt, v) }

// Gte returns a new Query checking for "greater than or equal" v.
func (q *Query) Gte(v any) *Query { return q.clone(OpGte, v) }

// Lt returns a new Query checking for "less than" v.
func (q *Query) Lt(v any) *Query { return q.clone(OpLt, v) }

// Lte returns a new Query checking for "less than or equal" v.
func (q *Query) Lte(v any) *Query { return q.clone(OpLte, v) }

// Like returns a new Query performing a pattern match against v.
func (q *Query) Like(v any) *Query { return q.clone(OpLike, v) }

// In returns a new Query checking membership in the given value list.
func (q *Query) In(values ...any) *Query { return q.clone(OpIn, values) }

// And combines this node with another predicate using logical AND.
func (q *Query) And(other Predicate) Predicate { return And(q, other) }

// Or combines this node with another predicate using logical OR.
func (q *Query) Or(other Predicate) Predicate { return Or(q, other) }

// IsNull reports whether this node carries no field reference.
func (q *Query) IsNull() bool {
	return q == nil || (q.Field == "" && q.Model == "")
}

// String returns a readable form of the node, used in log output and
// cache keys.
func (q *Query) String() string {
	if q.IsNull() {
		return "<null>"
	}
	field := q.Field
	if q.Model != "" {
		field = q.Model + "." + field
	}
	return fmt.Sprintf("%s %s %v", field, q.Op, q.Value)
}

// QueryGroup represents a boolean combination of predicates. Members are
// ordered and may themselves be Query nodes or nested groups.
//
// Combining two predicates with the same operator flattens into a single
// group's member list rather than nesting; backends that compile the tree
// can rely on that shape.
type QueryGroup struct {
	Op      GroupOp
	Members []Predicate
}

// And combines this group with another predicate using logical AND.
func (g *QueryGroup) And(other Predicate) Predicate { return And(g, other) }

// Or combines this group with another predicate using logical OR.
func (g *QueryGroup) Or(other Predicate) Predicate { return Or(g, other) }

// IsNull reports whether this group has no members.
func (g *QueryGroup) IsNull() bool {
	return g == nil || len(g.Members) == 0
}

// String returns a readable form of the group, used in log output and
// cache keys.
func (g *QueryGroup) String() string {
	if g.IsNull() {
		return "<null>"
	}
	parts := make([]string, 0, len(g.Members))
	for _, member := range g.Members {
		parts = append(parts, fmt.Sprint(member))
	}
	return "(" + strings.Join(parts, " "+strings.ToUpper(string(g.Op))+" ") + ")"
}

// And folds any number of predicates into a single predicate joined with
// logical AND. Null predicates are identity elements: they are skipped, and
// folding nothing but nulls yields nil.
func And(predicates ...Predicate) Predicate {
	return foldPredicates(GroupAnd, predicates)
}

// Or folds any number of predicates into a single predicate joined with
// logical OR. Null predicates are identity elements: they are skipped, and
// folding nothing but nulls yields nil.
func Or(predicates ...Predicate) Predicate {
	return foldPredicates(GroupOr, predicates)
}

// foldPredicates combines predicates pairwise under the given operator,
// flattening groups that already use the same operator.
func foldPredicates(op GroupOp, predicates []Predicate) Predicate {
	var acc Predicate
	for _, p := range predicates {
		if p == nil || p.IsNull() {
			continue
		}
		if acc == nil {
			acc = p
			continue
		}
		members := make([]Predicate, 0, 2)
		members = appendMember(members, acc, op)
		members = appendMember(members, p, op)
		acc = &QueryGroup{Op: op, Members: members}
	}
	return acc
}

// appendMember appends a predicate to a member list, splicing in the members
// of same-operator groups so chained combinations stay flat.
func appendMember(members []Predicate, p Predicate, op GroupOp) []Predicate {
	if g, ok := p.(*QueryGroup); ok && g.Op == op {
		return append(members, g.Members...)
	}
	return append(members, p)
}
