// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the lookup Context: the immutable bundle of options
// governing a read/write request, and the merge algebra that composes a new
// context from override options layered onto a base context.
package core

import "strings"

// Ordering represents a sort direction for a single order entry.
type Ordering string

const (
	// Asc sorts in ascending order.
	Asc Ordering = "asc"
	// Desc sorts in descending order.
	Desc Ordering = "desc"
)

// OrderBy pairs a field name with a sort direction.
type OrderBy struct {
	Field     string
	Direction Ordering
}

// ReturnType selects the shape of lookup results.
type ReturnType string

const (
	// ReturnData returns raw field mappings from the store.
	ReturnData ReturnType = "data"
	// ReturnRecords materializes typed Record instances. This is the default.
	ReturnRecords ReturnType = "records"
)

// Scope carries backend-specific lookup hints as an open key/value mapping.
type Scope map[string]any

// Context is the immutable bundle of options governing a single lookup:
// filtering, paging, ordering, projection, locale, namespace, and return
// shape. Contexts are constructed exclusively through MakeContext, which
// merges explicit options onto an optional base context; after construction
// nothing is mutated except through the two sanctioned paging mutators
// (SetLimit, SetStart), which exist for construction-time adjustment only.
//
// Because contexts are immutable they are freely shared across concurrent
// operations without synchronization.
type Context struct {
	Distinct  []string
	Fields    []string
	Locale    string
	Namespace string
	Order     []OrderBy
	Page      *int
	PageSize  *int
	Returning ReturnType
	Scope     Scope
	Timezone  string
	Where     Predicate

	// raw paging values; the derived views live on Limit and Start
	limit *int
	start *int
}

// Limit returns the effective limit for this context: the page size when one
// is set, otherwise the raw limit, otherwise zero (no limit).
func (c *Context) Limit() int {
	if c.PageSize != nil && *c.PageSize != 0 {
		return *c.PageSize
	}
	if c.limit != nil {
		return *c.limit
	}
	return 0
}

// Start returns the effective zero-based offset for this context. When a page
// is set the offset is derived as (page-1) * Limit(); otherwise the raw start
// applies, defaulting to zero.
func (c *Context) Start() int {
	if c.Page != nil && *c.Page != 0 {
		return (*c.Page - 1) * c.Limit()
	}
	if c.start != nil {
		return *c.start
	}
	return 0
}

// SetLimit replaces the raw limit. Sanctioned for construction-time merge
// adjustments only; a context visible to more than one caller must not be
// mutated.
func (c *Context) SetLimit(limit int) { c.limit = &limit }

// SetStart replaces the raw start offset. Sanctioned for construction-time
// merge adjustments only; a context visible to more than one caller must not
// be mutated.
func (c *Context) SetStart(start int) { c.start = &start }

// contextOptions accumulates the thirteen recognized lookup options plus the
// base context. Pointer fields distinguish "not provided" from "explicitly
// cleared".
type contextOptions struct {
	base      *Context
	distinct  *[]string
	fields    *[]string
	locale    *string
	limit     *int
	namespace *string
	order     *[]OrderBy
	page      *int
	pageSize  *int
	returning *ReturnType
	scope     *Scope
	start     *int
	timezone  *string
	where     *Predicate
}

// ContextOption configures a single lookup option for MakeContext.
type ContextOption func(*contextOptions)

// WithContext sets the base context that explicit options merge onto.
func WithContext(base *Context) ContextOption {
	return func(o *contextOptions) { o.base = base }
}

// WithDistinct sets the distinct field set. Each entry may itself be a
// comma-separated list.
func WithDistinct(fields ...string) ContextOption {
	return func(o *contextOptions) {
		split := splitFieldList(fields)
		o.distinct = &split
	}
}

// WithFields sets the projected field list. Each entry may itself be a
// comma-separated list. When the base context also carries fields, base
// fields not already present are appended after the explicit ones.
func WithFields(fields ...string) ContextOption {
	return func(o *contextOptions) {
		split := splitFieldList(fields)
		o.fields = &split
	}
}

// WithLocale sets the locale for translatable field resolution.
func WithLocale(locale string) ContextOption {
	return func(o *contextOptions) { o.locale = &locale }
}

// WithLimit sets the raw maximum number of results.
func WithLimit(limit int) ContextOption {
	return func(o *contextOptions) { o.limit = &limit }
}

// WithNamespace sets the storage namespace for the lookup.
func WithNamespace(namespace string) ContextOption {
	return func(o *contextOptions) { o.namespace = &namespace }
}

// WithOrder sets the ordering from a comma-separated token string. Each token
// may be prefixed with "+" or "-" for ascending or descending; ascending is
// the default.
//
// Example:
//
//	core.WithOrder("-created_at,name")
func WithOrder(order string) ContextOption {
	return func(o *contextOptions) {
		parsed := parseOrder(order)
		o.order = &parsed
	}
}

// WithOrdering sets the ordering from explicit OrderBy entries.
func WithOrdering(order ...OrderBy) ContextOption {
	return func(o *contextOptions) { o.order = &order }
}

// WithPage sets the 1-based page number.
func WithPage(page int) ContextOption {
	return func(o *contextOptions) { o.page = &page }
}

// WithPageSize sets the page size. A set page size takes precedence over the
// raw limit when deriving the effective limit.
func WithPageSize(pageSize int) ContextOption {
	return func(o *contextOptions) { o.pageSize = &pageSize }
}

// WithReturning selects whether lookups materialize Records or raw data.
func WithReturning(returning ReturnType) ContextOption {
	return func(o *contextOptions) { o.returning = &returning }
}

// WithScope sets backend-specific lookup hints. When the base context also
// carries a scope, the explicit mapping is merged on top of it key by key.
func WithScope(scope Scope) ContextOption {
	return func(o *contextOptions) { o.scope = &scope }
}

// WithStart sets the raw zero-based offset.
func WithStart(start int) ContextOption {
	return func(o *contextOptions) { o.start = &start }
}

// WithTimezone sets the timezone for timestamp field resolution.
func WithTimezone(timezone string) ContextOption {
	return func(o *contextOptions) { o.timezone = &timezone }
}

// WithWhere sets the filter predicate. When the base context also carries a
// predicate, the explicit one is conjoined with it via AND. Passing nil
// explicitly clears any inherited predicate.
func WithWhere(where Predicate) ContextOption {
	return func(o *contextOptions) { o.where = &where }
}

// MakeContext is the single constructor path for lookup contexts. It merges
// the given options onto the base context (provided via WithContext, if any)
// with a per-key rule:
//
//   - where: explicit predicate is AND-conjoined with the base predicate
//   - scope: explicit keys win, base keys not overridden are preserved
//   - fields: explicit order wins, base fields fill the gaps
//   - everything else: explicit value overrides, else inherit from base
//
// Filtering and scoping augment because callers expect narrowing of an
// ambient lookup, not replacement; paging, ordering, and shape options
// replace because composing them additively would be meaningless.
//
// MakeContext never fails; option parsing is limited to the comma-separated
// shorthand forms.
func MakeContext(opts ...ContextOption) *Context {
	var o contextOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	base := o.base

	ctx := &Context{Returning: ReturnRecords}

	if o.distinct != nil {
		ctx.Distinct = *o.distinct
	} else if base != nil {
		ctx.Distinct = base.Distinct
	}

	if o.fields != nil {
		fields := *o.fields
		if len(fields) > 0 && base != nil {
			for _, f := range base.Fields {
				if !containsField(fields, f) {
					fields = append(fields, f)
				}
			}
		}
		ctx.Fields = fields
	} else if base != nil {
		ctx.Fields = base.Fields
	}

	if o.locale != nil {
		ctx.Locale = *o.locale
	} else if base != nil {
		ctx.Locale = base.Locale
	}

	if o.limit != nil {
		ctx.limit = o.limit
	} else if base != nil {
		ctx.limit = base.limit
	}

	if o.namespace != nil {
		ctx.Namespace = *o.namespace
	} else if base != nil {
		ctx.Namespace = base.Namespace
	}

	if o.order != nil {
		ctx.Order = *o.order
	} else if base != nil {
		ctx.Order = base.Order
	}

	if o.page != nil {
		ctx.Page = o.page
	} else if base != nil {
		ctx.Page = base.Page
	}

	if o.pageSize != nil {
		ctx.PageSize = o.pageSize
	} else if base != nil {
		ctx.PageSize = base.PageSize
	}

	if o.returning != nil {
		ctx.Returning = *o.returning
	} else if base != nil {
		ctx.Returning = base.Returning
	}

	switch {
	case o.scope != nil && base != nil && len(base.Scope) > 0:
		merged := make(Scope, len(base.Scope)+len(*o.scope))
		for k, v := range base.Scope {
			merged[k] = v
		}
		for k, v := range *o.scope {
			merged[k] = v
		}
		ctx.Scope = merged
	case o.scope != nil:
		ctx.Scope = *o.scope
	case base != nil:
		ctx.Scope = base.Scope
	}
	if ctx.Scope == nil {
		ctx.Scope = Scope{}
	}

	if o.start != nil {
		ctx.start = o.start
	} else if base != nil {
		ctx.start = base.start
	}

	if o.timezone != nil {
		ctx.Timezone = *o.timezone
	} else if base != nil {
		ctx.Timezone = base.Timezone
	}

	if o.where != nil {
		where := *o.where
		if where != nil && base != nil {
			where = And(where, base.Where)
		}
		ctx.Where = where
	} else if base != nil {
		ctx.Where = base.Where
	}

	return ctx
}

// splitFieldList expands comma-separated entries into a flat field list.
func splitFieldList(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseOrder parses comma-separated order tokens with optional +/- prefixes.
func parseOrder(order string) []OrderBy {
	out := []OrderBy{}
	for _, part := range strings.Split(order, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		direction := Asc
		if strings.HasPrefix(part, "-") {
			direction = Desc
		}
		out = append(out, OrderBy{
			Field:     strings.TrimLeft(part, "+-"),
			Direction: direction,
		})
	}
	return out
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
