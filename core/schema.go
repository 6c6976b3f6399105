// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the schema system: field and collector descriptors, the
// schema builder, and the process-wide model registry. Field and collector
// dispatch is an ordinary map lookup with defined miss behavior, never
// runtime reflection.
package core

import (
	"context"
	"sync"
)

// FieldFlag is a bit flag describing a field's role in its schema.
type FieldFlag uint8

const (
	// FlagKey marks the field as part of the record's primary key.
	FlagKey FieldFlag = 1 << iota
	// FlagKeyable marks the field as usable for scalar Fetch lookups even
	// though it is not the primary key.
	FlagKeyable
	// FlagTranslatable marks the field as locale-dependent.
	FlagTranslatable
	// FlagVirtual marks the field as computed; virtual fields never enter a
	// record's baseline state.
	FlagVirtual
)

// FieldGetter resolves a field's value for a record, overriding the default
// pending-changes-then-baseline lookup.
type FieldGetter func(ctx context.Context, record *Record) (any, error)

// FieldSetter applies a field write for a record, overriding the default
// change-tracking behavior entirely.
type FieldSetter func(ctx context.Context, record *Record, value any) error

// Field describes a schema-declared record field.
type Field struct {
	Name    string
	Column  string
	Flags   FieldFlag
	Default any
	Getter  FieldGetter
	Setter  FieldSetter
}

// HasFlag reports whether the field carries the given flag.
func (f *Field) HasFlag(flag FieldFlag) bool {
	return f.Flags&flag != 0
}

// FieldOption is a function used to configure a Field.
type FieldOption func(*Field)

// Key marks the field as part of the primary key.
func Key() FieldOption {
	return func(f *Field) { f.Flags |= FlagKey }
}

// Keyable marks the field as usable for scalar Fetch lookups.
func Keyable() FieldOption {
	return func(f *Field) { f.Flags |= FlagKeyable }
}

// Translatable marks the field as locale-dependent.
func Translatable() FieldOption {
	return func(f *Field) { f.Flags |= FlagTranslatable }
}

// Virtual marks the field as computed.
func Virtual() FieldOption {
	return func(f *Field) { f.Flags |= FlagVirtual }
}

// Column sets the backing column name when it differs from the field name.
func Column(name string) FieldOption {
	return func(f *Field) { f.Column = name }
}

// Default sets the field's default value, applied to the baseline state of
// newly constructed records.
func Default(value any) FieldOption {
	return func(f *Field) { f.Default = value }
}

// Getter installs a custom value resolver for the field.
func Getter(fn FieldGetter) FieldOption {
	return func(f *Field) { f.Getter = fn }
}

// Setter installs a custom write handler for the field.
func Setter(fn FieldSetter) FieldOption {
	return func(f *Field) { f.Setter = fn }
}

// NewField creates a field descriptor with the given name and options. The
// column name defaults to the field name.
func NewField(name string, opts ...FieldOption) *Field {
	f := &Field{Name: name, Column: name}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CollectorSetter applies a write addressed at a collector-backed name.
type CollectorSetter func(ctx context.Context, record *Record, value any) error

// Collector describes how a named related collection is materialized for a
// record. CollectByRecord may hit the backing store; Collection builds a
// collection synchronously from already-loaded rows.
type Collector struct {
	Name string
	// CollectByRecord materializes the collection for a single record.
	CollectByRecord func(ctx context.Context, record *Record) (*Collection, error)
	// Setter, when declared, is invoked before a raw value is stashed in the
	// record's collection cache.
	Setter CollectorSetter
}

// Collection builds a preloaded collection from raw rows, constructing a
// record per row with the given constructor.
func (c *Collector) Collection(rows []map[string]any, constructor func(map[string]any) *Record) *Collection {
	records := make([]*Record, 0, len(rows))
	if constructor != nil {
		for _, row := range rows {
			records = append(records, constructor(row))
		}
	}
	return PreloadedCollection(records, rows)
}

// Schema maps a model to its storage shape: table name, namespace, field and
// collector descriptors, key fields, and default values.
type Schema struct {
	Table      string
	Namespace  string
	Fields     map[string]*Field
	Collectors map[string]*Collector
	// KeyFields holds the key fields in declaration order.
	KeyFields []*Field
	// Defaults maps field names to declared default values.
	Defaults map[string]any

	fieldOrder []string
	preHooks   map[PreHook][]Hook
	postHooks  map[PostHook][]Hook
}

// SchemaOption represents a function that customizes the schema builder.
type SchemaOption func(*Schema)

// Namespace sets the storage namespace (database schema, mongo database) for
// the schema. A lookup context namespace overrides it per request.
func Namespace(name string) SchemaOption {
	return func(s *Schema) { s.Namespace = name }
}

// Fields declares fields on the schema, in order.
func Fields(fields ...*Field) SchemaOption {
	return func(s *Schema) {
		for _, f := range fields {
			s.Fields[f.Name] = f
			s.fieldOrder = append(s.fieldOrder, f.Name)
			if f.HasFlag(FlagKey) {
				s.KeyFields = append(s.KeyFields, f)
			}
			if f.Default != nil {
				s.Defaults[f.Name] = f.Default
			}
		}
	}
}

// Collectors declares collectors on the schema.
func Collectors(collectors ...*Collector) SchemaOption {
	return func(s *Schema) {
		for _, c := range collectors {
			s.Collectors[c.Name] = c
		}
	}
}

// NewSchema builds a schema for the given table/collection name.
//
// Example:
//
//	userSchema := core.NewSchema("users",
//		core.Fields(
//			core.NewField("id", core.Key()),
//			core.NewField("email", core.Keyable()),
//			core.NewField("name", core.Default("unknown")),
//		),
//	)
func NewSchema(table string, opts ...SchemaOption) *Schema {
	s := &Schema{
		Table:      table,
		Fields:     make(map[string]*Field),
		Collectors: make(map[string]*Collector),
		Defaults:   make(map[string]any),
		preHooks:   make(map[PreHook][]Hook),
		postHooks:  make(map[PostHook][]Hook),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrderedFields returns the schema's fields in declaration order.
func (s *Schema) OrderedFields() []*Field {
	out := make([]*Field, 0, len(s.fieldOrder))
	for _, name := range s.fieldOrder {
		out = append(out, s.Fields[name])
	}
	return out
}

// Model binds a schema to a store under a registered name. View models are
// read-only: Save, Delete, and Create fail against them.
type Model struct {
	Name   string
	Schema *Schema
	Store  Store
	View   bool
}

// modelRegistry is the process-wide model registry, populated at
// registration time and looked up by name.
var modelRegistry = struct {
	mutex  sync.RWMutex
	models map[string]*Model
}{models: make(map[string]*Model)}

// RegisterModel adds a model to the process-wide registry, replacing any
// previous registration under the same name.
func RegisterModel(m *Model) {
	modelRegistry.mutex.Lock()
	defer modelRegistry.mutex.Unlock()
	modelRegistry.models[m.Name] = m
}

// FindModel returns the registered model with the given name, or nil.
func FindModel(name string) *Model {
	modelRegistry.mutex.RLock()
	defer modelRegistry.mutex.RUnlock()
	return modelRegistry.models[name]
}
