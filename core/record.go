// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the Record state machine: a model instance tracking its
// persisted baseline state against unsaved local changes, resolving related
// collections on demand, and delegating persistence to the model's Store.
package core

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Gettable is satisfied by values that support dotted-path reads: records
// and collections. Dotted get calls forward their remaining path into the
// resolved value's own Get.
type Gettable interface {
	Get(ctx context.Context, key string) (any, error)
}

// Settable is satisfied by values that support dotted-path writes.
type Settable interface {
	Set(ctx context.Context, key string, value any) error
}

// Change holds the old (baseline) and new (pending) value of a field.
type Change struct {
	Old any
	New any
}

// Record represents a single model instance. Its schema-defined fields are
// split into a baseline state (authoritative, persisted-or-initial values)
// and pending changes (uncommitted local writes that differ from baseline).
// Related collections are resolved lazily through the schema's collectors and
// cached per record.
//
// Gather and Update fan their member operations out across goroutines, so the
// record guards its mutable state with an internal mutex. A record must still
// not be shared across concurrent mutators without external synchronization.
type Record struct {
	model   *Model
	context *Context

	mutex       sync.Mutex
	state       map[string]any
	changes     map[string]any
	collections map[string]any
}

// NewRecord constructs a record for this model. The state mapping becomes the
// baseline (a record freshly loaded from a store), the values mapping becomes
// pending changes (a record freshly constructed by application code); both
// may be combined for a loaded record with local edits layered on. Schema
// defaults seed the baseline, virtual fields never enter it, and values for
// collector-declared names are routed into the collection cache. Names
// declared by neither fields nor collectors are skipped.
func (m *Model) NewRecord(state, values map[string]any, opts ...ContextOption) *Record {
	r := &Record{
		model:       m,
		state:       make(map[string]any),
		changes:     make(map[string]any),
		collections: make(map[string]any),
	}
	r.context = MakeContext(opts...)

	for key, value := range m.Schema.Defaults {
		r.state[key] = value
	}

	fields, collections := r.parseItems(state, func(row map[string]any) *Record {
		return m.NewRecord(row, nil)
	})
	for key, value := range fields {
		r.state[key] = value
	}
	for key, value := range collections {
		r.collections[key] = value
	}

	fields, collections = r.parseItems(values, func(row map[string]any) *Record {
		return m.NewRecord(nil, row)
	})
	for key, value := range fields {
		r.changes[key] = value
	}
	for key, value := range collections {
		r.collections[key] = value
	}

	return r
}

// parseItems splits a raw mapping into schema field values and collector
// collections, dropping virtual fields and undeclared names.
func (r *Record) parseItems(items map[string]any, constructor func(map[string]any) *Record) (map[string]any, map[string]any) {
	fields := make(map[string]any)
	collections := make(map[string]any)
	if len(items) == 0 {
		return fields, collections
	}

	schema := r.model.Schema
	for key, value := range items {
		if field, ok := schema.Fields[key]; ok {
			if !field.HasFlag(FlagVirtual) {
				fields[key] = value
			}
			continue
		}
		if collector, ok := schema.Collectors[key]; ok {
			if rows, ok := value.([]map[string]any); ok {
				collections[key] = collector.Collection(rows, constructor)
			} else {
				collections[key] = value
			}
		}
	}
	return fields, collections
}

// Model returns the model this record belongs to.
func (r *Record) Model() *Model { return r.model }

// Context returns the record's own ambient lookup context.
func (r *Record) Context() *Context { return r.context }

// BaselineState returns a copy of the record's baseline field values.
func (r *Record) BaselineState() map[string]any {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make(map[string]any, len(r.state))
	for key, value := range r.state {
		out[key] = value
	}
	return out
}

// PendingChanges returns a copy of the record's uncommitted field writes.
func (r *Record) PendingChanges() map[string]any {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make(map[string]any, len(r.changes))
	for key, value := range r.changes {
		out[key] = value
	}
	return out
}

// LocalChanges returns the record's pending modifications as field name to
// (old, new) value pairs.
func (r *Record) LocalChanges() map[string]Change {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make(map[string]Change, len(r.changes))
	for key, value := range r.changes {
		out[key] = Change{Old: r.state[key], New: value}
	}
	return out
}

// IsNew reports whether this record has never been persisted: true iff every
// key field is unset in the baseline state.
func (r *Record) IsNew() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, field := range r.model.Schema.KeyFields {
		if r.state[field.Name] != nil {
			return false
		}
	}
	return true
}

// MarkLoaded folds pending changes into the baseline state and clears them.
// It is called on the success path of Save, after the store has accepted the
// changes.
func (r *Record) MarkLoaded() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.foldChanges(nil)
}

// Reset discards all pending changes without touching the baseline.
func (r *Record) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.changes = make(map[string]any)
}

// foldChanges merges extra values into the pending changes, folds everything
// into the baseline, and clears pending. Callers must hold the mutex.
func (r *Record) foldChanges(values map[string]any) {
	for key, value := range values {
		r.changes[key] = value
	}
	for key, value := range r.changes {
		r.state[key] = value
	}
	r.changes = make(map[string]any)
}

// Get resolves a possibly dotted path from this record. The head segment is
// resolved first as a scalar field, then as a collection; any remaining path
// is forwarded into the resolved value's own Get. An undeclared head fails
// with *UnknownKeyError.
func (r *Record) Get(ctx context.Context, key string) (any, error) {
	return r.GetDefault(ctx, key, nil)
}

// GetDefault behaves like Get with an explicit fallback value, returned when
// the head field has neither a pending change nor a baseline value.
func (r *Record) GetDefault(ctx context.Context, key string, fallback any) (any, error) {
	head, rest, _ := strings.Cut(key, ".")

	var result any
	var err error
	if _, ok := r.model.Schema.Fields[head]; ok {
		result, err = r.GetValue(ctx, head, fallback)
	} else {
		result, err = r.GetCollection(ctx, head)
	}
	if err != nil {
		return nil, err
	}

	if rest != "" && result != nil {
		target, ok := result.(Gettable)
		if !ok {
			return nil, &UnknownKeyError{Model: r.model.Name, Key: rest}
		}
		return target.Get(ctx, rest)
	}
	return result, nil
}

// GetValue resolves a single scalar field. Declared getters take precedence;
// otherwise pending changes are checked before the baseline state, with the
// fallback as last resort.
func (r *Record) GetValue(ctx context.Context, key string, fallback any) (any, error) {
	field, ok := r.model.Schema.Fields[key]
	if !ok {
		return nil, &UnknownKeyError{Model: r.model.Name, Key: key}
	}
	if field.Getter != nil {
		return field.Getter(ctx, r)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if value, ok := r.changes[key]; ok {
		return value, nil
	}
	if value, ok := r.state[key]; ok {
		return value, nil
	}
	return fallback, nil
}

// GetCollection returns the cached collection for the given name, asking the
// schema's collector to materialize one on first access. It fails with
// *UnknownKeyError when no such collector is declared.
func (r *Record) GetCollection(ctx context.Context, key string) (any, error) {
	collector, ok := r.model.Schema.Collectors[key]
	if !ok {
		return nil, &UnknownKeyError{Model: r.model.Name, Key: key}
	}

	r.mutex.Lock()
	if cached, ok := r.collections[key]; ok {
		r.mutex.Unlock()
		return cached, nil
	}
	r.mutex.Unlock()

	// collector may hit the store; resolve outside the lock
	collection, err := collector.CollectByRecord(ctx, r)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.collections[key] = collection
	return collection, nil
}

// Gather resolves many keys concurrently and returns their values in request
// order, regardless of completion order.
func (r *Record) Gather(ctx context.Context, keys ...string) ([]any, error) {
	results := make([]any, len(keys))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, key := range keys {
		group.Go(func() error {
			value, err := r.Get(groupCtx, key)
			if err != nil {
				return err
			}
			results[i] = value
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Set writes a value for a possibly dotted key. Dotted keys split on the
// last dot: the prefix is resolved via Get and the final segment's Set is
// forwarded to that target. For a direct field, declared setters delegate
// entirely; otherwise writing a value equal to the baseline clears any
// pending entry (no-op changes are never recorded), and a differing value is
// recorded as pending. For a collector-declared name the value is stashed in
// the collection cache, after the collector's setter (if any) runs.
func (r *Record) Set(ctx context.Context, key string, value any) error {
	if prefix, last, found := cutLast(key, "."); found {
		target, err := r.Get(ctx, prefix)
		if err != nil {
			return err
		}
		settable, ok := target.(Settable)
		if !ok {
			return &UnknownKeyError{Model: r.model.Name, Key: prefix}
		}
		return settable.Set(ctx, last, value)
	}

	if field, ok := r.model.Schema.Fields[key]; ok {
		if field.Setter != nil {
			return field.Setter(ctx, r, value)
		}
		r.mutex.Lock()
		defer r.mutex.Unlock()
		if reflect.DeepEqual(r.state[key], value) {
			delete(r.changes, key)
		} else {
			r.changes[key] = value
		}
		return nil
	}

	if collector, ok := r.model.Schema.Collectors[key]; ok {
		if collector.Setter != nil {
			if err := collector.Setter(ctx, r, value); err != nil {
				return err
			}
		}
		r.mutex.Lock()
		defer r.mutex.Unlock()
		r.collections[key] = value
		return nil
	}

	return &UnknownKeyError{Model: r.model.Name, Key: key}
}

// Update applies many Set calls concurrently. The eventual state matches
// applying them sequentially in any order; callers must not rely on ordering
// between keys whose setters interact.
func (r *Record) Update(ctx context.Context, values map[string]any) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for key, value := range values {
		group.Go(func() error {
			return r.Set(groupCtx, key, value)
		})
	}
	return group.Wait()
}

// GetKey gathers the record's key-field values, returning the single value
// directly when the schema declares exactly one key field, else all values
// in schema-declared key order.
func (r *Record) GetKey(ctx context.Context) (any, error) {
	keyFields := r.model.Schema.KeyFields
	names := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		names = append(names, field.Name)
	}
	values, err := r.Gather(ctx, names...)
	if err != nil {
		return nil, err
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// GetKeyMap returns the record's key values as a field name to value
// mapping.
func (r *Record) GetKeyMap(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any, len(r.model.Schema.KeyFields))
	for _, field := range r.model.Schema.KeyFields {
		value, err := r.Get(ctx, field.Name)
		if err != nil {
			return nil, err
		}
		out[field.Name] = value
	}
	return out, nil
}

// Save persists the record's pending changes through the model's store. It
// is a no-op returning false when there are no pending changes, and fails
// with *ReadOnlyError for view models. On success the store's returned
// authoritative values are folded into the baseline along with the pending
// changes, pending is cleared, and Save returns true.
//
// A failed store call leaves the pending changes exactly as they were.
func (r *Record) Save(ctx context.Context, opts ...ContextOption) (bool, error) {
	r.mutex.Lock()
	dirty := len(r.changes) > 0
	r.mutex.Unlock()
	if !dirty {
		return false, nil
	}
	if r.model.View {
		return false, &ReadOnlyError{Model: r.model.Name}
	}

	saveContext := r.mergeContext(opts)
	payload := &SavePayload{Model: r.model, Record: r, Context: saveContext}
	err := dispatchOperation(ctx, OperationSave, payload, func() error {
		if err := r.model.Schema.runPre(ctx, PreSave, r); err != nil {
			return err
		}
		values, err := r.model.Store.SaveRecord(ctx, r, saveContext)
		if err != nil {
			return err
		}
		payload.Values = values
		return r.model.Schema.runPost(ctx, PostSave, r)
	})
	if err != nil {
		return false, err
	}

	r.mutex.Lock()
	r.foldChanges(payload.Values)
	r.mutex.Unlock()

	Emit(EventSave, payload)
	return true, nil
}

// Delete removes this record through the model's store and returns the
// affected count the store reports. It fails with *ReadOnlyError for view
// models.
func (r *Record) Delete(ctx context.Context, opts ...ContextOption) (int64, error) {
	if r.model.View {
		return 0, &ReadOnlyError{Model: r.model.Name}
	}

	deleteContext := r.mergeContext(opts)
	payload := &DeletePayload{Model: r.model, Record: r, Context: deleteContext}
	err := dispatchOperation(ctx, OperationDelete, payload, func() error {
		if err := r.model.Schema.runPre(ctx, PreDelete, r); err != nil {
			return err
		}
		count, err := r.model.Store.DeleteRecord(ctx, r, deleteContext)
		if err != nil {
			return err
		}
		payload.Count = count
		return r.model.Schema.runPost(ctx, PostDelete, r)
	})
	if err != nil {
		return 0, err
	}

	Emit(EventDelete, payload)
	return payload.Count, nil
}

// mergeContext merges caller options onto the record's own ambient context.
func (r *Record) mergeContext(opts []ContextOption) *Context {
	merged := make([]ContextOption, 0, len(opts)+1)
	merged = append(merged, WithContext(r.context))
	merged = append(merged, opts...)
	return MakeContext(merged...)
}

// Create constructs a new record from the given values, immediately saves
// it, and returns it. It fails with *ReadOnlyError for view models before
// constructing anything.
func (m *Model) Create(ctx context.Context, values map[string]any, opts ...ContextOption) (*Record, error) {
	if m.View {
		return nil, &ReadOnlyError{Model: m.Name}
	}
	record := m.NewRecord(nil, values, opts...)
	if _, err := record.Save(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// Fetch retrieves a single record for the given key. A []any key is matched
// positionally against the schema's key fields and must have the same arity
// (else *InvalidKeyError); a scalar key is matched via OR against the single
// key field and every field flagged Keyable. The key filter is conjoined
// with any caller-supplied where, the limit is forced to 1, and the result
// is nil when no row matches, a *Record when the effective returning is
// ReturnRecords, or the raw mapping otherwise.
//
// When several keyable fields match different rows, the row returned is
// determined by backend ordering.
func (m *Model) Fetch(ctx context.Context, key any, opts ...ContextOption) (any, error) {
	keyFields := m.Schema.KeyFields

	var q Predicate
	switch k := key.(type) {
	case []any:
		if len(k) != len(keyFields) {
			return nil, &InvalidKeyError{Model: m.Name, Want: len(keyFields), Got: len(k)}
		}
		for i, field := range keyFields {
			q = And(q, NewQuery(field.Name).Is(k[i]))
		}
	default:
		if len(keyFields) == 1 {
			q = Or(q, NewQuery(keyFields[0].Name).Is(key))
		}
		for _, field := range m.Schema.OrderedFields() {
			if field.HasFlag(FlagKeyable) {
				q = Or(q, NewQuery(field.Name).Is(key))
			}
		}
	}

	base := MakeContext(opts...)
	fetchContext := MakeContext(WithContext(base), WithWhere(q), WithLimit(1))

	payload := &FetchPayload{Model: m, Context: fetchContext}
	err := dispatchOperation(ctx, OperationFetch, payload, func() error {
		rows, err := m.Store.GetRecords(ctx, m, fetchContext)
		if err != nil {
			return err
		}
		payload.Rows = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(payload.Rows) == 0 {
		return nil, nil
	}

	Emit(EventFetch, payload)
	if fetchContext.Returning == ReturnRecords {
		return m.NewRecord(payload.Rows[0], nil, WithContext(fetchContext)), nil
	}
	return payload.Rows[0], nil
}

// Select returns a lazy collection bound to a freshly merged context and
// this model. No store access happens until the collection is consumed.
func (m *Model) Select(opts ...ContextOption) *Collection {
	return NewCollection(m, MakeContext(opts...))
}

// cutLast splits s around the last occurrence of sep, mirroring strings.Cut
// from the tail end.
func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return "", s, false
}
