// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the Collection: a lazy, context-bound set of records.
// Selecting a collection performs no store access; materialization happens on
// first consumption and is cached.
package core

import (
	"context"
	"strings"
	"sync"
)

// Collection represents a lazy set of records bound to a model and a merged
// lookup context. The store is hit at most once, on first consumption.
//
// Collections support dotted-path traversal from records through the
// reserved keys "first", "last", and "count".
type Collection struct {
	model   *Model
	context *Context

	mutex   sync.Mutex
	loaded  bool
	rows    []map[string]any
	records []*Record
}

// NewCollection creates a lazy collection bound to a model and lookup
// context. No store access happens until the collection is consumed.
func NewCollection(model *Model, lookup *Context) *Collection {
	return &Collection{model: model, context: lookup}
}

// PreloadedCollection creates a collection over already-materialized records
// and rows, typically produced by a collector from loaded data.
func PreloadedCollection(records []*Record, rows []map[string]any) *Collection {
	return &Collection{loaded: true, records: records, rows: rows}
}

// Context returns the lookup context this collection is bound to.
func (c *Collection) Context() *Context { return c.context }

// load materializes the collection's rows through the store, once.
func (c *Collection) load(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.loaded {
		return nil
	}

	payload := &FetchPayload{Model: c.model, Context: c.context}
	err := dispatchOperation(ctx, OperationFetch, payload, func() error {
		rows, err := c.model.Store.GetRecords(ctx, c.model, c.context)
		if err != nil {
			return err
		}
		payload.Rows = rows
		return nil
	})
	if err != nil {
		return err
	}
	c.rows = payload.Rows
	c.loaded = true
	Emit(EventFetch, payload)
	return nil
}

// Rows returns the raw field mappings for this collection, fetching them on
// first call.
func (c *Collection) Rows(ctx context.Context) ([]map[string]any, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rows, nil
}

// Records returns the materialized records for this collection, fetching and
// constructing them on first call.
func (c *Collection) Records(ctx context.Context) ([]*Record, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.records == nil && c.model != nil {
		c.records = make([]*Record, 0, len(c.rows))
		for _, row := range c.rows {
			c.records = append(c.records, c.model.NewRecord(row, nil, WithContext(c.context)))
		}
	}
	return c.records, nil
}

// Count returns the number of records in this collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	rows, err := c.Rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// At returns the record at the given index, or nil when out of range.
func (c *Collection) At(ctx context.Context, index int) (*Record, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(records) {
		return nil, nil
	}
	return records[index], nil
}

// First returns the first record in this collection, or nil when empty.
func (c *Collection) First(ctx context.Context) (*Record, error) {
	return c.At(ctx, 0)
}

// Last returns the last record in this collection, or nil when empty.
func (c *Collection) Last(ctx context.Context) (*Record, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	return c.At(ctx, len(records)-1)
}

// Get resolves a possibly dotted key against this collection, supporting the
// reserved heads "first", "last", and "count". Remaining path segments are
// forwarded into the resolved record.
func (c *Collection) Get(ctx context.Context, key string) (any, error) {
	head, rest, _ := strings.Cut(key, ".")

	var result any
	switch head {
	case "count":
		count, err := c.Count(ctx)
		if err != nil {
			return nil, err
		}
		result = count
	case "first":
		record, err := c.First(ctx)
		if err != nil {
			return nil, err
		}
		if record != nil {
			result = record
		}
	case "last":
		record, err := c.Last(ctx)
		if err != nil {
			return nil, err
		}
		if record != nil {
			result = record
		}
	default:
		return nil, &UnknownKeyError{Model: c.modelName(), Key: head}
	}

	if rest != "" && result != nil {
		target, ok := result.(Gettable)
		if !ok {
			return nil, &UnknownKeyError{Model: c.modelName(), Key: rest}
		}
		return target.Get(ctx, rest)
	}
	return result, nil
}

func (c *Collection) modelName() string {
	if c.model != nil {
		return c.model.Name
	}
	return "collection"
}
