// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines lifecycle hooks that allow custom logic to be executed
// before or after a record is persisted or deleted.
package core

import "context"

// PreHook represents a lifecycle hook that runs before a persistence
// operation. Hooks are registered per schema and allow validation or
// transformation before the store is reached.
type PreHook string

// PostHook represents a lifecycle hook that runs after a persistence
// operation succeeds. Hooks are registered per schema and allow actions such
// as cache invalidation or event publishing.
type PostHook string

const (
	// PreSave is executed before a record's pending changes are persisted.
	PreSave PreHook = "pre:save"
	// PreDelete is executed before a record is deleted.
	PreDelete PreHook = "pre:delete"

	// PostSave is executed after a record's pending changes are persisted.
	PostSave PostHook = "post:save"
	// PostDelete is executed after a record is deleted.
	PostDelete PostHook = "post:delete"
)

// Hook is the callback signature for lifecycle hooks.
type Hook func(ctx context.Context, record *Record) error

// RegisterPreHook registers a pre-operation hook for the schema.
func (s *Schema) RegisterPreHook(hook PreHook, fn Hook) {
	s.preHooks[hook] = append(s.preHooks[hook], fn)
}

// RegisterPostHook registers a post-operation hook for the schema.
func (s *Schema) RegisterPostHook(hook PostHook, fn Hook) {
	s.postHooks[hook] = append(s.postHooks[hook], fn)
}

// runPre executes all registered hooks for the given pre-operation token.
func (s *Schema) runPre(ctx context.Context, hook PreHook, record *Record) error {
	for _, fn := range s.preHooks[hook] {
		if err := fn(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// runPost executes all registered hooks for the given post-operation token.
func (s *Schema) runPost(ctx context.Context, hook PostHook, record *Record) error {
	for _, fn := range s.postHooks[hook] {
		if err := fn(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
