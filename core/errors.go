// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the error taxonomy surfaced by the core. Store backends
// report their own failures, which propagate through unchanged.
package core

import "fmt"

// UnknownKeyError indicates that a get/set addressed a field or collector
// name not declared by the model's schema.
type UnknownKeyError struct {
	Model string
	Key   string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("%s: unknown key %q", e.Model, e.Key)
}

// ReadOnlyError indicates that a mutating operation was attempted against a
// view-backed (non-writable) model. The caller must not retry without
// changing the operation.
type ReadOnlyError struct {
	Model string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s: model is read-only", e.Model)
}

// InvalidKeyError indicates that Fetch received a composite key whose arity
// does not match the schema's declared key fields.
type InvalidKeyError struct {
	Model string
	Want  int
	Got   int
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("%s: invalid key: want %d key values, got %d", e.Model, e.Want, e.Got)
}
