// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines the middleware system, which allows cross-cutting
// concerns (logging, caching, auditing) to be applied to store operations.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Operation represents the type of store operation flowing through the
// middleware chain.
type Operation string

const (
	// OperationSave corresponds to persisting a record's pending changes.
	OperationSave Operation = "save"
	// OperationDelete corresponds to deleting a record.
	OperationDelete Operation = "delete"
	// OperationFetch corresponds to a lookup returning rows.
	OperationFetch Operation = "fetch"
)

// Handler is the function signature executed by the operation pipeline. The
// payload is the same value later emitted with the operation's event
// (*SavePayload, *DeletePayload, *FetchPayload).
type Handler func(ctx context.Context, op Operation, payload any) error

// Middleware is a function that wraps a Handler with additional logic.
// Middlewares are chained globally and executed for every operation,
// following the decorator pattern.
type Middleware func(next Handler) Handler

var (
	globalMiddlewareMutex sync.RWMutex
	globalMiddlewareList  []Middleware
)

// Use registers a new global middleware, applied to all operations.
// Middlewares are executed in reverse registration order: the most recently
// registered middleware runs first.
func Use(mw Middleware) {
	globalMiddlewareMutex.Lock()
	defer globalMiddlewareMutex.Unlock()
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// runMiddlewares applies the chain of middlewares to the final handler.
// Wrapping front to back leaves the last registered middleware outermost,
// so it runs first.
func runMiddlewares(final Handler) Handler {
	globalMiddlewareMutex.RLock()
	defer globalMiddlewareMutex.RUnlock()
	h := final
	for i := 0; i < len(globalMiddlewareList); i++ {
		h = globalMiddlewareList[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the global middleware
// chain. The exec function contains the core logic of the operation and is
// wrapped by the registered middlewares.
func dispatchOperation(ctx context.Context, op Operation, payload any, exec func() error) error {
	handler := runMiddlewares(func(ctx context.Context, op Operation, payload any) error {
		return exec()
	})
	return handler(ctx, op, payload)
}

// LoggingMiddleware logs all operations passing through the ORM with
// structured output, including execution time and failures. A nil logger
// falls back to slog.Default().
//
// Example:
//
//	core.Use(core.LoggingMiddleware(slog.Default()))
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			start := time.Now()
			err := next(ctx, op, payload)
			attrs := []any{
				slog.String("op", string(op)),
				slog.String("model", payloadModelName(payload)),
				slog.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.ErrorContext(ctx, "orb3 operation failed", attrs...)
				return err
			}
			logger.DebugContext(ctx, "orb3 operation", attrs...)
			return nil
		}
	}
}

// payloadModelName extracts the model name from an operation payload.
func payloadModelName(payload any) string {
	switch p := payload.(type) {
	case *SavePayload:
		return p.Model.Name
	case *DeletePayload:
		return p.Model.Name
	case *FetchPayload:
		return p.Model.Name
	}
	return ""
}

// Cache defines the interface for pluggable caching mechanisms. A Cache
// stores arbitrary values with a TTL and can be used by middlewares to avoid
// hitting the store repeatedly.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// memoryCache is a simple in-memory Cache implementation using a map
// protected by a RWMutex, with per-entry expiration.
type memoryCache struct {
	data  map[string]memoryEntry
	mutex sync.RWMutex
}

type memoryEntry struct {
	value      any
	expiration time.Time
}

// NewMemoryCache creates a new in-memory Cache instance.
func NewMemoryCache() Cache {
	return &memoryCache{
		data: make(map[string]memoryEntry),
	}
}

// Get retrieves a value from the cache by key. It returns false if the key
// does not exist or is expired.
func (c *memoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !entry.expiration.IsZero() && time.Now().After(entry.expiration) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in the cache with the given TTL. If TTL is 0 the entry
// does not expire.
func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.data[key] = memoryEntry{value: value, expiration: exp}
}

// CacheMiddleware adds caching for fetch operations. Rows are cached keyed by
// model and lookup context; a repeated lookup within the TTL window is served
// from the cache without hitting the store. A ttl of zero or less falls back
// to 30 seconds.
//
// Example:
//
//	cache := core.NewMemoryCache()
//	core.Use(core.CacheMiddleware(cache, time.Minute))
func CacheMiddleware(cache Cache, ttl time.Duration) Middleware {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			p, ok := payload.(*FetchPayload)
			if op != OperationFetch || !ok {
				return next(ctx, op, payload)
			}

			key := fetchCacheKey(p)
			if cached, hit := cache.Get(key); hit {
				if rows, ok := cached.([]map[string]any); ok {
					p.Rows = rows
					return nil
				}
			}

			err := next(ctx, op, payload)
			if err == nil {
				cache.Set(key, p.Rows, ttl)
			}
			return err
		}
	}
}

// fetchCacheKey derives a stable cache key from the lookup's model and the
// context options that affect the result set.
func fetchCacheKey(p *FetchPayload) string {
	c := p.Context
	return fmt.Sprintf("%s|%s|%v|%v|%v|%d|%d|%s|%s|%v|%s",
		p.Model.Name, predicateKey(c.Where), c.Fields, c.Distinct, c.Order,
		c.Limit(), c.Start(), c.Namespace, c.Locale, c.Scope, c.Returning)
}

func predicateKey(p Predicate) string {
	if p == nil || p.IsNull() {
		return "<null>"
	}
	return fmt.Sprint(p)
}
