// Package core provides the fundamental building blocks of the orb3 ORM.
// This file defines lifecycle events emitted after store operations, with a
// global subscription and emission mechanism.
package core

import "sync"

// Event represents a lifecycle event that can be emitted by the ORM.
type Event string

const (
	// EventSave is emitted after a record's pending changes are persisted.
	EventSave Event = "save"
	// EventDelete is emitted after a record is deleted.
	EventDelete Event = "delete"
	// EventFetch is emitted after a lookup returns rows from a store.
	EventFetch Event = "fetch"
)

// EventHandler defines the callback signature for event listeners. The
// payload is a *SavePayload, *DeletePayload, or *FetchPayload depending on
// the event type.
type EventHandler func(payload any)

// EventDispatcher manages a list of event handlers and dispatches them when
// the corresponding events are emitted.
type EventDispatcher struct {
	mutex       sync.RWMutex
	handlerList map[Event][]EventHandler
}

// globalDispatcher is the shared event dispatcher used by the ORM.
var globalDispatcher = &EventDispatcher{
	handlerList: make(map[Event][]EventHandler),
}

// On registers an EventHandler for a specific Event.
//
// Example:
//
//	core.On(core.EventSave, func(payload any) {
//		if p, ok := payload.(*core.SavePayload); ok {
//			log.Printf("saved %s record", p.Model.Name)
//		}
//	})
func On(event Event, handler EventHandler) {
	globalDispatcher.mutex.Lock()
	defer globalDispatcher.mutex.Unlock()
	globalDispatcher.handlerList[event] = append(globalDispatcher.handlerList[event], handler)
}

// Emit triggers all registered handlers for the given Event. Handlers are
// executed asynchronously in separate goroutines.
func Emit(event Event, payload any) {
	globalDispatcher.mutex.RLock()
	defer globalDispatcher.mutex.RUnlock()
	if hs, ok := globalDispatcher.handlerList[event]; ok {
		for _, h := range hs {
			go h(payload)
		}
	}
}

// SavePayload is passed to EventSave handlers and carried through the
// middleware chain for save operations. Values holds the authoritative field
// values returned by the store.
type SavePayload struct {
	Model   *Model
	Record  *Record
	Context *Context
	Values  map[string]any
}

// DeletePayload is passed to EventDelete handlers and carried through the
// middleware chain for delete operations.
type DeletePayload struct {
	Model   *Model
	Record  *Record
	Context *Context
	Count   int64
}

// FetchPayload is passed to EventFetch handlers and carried through the
// middleware chain for lookups. Rows is populated by the store call; a
// middleware may populate it early to short-circuit the lookup.
type FetchPayload struct {
	Model   *Model
	Context *Context
	Rows    []map[string]any
}
