package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDispatchesAsynchronously(t *testing.T) {
	done := make(chan any, 1)
	On(EventDelete, func(payload any) {
		done <- payload
	})

	payload := &DeletePayload{Count: 3}
	Emit(EventDelete, payload)

	select {
	case got := <-done:
		assert.Same(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("event handler was not invoked")
	}
}

func TestSaveEmitsEvent(t *testing.T) {
	done := make(chan *SavePayload, 4)
	On(EventSave, func(payload any) {
		if p, ok := payload.(*SavePayload); ok && p.Model.Name == "event_save_test" {
			done <- p
		}
	})

	store := &stubStore{saveValues: map[string]any{"id": 1}}
	model := userModel(store)
	model.Name = "event_save_test"

	r := model.NewRecord(nil, map[string]any{"username": "bob"})
	_, err := r.Save(context.Background())
	require.NoError(t, err)

	select {
	case p := <-done:
		assert.Same(t, r, p.Record)
		assert.Equal(t, map[string]any{"id": 1}, p.Values)
	case <-time.After(time.Second):
		t.Fatal("save event was not emitted")
	}
}

func TestFetchEmitsEvent(t *testing.T) {
	done := make(chan *FetchPayload, 4)
	On(EventFetch, func(payload any) {
		if p, ok := payload.(*FetchPayload); ok && p.Model.Name == "event_fetch_test" {
			done <- p
		}
	})

	store := &stubStore{rows: []map[string]any{{"id": 1}}}
	model := userModel(store)
	model.Name = "event_fetch_test"

	_, err := model.Select().Rows(context.Background())
	require.NoError(t, err)

	select {
	case p := <-done:
		assert.Len(t, p.Rows, 1)
	case <-time.After(time.Second):
		t.Fatal("fetch event was not emitted")
	}
}
