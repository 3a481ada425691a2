package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/volvoxlabs/weft/pkg/api"
)

func eventStoreFactories(t *testing.T) map[string]func(t *testing.T) EventStore {
	t.Helper()
	return map[string]func(t *testing.T) EventStore{
		"in-memory": func(t *testing.T) EventStore {
			return NewMemoryEventStore()
		},
		"sqlite": func(t *testing.T) EventStore {
			db, err := sql.Open("sqlite", ":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			store, err := NewSQLiteEventStore(db)
			if err != nil {
				t.Fatalf("create sqlite event store: %v", err)
			}
			return store
		},
	}
}

func TestEventStoreAppendAndList(t *testing.T) {
	for name, factory := range eventStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			events := []api.ExecutionEvent{
				{RunID: "run-1", Kind: api.EventNodeStarted, Node: "search", Attempt: 1, At: time.Now()},
				{RunID: "run-1", Kind: api.EventNodeSucceeded, Node: "search", Attempt: 1, At: time.Now()},
				{RunID: "run-1", Kind: api.EventRunSucceeded, At: time.Now()},
				{RunID: "run-2", Kind: api.EventNodeStarted, Node: "search", Attempt: 1, At: time.Now()},
			}
			for _, ev := range events {
				if err := store.AppendEvent(ctx, ev); err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			got, err := store.ListEvents(ctx, "run-1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("run-1 events = %d, want 3", len(got))
			}
			// Append order is preserved.
			wantKinds := []api.EventKind{api.EventNodeStarted, api.EventNodeSucceeded, api.EventRunSucceeded}
			for i, kind := range wantKinds {
				if got[i].Kind != kind {
					t.Fatalf("event %d kind = %s, want %s", i, got[i].Kind, kind)
				}
			}

			other, err := store.ListEvents(ctx, "run-2")
			if err != nil {
				t.Fatalf("list run-2: %v", err)
			}
			if len(other) != 1 {
				t.Fatalf("run-2 events = %d, want 1", len(other))
			}
		})
	}
}

func TestEventStoreDelete(t *testing.T) {
	for name, factory := range eventStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			ev := api.ExecutionEvent{RunID: "run-1", Kind: api.EventRunSucceeded, At: time.Now()}
			if err := store.AppendEvent(ctx, ev); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := store.DeleteEvents(ctx, "run-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			got, err := store.ListEvents(ctx, "run-1")
			if err != nil {
				t.Fatalf("list after delete: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("events after delete = %d, want 0", len(got))
			}
		})
	}
}
