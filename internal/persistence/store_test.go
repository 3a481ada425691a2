package persistence

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/volvoxlabs/weft/pkg/api"
)

func instanceStoreFactories(t *testing.T) map[string]func(t *testing.T) InstanceStore {
	t.Helper()
	return map[string]func(t *testing.T) InstanceStore{
		"in-memory": func(t *testing.T) InstanceStore {
			return NewInMemoryStore()
		},
		"sqlite": func(t *testing.T) InstanceStore {
			db, err := sql.Open("sqlite", ":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			store, err := NewSQLiteInstanceStore(db)
			if err != nil {
				t.Fatalf("create sqlite store: %v", err)
			}
			return store
		},
	}
}

func sampleInstance(id string) *api.WorkflowInstance {
	now := time.Now()
	return &api.WorkflowInstance{
		ID:           id,
		Graph:        "proposal-pipeline",
		GraphVersion: "v1",
		Current:      "search",
		Status:       api.StatusRunning,
		Context: api.NewContext(map[string]any{
			"query": "geothermal heating",
			"limit": 5,
			"tags":  []string{"energy", "infra"},
		}),
		History: []api.StepRecord{
			{Node: "search", At: now.Add(-time.Second)},
		},
		CreatedAt: now.Add(-2 * time.Second),
		UpdatedAt: now,
	}
}

func TestInstanceStoreRoundTrip(t *testing.T) {
	for name, factory := range instanceStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			inst := sampleInstance("run-1")
			if err := store.SaveInstance(inst); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.GetInstance("run-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != "run-1" || got.Graph != "proposal-pipeline" || got.GraphVersion != "v1" {
				t.Fatalf("unexpected identity fields: %+v", got)
			}
			if got.Status != api.StatusRunning || got.Current != "search" {
				t.Fatalf("unexpected state: status=%s current=%s", got.Status, got.Current)
			}

			query, err := got.Context.Get("query")
			if err != nil {
				t.Fatalf("context query: %v", err)
			}
			if query != "geothermal heating" {
				t.Fatalf("context query = %v", query)
			}
			if len(got.History) != 1 || got.History[0].Node != "search" {
				t.Fatalf("unexpected history: %+v", got.History)
			}
		})
	}
}

func TestInstanceStoreUpdate(t *testing.T) {
	for name, factory := range instanceStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			inst := sampleInstance("run-2")
			if err := store.SaveInstance(inst); err != nil {
				t.Fatalf("save: %v", err)
			}

			inst.Status = api.StatusSucceeded
			inst.Current = "summarize"
			inst.History = append(inst.History, api.StepRecord{Node: "summarize", At: time.Now()})
			inst.UpdatedAt = time.Now()
			if err := store.UpdateInstance(inst); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := store.GetInstance("run-2")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != api.StatusSucceeded {
				t.Fatalf("status = %s, want SUCCEEDED", got.Status)
			}
			if len(got.History) != 2 {
				t.Fatalf("history length = %d, want 2", len(got.History))
			}
			// Terminal runs come back with a frozen context.
			if err := got.Context.Set("k", "v"); !errors.Is(err, api.ErrContextFrozen) {
				t.Fatalf("set on terminal context: %v, want ErrContextFrozen", err)
			}
		})
	}
}

func TestInstanceStoreUpdateMissing(t *testing.T) {
	for name, factory := range instanceStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			err := store.UpdateInstance(sampleInstance("ghost"))
			if !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("update missing: %v, want ErrInstanceNotFound", err)
			}
		})
	}
}

func TestInstanceStoreGetMissing(t *testing.T) {
	for name, factory := range instanceStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			if _, err := store.GetInstance("nope"); !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("get missing: %v, want ErrInstanceNotFound", err)
			}
		})
	}
}

func TestInstanceStoreList(t *testing.T) {
	for name, factory := range instanceStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			a := sampleInstance("run-a")
			b := sampleInstance("run-b")
			b.Graph = "roadmap-pipeline"
			c := sampleInstance("run-c")
			c.Status = api.StatusFailed

			for _, inst := range []*api.WorkflowInstance{a, b, c} {
				if err := store.SaveInstance(inst); err != nil {
					t.Fatalf("save %s: %v", inst.ID, err)
				}
			}

			all, err := store.ListInstances(InstanceFilter{})
			if err != nil {
				t.Fatalf("list all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("list all = %d, want 3", len(all))
			}

			byGraph, err := store.ListInstances(InstanceFilter{Graph: "roadmap-pipeline"})
			if err != nil {
				t.Fatalf("list by graph: %v", err)
			}
			if len(byGraph) != 1 || byGraph[0].ID != "run-b" {
				t.Fatalf("list by graph: %+v", byGraph)
			}

			byStatus, err := store.ListInstances(InstanceFilter{Status: api.StatusFailed})
			if err != nil {
				t.Fatalf("list by status: %v", err)
			}
			if len(byStatus) != 1 || byStatus[0].ID != "run-c" {
				t.Fatalf("list by status: %+v", byStatus)
			}
		})
	}
}

func TestInstanceStoreDelete(t *testing.T) {
	for name, factory := range instanceStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			if err := store.SaveInstance(sampleInstance("run-d")); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.DeleteInstance("run-d"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.GetInstance("run-d"); !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("get after delete: %v, want ErrInstanceNotFound", err)
			}
			if err := store.DeleteInstance("run-d"); !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("double delete: %v, want ErrInstanceNotFound", err)
			}
		})
	}
}

func TestGraphStoreVersions(t *testing.T) {
	store := NewInMemoryStore()

	g1 := api.WorkflowGraph{Name: "pipeline", Version: "v1", Start: "a"}
	g2 := api.WorkflowGraph{Name: "pipeline", Version: "v2", Start: "a"}

	if err := store.SaveGraph(g1); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if err := store.SaveGraph(g1); !errors.Is(err, ErrGraphExists) {
		t.Fatalf("duplicate save: %v, want ErrGraphExists", err)
	}

	got, err := store.LatestGraph("pipeline")
	if err != nil {
		t.Fatalf("latest with one version: %v", err)
	}
	if got.Version != "v1" {
		t.Fatalf("latest version = %s, want v1", got.Version)
	}

	if err := store.SaveGraph(g2); err != nil {
		t.Fatalf("save v2: %v", err)
	}
	if _, err := store.LatestGraph("pipeline"); !errors.Is(err, ErrAmbiguousVersion) {
		t.Fatalf("latest with two versions: %v, want ErrAmbiguousVersion", err)
	}

	got, err = store.GetGraph("pipeline", "v2")
	if err != nil {
		t.Fatalf("get v2: %v", err)
	}
	if got.Version != "v2" {
		t.Fatalf("get v2 returned %s", got.Version)
	}

	versions, err := store.ListGraphVersions("pipeline")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %v, want 2 entries", versions)
	}

	if _, err := store.GetGraph("missing", "v1"); !errors.Is(err, ErrGraphNotFound) {
		t.Fatalf("get missing graph: %v, want ErrGraphNotFound", err)
	}
	if _, err := store.LatestGraph("missing"); !errors.Is(err, ErrGraphNotFound) {
		t.Fatalf("latest missing graph: %v, want ErrGraphNotFound", err)
	}
}
