// Package engine drives workflow runs through their graphs: one node at a
// time, routing by guard evaluation, with cooperative cancellation and
// suspend/resume at node boundaries.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/volvoxlabs/weft/internal/persistence"
	"github.com/volvoxlabs/weft/pkg/api"
	"github.com/volvoxlabs/weft/pkg/registry"
)

// defaultToolTimeout bounds tool calls when neither the node nor the
// descriptor sets one.
const defaultToolTimeout = 30 * time.Second

// engineImpl is a synchronous, in-process engine. Each run executes on a
// single goroutine; concurrency exists across runs, never within one.
type engineImpl struct {
	graphs    persistence.GraphStore
	instances persistence.InstanceStore
	events    persistence.EventStore

	registry *registry.Registry
	sink     api.EventSink
	observer api.Observer

	defaultTimeout time.Duration

	mu     sync.Mutex
	active map[string]*runHandle
}

// runHandle tracks an in-flight run so Cancel can reach it.
type runHandle struct {
	cancel atomic.Bool
}

// Config describes how to construct an engine. Zero-valued optional fields
// get safe defaults (noop observer, noop sink, in-memory event store).
type Config struct {
	Persistence    persistence.Persistence
	Registry       *registry.Registry
	Sink           api.EventSink
	Observer       api.Observer
	DefaultTimeout time.Duration
}

// NewInMemoryEngine returns an Engine with all state held in memory.
func NewInMemoryEngine(reg *registry.Registry) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngine(persistence.Persistence{
		Graphs:    mem,
		Instances: mem,
		Events:    persistence.NewMemoryEventStore(),
	}, reg)
}

// NewSQLiteEngine returns an Engine that persists instances and events in
// the given SQLite database. Graph definitions remain in-memory; graphs are
// re-registered at process start.
func NewSQLiteEngine(db *sql.DB, reg *registry.Registry) (api.Engine, error) {
	inst, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{
		Graphs:    persistence.NewInMemoryStore(),
		Instances: inst,
		Events:    events,
	}, reg), nil
}

// NewRedisEngine returns an Engine that persists instances in Redis. Graph
// definitions and event history remain in-memory.
func NewRedisEngine(client *redis.Client, reg *registry.Registry) api.Engine {
	return NewEngine(persistence.Persistence{
		Graphs:    persistence.NewInMemoryStore(),
		Instances: persistence.NewRedisInstanceStore(client, "weft:"),
		Events:    persistence.NewMemoryEventStore(),
	}, reg)
}

// NewEngine returns an Engine over the given stores with default observer
// and sink.
func NewEngine(p persistence.Persistence, reg *registry.Registry) api.Engine {
	return NewEngineWithConfig(Config{
		Persistence: p,
		Registry:    reg,
	})
}

// NewEngineWithConfig creates an Engine from an explicit configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = api.NoopSink{}
	}
	events := cfg.Persistence.Events
	if events == nil {
		events = persistence.NewMemoryEventStore()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &engineImpl{
		graphs:         cfg.Persistence.Graphs,
		instances:      cfg.Persistence.Instances,
		events:         events,
		registry:       reg,
		sink:           sink,
		observer:       obs,
		defaultTimeout: timeout,
		active:         make(map[string]*runHandle),
	}
}

func (e *engineImpl) RegisterGraph(g api.WorkflowGraph) error {
	if err := g.Validate(); err != nil {
		return err
	}

	// Tool references are checked at publish time so a dangling reference
	// fails here rather than mid-run.
	for _, n := range g.Nodes {
		if n.Pure() {
			continue
		}
		if _, err := e.registry.Lookup(n.Tool); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
	}

	return e.graphs.SaveGraph(g)
}

func (e *engineImpl) Run(ctx context.Context, graph, version string, input map[string]any) (*api.WorkflowInstance, error) {
	g, err := e.resolveGraph(graph, version)
	if err != nil {
		return nil, err
	}

	inst := e.newInstance(g, input)
	if err := e.instances.SaveInstance(inst); err != nil {
		return nil, err
	}

	h := e.register(inst.ID)
	return e.drive(ctx, g, inst, h, false)
}

func (e *engineImpl) Submit(ctx context.Context, graph, version string, input map[string]any) (*api.WorkflowInstance, error) {
	g, err := e.resolveGraph(graph, version)
	if err != nil {
		return nil, err
	}

	inst := e.newInstance(g, input)
	if err := e.instances.SaveInstance(inst); err != nil {
		return nil, err
	}

	snapshot := inst.Clone()

	// The handle is registered before the goroutine starts, so Cancel can
	// always reach a submitted run.
	h := e.register(inst.ID)
	bg := context.WithoutCancel(ctx)
	go func() {
		_, _ = e.drive(bg, g, inst, h, false)
	}()

	return snapshot, nil
}

func (e *engineImpl) Resume(ctx context.Context, runID string, input map[string]any) (*api.WorkflowInstance, error) {
	inst, err := e.getInstance(runID)
	if err != nil {
		return nil, err
	}
	if inst.Status != api.StatusSuspended {
		return nil, fmt.Errorf("%w: cannot resume run %s in status %s", api.ErrRunConflict, runID, inst.Status)
	}

	g, err := e.resolveGraph(inst.Graph, inst.GraphVersion)
	if err != nil {
		return nil, err
	}

	if len(input) > 0 {
		if err := inst.Context.Merge(input); err != nil {
			return nil, err
		}
	}

	inst.Status = api.StatusRunning
	inst.UpdatedAt = time.Now()
	if err := e.instances.UpdateInstance(inst); err != nil {
		return nil, err
	}
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: inst.Current, Kind: api.EventRunResumed})

	h := e.register(inst.ID)
	return e.drive(ctx, g, inst, h, true)
}

func (e *engineImpl) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	h := e.active[runID]
	e.mu.Unlock()
	if h != nil {
		h.cancel.Store(true)
		return nil
	}

	inst, err := e.getInstance(runID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}

	// Not active: the run is parked (SUSPENDED or never picked up), so the
	// cancellation takes effect immediately.
	inst.Status = api.StatusCancelled
	inst.UpdatedAt = time.Now()
	inst.Context.Freeze()
	if err := e.instances.UpdateInstance(inst); err != nil {
		return err
	}
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Kind: api.EventRunCancelled})
	e.observer.OnRunEnd(ctx, inst, nil)
	return nil
}

func (e *engineImpl) GetRun(ctx context.Context, runID string) (*api.WorkflowInstance, error) {
	return e.getInstance(runID)
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.WorkflowInstance, error) {
	return e.instances.ListInstances(persistence.InstanceFilter{
		Graph:  opts.Graph,
		Status: opts.Status,
	})
}

func (e *engineImpl) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	return e.events.ListEvents(ctx, runID)
}

func (e *engineImpl) PurgeRun(ctx context.Context, runID string) error {
	inst, err := e.getInstance(runID)
	if err != nil {
		return err
	}
	if !inst.Status.Terminal() {
		return fmt.Errorf("%w: cannot purge run %s in status %s", api.ErrRunConflict, runID, inst.Status)
	}
	if err := e.instances.DeleteInstance(runID); err != nil {
		return err
	}
	return e.events.DeleteEvents(ctx, runID)
}

func (e *engineImpl) resolveGraph(name, version string) (api.WorkflowGraph, error) {
	var (
		g   api.WorkflowGraph
		err error
	)
	if version == "" {
		g, err = e.graphs.LatestGraph(name)
	} else {
		g, err = e.graphs.GetGraph(name, version)
	}
	if err != nil {
		if errors.Is(err, persistence.ErrGraphNotFound) {
			return api.WorkflowGraph{}, fmt.Errorf("%w: %s", api.ErrGraphNotFound, name)
		}
		return api.WorkflowGraph{}, err
	}
	return g, nil
}

func (e *engineImpl) newInstance(g api.WorkflowGraph, input map[string]any) *api.WorkflowInstance {
	now := time.Now()
	return &api.WorkflowInstance{
		ID:           uuid.NewString(),
		Graph:        g.Name,
		GraphVersion: g.Version,
		Current:      g.Start,
		Status:       api.StatusPending,
		Context:      api.NewContext(input),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (e *engineImpl) getInstance(runID string) (*api.WorkflowInstance, error) {
	inst, err := e.instances.GetInstance(runID)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrRunNotFound, runID)
		}
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) register(runID string) *runHandle {
	h := &runHandle{}
	e.mu.Lock()
	e.active[runID] = h
	e.mu.Unlock()
	return h
}

func (e *engineImpl) release(runID string) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
}

// emit records the event in the append-only store and publishes it to the
// sink. Both are fire-and-forget: event plumbing never fails a run.
func (e *engineImpl) emit(ctx context.Context, ev api.ExecutionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_ = e.events.AppendEvent(ctx, ev)
	e.sink.Publish(ev)
}
