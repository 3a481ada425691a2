package weft

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/volvoxlabs/weft/internal/engine"
	"github.com/volvoxlabs/weft/internal/persistence"
	"github.com/volvoxlabs/weft/pkg/api"
	"github.com/volvoxlabs/weft/pkg/registry"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowGraph        = api.WorkflowGraph
	NodeSpec             = api.NodeSpec
	EdgeSpec             = api.EdgeSpec
	Guard                = api.Guard
	WorkflowInstance     = api.WorkflowInstance
	StepRecord           = api.StepRecord
	RunListOptions       = api.RunListOptions
	Status               = api.Status
	ExecutionEvent       = api.ExecutionEvent
	EventKind            = api.EventKind
	EventSink            = api.EventSink
	ToolDescriptor       = api.ToolDescriptor
	Schema               = api.Schema
	FieldSpec            = api.FieldSpec
	Handler              = api.Handler
	RetryPolicy          = api.RetryPolicy
	FailurePolicy        = api.FailurePolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	Registry             = registry.Registry
)

// Re-export common constructors.

var (
	NewRegistry          = registry.New
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusSuspended = api.StatusSuspended
	StatusSucceeded = api.StatusSucceeded
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// Re-export field types for schema declarations.

const (
	FieldString = api.FieldString
	FieldNumber = api.FieldNumber
	FieldBool   = api.FieldBool
	FieldObject = api.FieldObject
	FieldList   = api.FieldList
	FieldAny    = api.FieldAny
)

// EngineOptions tunes an engine beyond its storage backend. Zero values
// mean defaults: noop observer, noop sink, 30s tool timeout.
type EngineOptions struct {
	Observer       Observer
	Sink           EventSink
	DefaultTimeout time.Duration
}

// Engine constructors. These wrap the internal/engine package so external
// callers never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(reg *Registry) Engine {
	return engine.NewInMemoryEngine(reg)
}

// NewInMemoryEngineWithOptions returns an in-memory Engine with the given
// options.
func NewInMemoryEngineWithOptions(reg *Registry, opts EngineOptions) Engine {
	mem := persistence.NewInMemoryStore()
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Graphs:    mem,
			Instances: mem,
			Events:    persistence.NewMemoryEventStore(),
		},
		Registry:       reg,
		Observer:       opts.Observer,
		Sink:           opts.Sink,
		DefaultTimeout: opts.DefaultTimeout,
	})
}

// NewSQLiteEngine returns an Engine that persists runs and events in a
// SQLite database. Graph definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB, reg *Registry) (Engine, error) {
	return engine.NewSQLiteEngine(db, reg)
}

// NewSQLiteEngineWithOptions returns a SQLite-backed Engine with the given
// options.
func NewSQLiteEngineWithOptions(db *sql.DB, reg *Registry, opts EngineOptions) (Engine, error) {
	inst, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Graphs:    persistence.NewInMemoryStore(),
			Instances: inst,
			Events:    events,
		},
		Registry:       reg,
		Observer:       opts.Observer,
		Sink:           opts.Sink,
		DefaultTimeout: opts.DefaultTimeout,
	}), nil
}

// NewRedisEngine returns an Engine that persists runs in Redis.
func NewRedisEngine(client *redis.Client, reg *Registry) Engine {
	return engine.NewRedisEngine(client, reg)
}

// NewRedisEngineWithOptions returns a Redis-backed Engine with the given
// options.
func NewRedisEngineWithOptions(client *redis.Client, reg *Registry, opts EngineOptions) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Persistence: persistence.Persistence{
			Graphs:    persistence.NewInMemoryStore(),
			Instances: persistence.NewRedisInstanceStore(client, "weft:"),
			Events:    persistence.NewMemoryEventStore(),
		},
		Registry:       reg,
		Observer:       opts.Observer,
		Sink:           opts.Sink,
		DefaultTimeout: opts.DefaultTimeout,
	})
}
