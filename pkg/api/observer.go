package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the execution engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay run execution.
type Observer interface {
	// OnRunStart is called once when a run first transitions to RUNNING,
	// before the start node executes.
	OnRunStart(ctx context.Context, inst *WorkflowInstance)

	// OnRunEnd is called when a run reaches any terminal status. err is nil
	// unless the run failed.
	OnRunEnd(ctx context.Context, inst *WorkflowInstance, err error)

	// OnNodeStart is called before a node executes.
	OnNodeStart(ctx context.Context, inst *WorkflowInstance, node string)

	// OnNodeEnd is called after a node's tool invocation returns, for both
	// successes and failures (err != nil), once per attempt.
	OnNodeEnd(ctx context.Context, inst *WorkflowInstance, node string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, inst *WorkflowInstance)               {}
func (NoopObserver) OnRunEnd(ctx context.Context, inst *WorkflowInstance, err error)      {}
func (NoopObserver) OnNodeStart(ctx context.Context, inst *WorkflowInstance, node string) {}
func (NoopObserver) OnNodeEnd(ctx context.Context, inst *WorkflowInstance, node string, err error, d time.Duration) {
}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnRunEnd(ctx context.Context, inst *WorkflowInstance, err error) {
	for _, o := range c.observers {
		o.OnRunEnd(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, inst *WorkflowInstance, node string) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, inst, node)
	}
}

func (c *CompositeObserver) OnNodeEnd(ctx context.Context, inst *WorkflowInstance, node string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeEnd(ctx, inst, node, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / node lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("graph", inst.Graph),
		slog.String("run_id", inst.ID),
	)
}

func (o *LoggingObserver) OnRunEnd(ctx context.Context, inst *WorkflowInstance, err error) {
	if err != nil {
		o.Logger.ErrorContext(ctx, "run_end",
			slog.String("graph", inst.Graph),
			slog.String("run_id", inst.ID),
			slog.String("status", string(inst.Status)),
			slog.Any("error", err),
		)
		return
	}
	o.Logger.InfoContext(ctx, "run_end",
		slog.String("graph", inst.Graph),
		slog.String("run_id", inst.ID),
		slog.String("status", string(inst.Status)),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, inst *WorkflowInstance, node string) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("graph", inst.Graph),
		slog.String("run_id", inst.ID),
		slog.String("node", node),
	)
}

func (o *LoggingObserver) OnNodeEnd(ctx context.Context, inst *WorkflowInstance, node string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_end",
		slog.String("graph", inst.Graph),
		slog.String("run_id", inst.ID),
		slog.String("node", node),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted       atomic.Int64
	runsSucceeded     atomic.Int64
	runsFailed        atomic.Int64
	nodesCompleted    atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsSucceeded int64
	RunsFailed    int64
	RunsInFlight  int64

	NodesCompleted  int64
	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, inst *WorkflowInstance) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunEnd(ctx context.Context, inst *WorkflowInstance, err error) {
	if err != nil || inst.Status == StatusFailed {
		m.runsFailed.Add(1)
		return
	}
	m.runsSucceeded.Add(1)
}

func (m *BasicMetrics) OnNodeEnd(ctx context.Context, inst *WorkflowInstance, node string, err error, d time.Duration) {
	// Only count successful attempts for average duration.
	if err == nil {
		m.nodesCompleted.Add(1)
		m.totalNodeDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	succeeded := m.runsSucceeded.Load()
	failed := m.runsFailed.Load()
	nodes := m.nodesCompleted.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if nodes > 0 {
		avg = time.Duration(totalNs / nodes)
	}

	return BasicMetricsSnapshot{
		RunsStarted:     started,
		RunsSucceeded:   succeeded,
		RunsFailed:      failed,
		RunsInFlight:    started - succeeded - failed,
		NodesCompleted:  nodes,
		AvgNodeDuration: avg,
	}
}
