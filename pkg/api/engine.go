package api

import "context"

// Engine is the coordination layer's core API: it publishes graphs, drives
// runs through them, and answers queries about run state.
//
// All methods returning a *WorkflowInstance return a point-in-time snapshot
// that is safe to read while the run keeps executing.
type Engine interface {
	// RegisterGraph validates and publishes a graph definition. A graph that
	// fails validation is rejected with a *GraphInvalidError and is never
	// accepted for execution.
	RegisterGraph(g WorkflowGraph) error

	// Run starts a run and drives it synchronously until it reaches a
	// terminal or suspended status. version may be empty when exactly one
	// version of the graph is published.
	Run(ctx context.Context, graph, version string, input map[string]any) (*WorkflowInstance, error)

	// Submit creates a run and schedules it on its own goroutine, returning
	// immediately with the run id and initial status.
	Submit(ctx context.Context, graph, version string, input map[string]any) (*WorkflowInstance, error)

	// Resume continues a SUSPENDED run after merging the supplied input into
	// its context. It drives the run synchronously, like Run.
	Resume(ctx context.Context, runID string, input map[string]any) (*WorkflowInstance, error)

	// Cancel requests cooperative cancellation. A running instance observes
	// the request at its next step boundary; an in-flight tool call is never
	// interrupted. Suspended and pending runs cancel immediately.
	Cancel(ctx context.Context, runID string) error

	// GetRun returns the current snapshot of a run.
	GetRun(ctx context.Context, runID string) (*WorkflowInstance, error)

	// ListRuns returns runs matching the given options.
	// If options are zero-valued, all runs are returned.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*WorkflowInstance, error)

	// ListEvents returns a run's append-only event history in order.
	ListEvents(ctx context.Context, runID string) ([]ExecutionEvent, error)

	// PurgeRun deletes a terminal run and its history.
	PurgeRun(ctx context.Context, runID string) error
}
