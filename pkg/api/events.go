package api

import "time"

// EventKind identifies an execution lifecycle event.
type EventKind string

const (
	EventNodeStarted   EventKind = "NODE_STARTED"
	EventNodeSucceeded EventKind = "NODE_SUCCEEDED"
	EventNodeFailed    EventKind = "NODE_FAILED"
	EventRouted        EventKind = "ROUTED"
	EventRunSucceeded  EventKind = "RUN_SUCCEEDED"
	EventRunFailed     EventKind = "RUN_FAILED"
	EventRunCancelled  EventKind = "RUN_CANCELLED"
	EventRunSuspended  EventKind = "RUN_SUSPENDED"
	EventRunResumed    EventKind = "RUN_RESUMED"
)

// EndsRun reports whether the event kind closes a run's event stream.
// RUN_SUSPENDED does not: a suspended run resumes on the same stream.
func (k EventKind) EndsRun() bool {
	switch k {
	case EventRunSucceeded, EventRunFailed, EventRunCancelled:
		return true
	}
	return false
}

// ExecutionEvent is one immutable record of a run's execution. Events are
// append-only and ordered per run. Detail carries a small human-oriented
// summary (routed target, error string); large payloads stay in the run
// context, not here.
type ExecutionEvent struct {
	RunID   string    `json:"run_id"`
	Node    string    `json:"node,omitempty"`
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// EventSink receives execution events from the engine. Publish is
// fire-and-forget: implementations must never block and must never fail
// the run on a slow or absent subscriber.
type EventSink interface {
	Publish(ev ExecutionEvent)
}

// NoopSink discards all events. It is the default when no sink is configured.
type NoopSink struct{}

func (NoopSink) Publish(ExecutionEvent) {}
