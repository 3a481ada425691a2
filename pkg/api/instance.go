package api

import "time"

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuspended Status = "SUSPENDED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status ends the run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StepRecord is one entry of a run's step history: a node visit that
// advanced the run, with its completion time. Err is set when the visit
// advanced via a SKIP_TO failure policy rather than a success.
type StepRecord struct {
	Node string    `json:"node"`
	At   time.Time `json:"at"`
	Err  string    `json:"err,omitempty"`
}

// WorkflowInstance is one execution of a WorkflowGraph from start to a
// terminal status. It is created when a run is submitted, mutated only by
// the execution engine, and retained until explicitly purged.
type WorkflowInstance struct {
	ID           string       `json:"id"`
	Graph        string       `json:"graph"`
	GraphVersion string       `json:"graph_version,omitempty"`
	Current      string       `json:"current"`
	Status       Status       `json:"status"`
	Context      *Context     `json:"-"`
	History      []StepRecord `json:"history,omitempty"`
	Err          error        `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to callers while the run is still
// executing. The context is copied by snapshot, so the clone does not see
// later writes.
func (inst *WorkflowInstance) Clone() *WorkflowInstance {
	if inst == nil {
		return nil
	}
	out := *inst
	if inst.Context != nil {
		out.Context = NewContext(inst.Context.Snapshot())
		if inst.Context.Frozen() {
			out.Context.Freeze()
		}
	}
	out.History = make([]StepRecord, len(inst.History))
	copy(out.History, inst.History)
	return &out
}

// RunListOptions controls how runs are listed. Zero values mean "no filter"
// for that field.
type RunListOptions struct {
	// Graph, if non-empty, limits results to runs of the given graph.
	Graph string

	// Status, if non-empty, limits results to runs with the given status.
	Status Status
}
