package api

import (
	"reflect"
	"time"
)

// GuardOp enumerates the comparison operators a guard can use.
type GuardOp string

const (
	OpAlways GuardOp = "always"
	OpExists GuardOp = "exists"
	OpTruthy GuardOp = "truthy"
	OpEq     GuardOp = "eq"
	OpNe     GuardOp = "ne"
	OpGt     GuardOp = "gt"
	OpGte    GuardOp = "gte"
	OpLt     GuardOp = "lt"
	OpLte    GuardOp = "lte"
)

func validGuardOp(op GuardOp) bool {
	switch op {
	case OpAlways, OpExists, OpTruthy, OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Guard is a boolean predicate over run context used to select an outgoing
// edge. Guards are plain data rather than closures so graph definitions
// serialize (store persistence, JSON over HTTP) and routing stays auditable
// from the definition alone.
type Guard struct {
	Op    GuardOp `json:"op"`
	Key   string  `json:"key,omitempty"`
	Value any     `json:"value,omitempty"`
}

// RequiresKey returns the context key this guard reads, if any. The engine
// verifies required keys are present before routing, so a missing key
// surfaces as a MappingError rather than an unmatched route.
func (g Guard) RequiresKey() (string, bool) {
	if g.Op == OpAlways || g.Key == "" {
		return "", false
	}
	return g.Key, true
}

// Eval evaluates the guard against a context snapshot. Evaluation is pure:
// the same snapshot always yields the same result.
func (g Guard) Eval(values map[string]any) bool {
	switch g.Op {
	case OpAlways:
		return true
	case OpExists:
		_, ok := values[g.Key]
		return ok
	case OpTruthy:
		return truthy(values[g.Key])
	case OpEq:
		return looseEqual(values[g.Key], g.Value)
	case OpNe:
		return !looseEqual(values[g.Key], g.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := asFloat(values[g.Key])
		b, bok := asFloat(g.Value)
		if !aok || !bok {
			return false
		}
		switch g.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		case OpLte:
			return a <= b
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return true
}

// looseEqual compares numerically when both sides are numbers, so a graph
// authored in JSON (where every number decodes as float64) still matches
// integer values produced by Go handlers.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// EdgeSpec connects two nodes. Guards are tried in declaration order and
// the first one that evaluates true selects the edge; an empty guard list
// is equivalent to a single always guard.
type EdgeSpec struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Guards []Guard `json:"guards,omitempty"`
}

func (e EdgeSpec) matches(values map[string]any) bool {
	if len(e.Guards) == 0 {
		return true
	}
	for _, g := range e.Guards {
		if g.Eval(values) {
			return true
		}
	}
	return false
}

// FailureKind selects how a node reacts to a tool failure.
type FailureKind string

const (
	// FailRun fails the whole run. This is the default policy.
	FailRun FailureKind = "FAIL_RUN"
	// RetryNode re-invokes the tool per the attached RetryPolicy; exhausting
	// the attempts degrades to FailRun.
	RetryNode FailureKind = "RETRY"
	// SkipToNode abandons this node and routes directly to the named node.
	SkipToNode FailureKind = "SKIP_TO"
)

// RetryPolicy controls how a tool invocation is retried when it fails.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the second attempt; each further delay
// is multiplied by BackoffMultiplier (default 2.0) and capped at MaxBackoff
// when set. A zero InitialBackoff retries immediately.
type RetryPolicy struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialBackoff    time.Duration `json:"initial_backoff,omitempty"`
	MaxBackoff        time.Duration `json:"max_backoff,omitempty"`
	BackoffMultiplier float64       `json:"backoff_multiplier,omitempty"`
}

// FailurePolicy is a node's declared reaction to tool failure.
type FailurePolicy struct {
	Kind   FailureKind  `json:"kind"`
	Retry  *RetryPolicy `json:"retry,omitempty"`
	SkipTo string       `json:"skip_to,omitempty"`
}

// NodeSpec is one unit of work in a graph: either a tool invocation or a
// pure routing step (empty Tool). Inputs maps tool argument names to the
// context keys that feed them; Outputs maps tool result keys to the context
// keys they are written back to. Immutable once the graph is published.
type NodeSpec struct {
	ID         string            `json:"id"`
	Tool       string            `json:"tool,omitempty"`
	Inputs     map[string]string `json:"inputs,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Terminal   bool              `json:"terminal,omitempty"`
	AwaitInput bool              `json:"await_input,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	OnFailure  *FailurePolicy    `json:"on_failure,omitempty"`
}

// Pure reports whether the node is a routing-only step.
func (n NodeSpec) Pure() bool { return n.Tool == "" }

// WorkflowGraph is the static definition of a pipeline: nodes, edges, and
// routing predicates, with one designated start node and one or more
// terminal nodes.
type WorkflowGraph struct {
	Name    string     `json:"name"`
	Version string     `json:"version,omitempty"`
	Start   string     `json:"start"`
	Nodes   []NodeSpec `json:"nodes"`
	Edges   []EdgeSpec `json:"edges,omitempty"`
}

// Node returns the node with the given id.
func (g WorkflowGraph) Node(id string) (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// Outgoing returns the edges leaving node id in declaration order.
func (g WorkflowGraph) Outgoing(id string) []EdgeSpec {
	var out []EdgeSpec
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}
