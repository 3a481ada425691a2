package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTool is returned by the registry when no descriptor is
	// registered under the requested name.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrContextFrozen is returned by context writes after the owning run
	// reached a terminal status.
	ErrContextFrozen = errors.New("run context is read-only")

	// ErrToolTimeout marks a tool call that exceeded its bounded timeout.
	// It is always wrapped in a ToolExecutionError, so callers can use
	// errors.Is(err, ErrToolTimeout) to distinguish timeouts from other
	// handler failures.
	ErrToolTimeout = errors.New("tool call timed out")

	// ErrRunNotFound is returned when a run id does not resolve to an instance.
	ErrRunNotFound = errors.New("run not found")

	// ErrGraphNotFound is returned when a graph name+version is unknown.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrRunConflict is returned when an operation does not apply to the
	// run's current status, e.g. resuming a run that is not suspended.
	ErrRunConflict = errors.New("run status conflict")
)

// MissingKeyError is returned by Context.Get for absent keys.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("context key %q is not set", e.Key)
}

// GraphInvalidError rejects a graph at publish time. A graph that fails
// validation is never accepted for execution, so no run ever observes one
// of these.
type GraphInvalidError struct {
	Graph      string
	Violations []string
}

func (e *GraphInvalidError) Error() string {
	return fmt.Sprintf("graph %q is invalid: %s", e.Graph, strings.Join(e.Violations, "; "))
}

// ValidationError rejects a tool descriptor at registration time.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Reason)
}

// SchemaMismatchError reports arguments or results that do not satisfy a
// tool's declared schema. Direction is "input" when the caller supplied bad
// arguments and "output" when the handler returned a result that violates
// its own contract (tool is buggy, as opposed to a runtime failure).
type SchemaMismatchError struct {
	Tool      string
	Direction string
	Field     string
	Reason    string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tool %q %s field %q: %s", e.Tool, e.Direction, e.Field, e.Reason)
	}
	return fmt.Sprintf("tool %q %s: %s", e.Tool, e.Direction, e.Reason)
}

// MappingError reports a node whose input mapping or routing guards require
// a context key that is absent at execution time.
type MappingError struct {
	Node string
	Key  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("node %q requires context key %q", e.Node, e.Key)
}

// ToolExecutionError wraps a handler-reported failure (including timeouts)
// with the node and tool it occurred on. The cause is opaque to the engine;
// it is retryable or not purely according to the node's failure policy.
type ToolExecutionError struct {
	Tool    string
	Node    string
	Attempt int
	Cause   error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q at node %q (attempt %d): %v", e.Tool, e.Node, e.Attempt, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// NoMatchingRouteError reports a node whose outgoing guards all evaluated
// false. An unrouted state is a workflow authoring bug, so this is always
// fatal to the run rather than a silent skip.
type NoMatchingRouteError struct {
	Node string
}

func (e *NoMatchingRouteError) Error() string {
	return fmt.Sprintf("no outgoing edge of node %q matched the current context", e.Node)
}

// ErrorKind classifies err into the engine's failure taxonomy for reporting.
// It returns the empty string for nil and "internal" for anything outside
// the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		graphErr   *GraphInvalidError
		valErr     *ValidationError
		schemaErr  *SchemaMismatchError
		mappingErr *MappingError
		execErr    *ToolExecutionError
		routeErr   *NoMatchingRouteError
	)
	switch {
	case errors.As(err, &graphErr):
		return "GraphInvalid"
	case errors.As(err, &valErr):
		return "ValidationError"
	case errors.Is(err, ErrUnknownTool):
		return "UnknownTool"
	case errors.As(err, &schemaErr):
		return "SchemaMismatch"
	case errors.As(err, &mappingErr):
		return "MappingError"
	case errors.Is(err, ErrToolTimeout):
		return "Timeout"
	case errors.As(err, &execErr):
		return "ToolExecutionError"
	case errors.As(err, &routeErr):
		return "NoMatchingRoute"
	}
	return "internal"
}
