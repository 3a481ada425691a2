// Package registry holds typed descriptors for every invocable external
// capability and validates calls against them. The registry is a pure
// routing layer: it has no side effects beyond the handler's own.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/volvoxlabs/weft/pkg/api"
)

// Registry maps tool names to descriptors. It is read-mostly and safe for
// concurrent invocation by many runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]api.ToolDescriptor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]api.ToolDescriptor)}
}

// Register adds a descriptor. Registering an existing name supersedes the
// previous descriptor (last write wins), except when the replacement
// changes the set of required input fields: published graphs may already
// map against those, so that change is rejected as a validation error.
func (r *Registry) Register(desc api.ToolDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.tools[desc.Name]; exists {
		if !sameFieldSet(prev.Input.RequiredFields(), desc.Input.RequiredFields()) {
			return &api.ValidationError{
				Tool:   desc.Name,
				Reason: "re-registration changes the required input fields",
			}
		}
	}
	r.tools[desc.Name] = desc
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (api.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.tools[name]
	if !ok {
		return api.ToolDescriptor{}, fmt.Errorf("%w: %s", api.ErrUnknownTool, name)
	}
	return desc, nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Invoke validates args against the tool's input schema, calls the handler,
// and validates the handler's result against the output schema before
// returning it.
//
// An input or output mismatch is a *SchemaMismatchError; the output case
// fires even though the handler itself did not fail, which distinguishes
// "tool is buggy" from "tool runtime error". Handler failures are wrapped
// in a *ToolExecutionError with an opaque cause.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	desc, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	if err := desc.Input.Check(args); err != nil {
		return nil, decorate(err, name, "input")
	}

	out, err := desc.Handler(ctx, args)
	if err != nil {
		return nil, &api.ToolExecutionError{Tool: name, Attempt: 1, Cause: err}
	}

	if err := desc.Output.Check(out); err != nil {
		return nil, decorate(err, name, "output")
	}
	return out, nil
}

func decorate(err error, tool, direction string) error {
	if mismatch, ok := err.(*api.SchemaMismatchError); ok {
		mismatch.Tool = tool
		mismatch.Direction = direction
		return mismatch
	}
	return err
}

func sameFieldSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, f := range a {
		set[f] = struct{}{}
	}
	for _, f := range b {
		if _, ok := set[f]; !ok {
			return false
		}
	}
	return true
}
