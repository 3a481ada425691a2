package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/volvoxlabs/weft/pkg/api"
)

func searchDescriptor() api.ToolDescriptor {
	return api.ToolDescriptor{
		Name: "search",
		Input: api.Schema{Fields: []api.FieldSpec{
			{Name: "query", Type: api.FieldString, Required: true},
		}},
		Output: api.Schema{Fields: []api.FieldSpec{
			{Name: "hits", Type: api.FieldList, Required: true},
		}},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"hits": []any{args["query"]}}, nil
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if err := r.Register(searchDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}

	desc, err := r.Lookup("search")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if desc.Name != "search" {
		t.Fatalf("name = %s", desc.Name)
	}

	_, err = r.Lookup("missing")
	if !errors.Is(err, api.ErrUnknownTool) {
		t.Fatalf("lookup missing: %v, want ErrUnknownTool", err)
	}
}

func TestRegisterRejectsInvalidDescriptor(t *testing.T) {
	r := New()
	err := r.Register(api.ToolDescriptor{Name: "no-handler"})
	var valErr *api.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestReRegistrationLastWriteWins(t *testing.T) {
	r := New()
	if err := r.Register(searchDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Same required input fields, different handler: accepted.
	replacement := searchDescriptor()
	replacement.Handler = func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"hits": []any{}}, nil
	}
	if err := r.Register(replacement); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	out, err := r.Invoke(context.Background(), "search", map[string]any{"query": "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if hits := out["hits"].([]any); len(hits) != 0 {
		t.Fatalf("old handler still registered: %v", hits)
	}
}

func TestReRegistrationRejectsChangedRequiredFields(t *testing.T) {
	r := New()
	if err := r.Register(searchDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}

	changed := searchDescriptor()
	changed.Input = api.Schema{Fields: []api.FieldSpec{
		{Name: "query", Type: api.FieldString, Required: true},
		{Name: "limit", Type: api.FieldNumber, Required: true},
	}}
	err := r.Register(changed)
	var valErr *api.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestInvokeValidatesInput(t *testing.T) {
	r := New()
	if err := r.Register(searchDescriptor()); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := r.Invoke(context.Background(), "search", map[string]any{})
	var mismatch *api.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want SchemaMismatchError", err)
	}
	if mismatch.Tool != "search" || mismatch.Direction != "input" {
		t.Fatalf("mismatch = %+v", mismatch)
	}
}

func TestInvokeValidatesOutput(t *testing.T) {
	r := New()
	desc := searchDescriptor()
	desc.Handler = func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"wrong": true}, nil
	}
	if err := r.Register(desc); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := r.Invoke(context.Background(), "search", map[string]any{"query": "q"})
	var mismatch *api.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error = %v, want SchemaMismatchError", err)
	}
	if mismatch.Direction != "output" {
		t.Fatalf("direction = %s, want output", mismatch.Direction)
	}
}

func TestInvokeWrapsHandlerError(t *testing.T) {
	r := New()
	desc := searchDescriptor()
	desc.Handler = func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, errors.New("upstream down")
	}
	if err := r.Register(desc); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := r.Invoke(context.Background(), "search", map[string]any{"query": "q"})
	var execErr *api.ToolExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ToolExecutionError", err)
	}
	if execErr.Tool != "search" {
		t.Fatalf("tool = %s", execErr.Tool)
	}
	if execErr.Unwrap().Error() != "upstream down" {
		t.Fatalf("cause = %v", execErr.Unwrap())
	}
}
