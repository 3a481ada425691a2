package api

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// FieldType enumerates the value types a schema field can declare.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldObject FieldType = "object"
	FieldList   FieldType = "list"
	FieldAny    FieldType = "any"
)

func validFieldType(t FieldType) bool {
	switch t {
	case FieldString, FieldNumber, FieldBool, FieldObject, FieldList, FieldAny:
		return true
	}
	return false
}

// FieldSpec describes one named field of a tool schema.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
}

// Schema declares the shape of a tool's input arguments or output result.
// Keys not declared in the schema are rejected, so a typo in a node's
// input mapping surfaces as a SchemaMismatch instead of being silently
// dropped by the handler.
type Schema struct {
	Fields []FieldSpec `json:"fields,omitempty"`
}

// Validate reports the first structural problem with the schema itself
// (empty or duplicate field names, unknown types). A nil result means the
// schema is well-formed, not that any particular value satisfies it.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !validFieldType(f.Type) {
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Check validates values against the schema. The returned error, if any,
// is a *SchemaMismatchError with Field and Reason populated; the caller is
// expected to fill in Tool and Direction.
func (s Schema) Check(values map[string]any) error {
	declared := make(map[string]FieldSpec, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = f
	}

	for _, f := range s.Fields {
		v, present := values[f.Name]
		if !present {
			if f.Required {
				return &SchemaMismatchError{Field: f.Name, Reason: "required field is missing"}
			}
			continue
		}
		if !matchesFieldType(f.Type, v) {
			return &SchemaMismatchError{
				Field:  f.Name,
				Reason: fmt.Sprintf("expected %s, got %T", f.Type, v),
			}
		}
	}

	for name := range values {
		if _, ok := declared[name]; !ok {
			return &SchemaMismatchError{Field: name, Reason: "field is not declared in the schema"}
		}
	}
	return nil
}

// RequiredFields returns the names of the schema's required fields.
func (s Schema) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func matchesFieldType(t FieldType, v any) bool {
	if t == FieldAny {
		return true
	}
	if v == nil {
		return false
	}
	switch t {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case FieldObject:
		_, ok := v.(map[string]any)
		return ok
	case FieldList:
		return reflect.TypeOf(v).Kind() == reflect.Slice
	}
	return false
}

// Handler executes one external capability. Handlers may perform network
// I/O, must be assumed to have side effects and non-deterministic latency,
// and should honor ctx cancellation.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolDescriptor is the typed contract for one invocable external
// capability. Descriptors are immutable once registered; re-registering the
// same name supersedes the previous descriptor (last write wins).
type ToolDescriptor struct {
	Name    string
	Input   Schema
	Output  Schema
	Timeout time.Duration
	Handler Handler
}

// Validate reports descriptor problems as a *ValidationError.
func (d ToolDescriptor) Validate() error {
	if d.Name == "" {
		return &ValidationError{Tool: d.Name, Reason: "tool name is required"}
	}
	if d.Handler == nil {
		return &ValidationError{Tool: d.Name, Reason: "handler is required"}
	}
	if err := d.Input.Validate(); err != nil {
		return &ValidationError{Tool: d.Name, Reason: "input " + err.Error()}
	}
	if err := d.Output.Validate(); err != nil {
		return &ValidationError{Tool: d.Name, Reason: "output " + err.Error()}
	}
	if d.Timeout < 0 {
		return &ValidationError{Tool: d.Name, Reason: "timeout must not be negative"}
	}
	return nil
}
