package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidArguments is returned when tool arguments do not match the tool's schema.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Func executes a tool with arguments that already passed schema validation.
type Func func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Tool is a callable capability the model may invoke mid-conversation.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema object sent to the model.
	Parameters map[string]interface{}

	fn     Func
	schema *jsonschema.Schema
}

// Set maps tool names to tools.
type Set map[string]Tool

// New builds a tool whose parameter schema is reflected from input, a struct
// (or pointer to struct) describing the arguments.
func New(name, description string, input interface{}, fn Func) (Tool, error) {
	if strings.TrimSpace(name) == "" {
		return Tool{}, errors.New("tool name cannot be empty")
	}
	if fn == nil {
		return Tool{}, fmt.Errorf("tool %q: function cannot be nil", name)
	}

	params, err := typeToJSONSchema(reflect.TypeOf(input))
	if err != nil {
		return Tool{}, fmt.Errorf("tool %q: %w", name, err)
	}
	if params["type"] != "object" {
		return Tool{}, fmt.Errorf("tool %q: parameters must be an object schema, got %v", name, params["type"])
	}

	schema, err := compileSchema(name, params)
	if err != nil {
		return Tool{}, fmt.Errorf("tool %q: %w", name, err)
	}

	return Tool{
		Name:        name,
		Description: strings.TrimSpace(description),
		Parameters:  params,
		fn:          fn,
		schema:      schema,
	}, nil
}

// Invoke validates args against the tool schema and executes the tool.
// Empty args are treated as an empty object.
func (t Tool) Invoke(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	if err := t.Validate(args); err != nil {
		return nil, err
	}
	return t.fn(ctx, args)
}

// Validate checks args against the tool schema without executing the tool.
func (t Tool) Validate(args json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidArguments, t.Name, err)
	}
	if t.schema == nil {
		return nil
	}
	if err := t.schema.Validate(v); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidArguments, t.Name, err)
	}
	return nil
}

// Add registers tools, rejecting duplicate names.
func (s Set) Add(tools ...Tool) error {
	for _, t := range tools {
		if _, exists := s[t.Name]; exists {
			return fmt.Errorf("tool %q already registered", t.Name)
		}
		s[t.Name] = t
	}
	return nil
}

// Names returns the tool names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy so callers cannot mutate a shared set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func compileSchema(name string, params map[string]interface{}) (*jsonschema.Schema, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	url := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
