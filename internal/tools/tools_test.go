package tools

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchInput struct {
	Query  string   `json:"query" desc:"CQL query"`
	Range  string   `json:"range,omitempty"`
	Format string   `json:"format,omitempty" enum:"epodoc,docdb"`
	Limit  *int     `json:"limit"`
	Tags   []string `json:"tags"`
	Hidden string   `json:"-"`
	secret string
}

func echoTool(t *testing.T) Tool {
	t.Helper()
	tool, err := New("search", "  Search things.  ", searchInput{}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var in searchInput
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return map[string]string{"echo": in.Query}, nil
	})
	require.NoError(t, err)
	return tool
}

func TestNewReflectsSchema(t *testing.T) {
	tool := echoTool(t)

	assert.Equal(t, "search", tool.Name)
	assert.Equal(t, "Search things.", tool.Description)
	checkSchemaFormat(t, tool.Parameters, reflect.TypeOf(searchInput{}))

	props := tool.Parameters["properties"].(map[string]interface{})
	query := props["query"].(map[string]interface{})
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "CQL query", query["description"])
	assert.Equal(t, []string{"epodoc", "docdb"}, props["format"].(map[string]interface{})["enum"])
	assert.Equal(t, "array", props["tags"].(map[string]interface{})["type"])
	assert.NotContains(t, props, "Hidden")
	assert.NotContains(t, props, "secret")

	assert.Equal(t, []string{"query"}, tool.Parameters["required"])
}

func TestNewRejectsNonObjectInput(t *testing.T) {
	_, err := New("bad", "", "just a string", func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil })
	assert.ErrorContains(t, err, "object schema")

	_, err = New("", "", searchInput{}, func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil })
	assert.Error(t, err)

	_, err = New("nofn", "", searchInput{}, nil)
	assert.Error(t, err)
}

func TestInvokeValidatesArguments(t *testing.T) {
	tool := echoTool(t)
	ctx := context.Background()

	out, err := tool.Invoke(ctx, json.RawMessage(`{"query":"ta=graphene"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"echo": "ta=graphene"}, out)

	_, err = tool.Invoke(ctx, json.RawMessage(`{"range":"1-5"}`))
	assert.True(t, errors.Is(err, ErrInvalidArguments), "missing required field should fail: %v", err)

	_, err = tool.Invoke(ctx, json.RawMessage(`{"query":42}`))
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = tool.Invoke(ctx, json.RawMessage(`{"query":"x","format":"original"}`))
	assert.ErrorIs(t, err, ErrInvalidArguments)

	_, err = tool.Invoke(ctx, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestInvokeTreatsEmptyArgumentsAsObject(t *testing.T) {
	called := false
	tool, err := New("ping", "", struct{}{}, func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		called = true
		assert.JSONEq(t, `{}`, string(args))
		return "pong", nil
	})
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "pong", out)
}

func TestSetAddAndNames(t *testing.T) {
	set := Set{}
	a := echoTool(t)
	b, err := New("abstract", "", struct {
		Number string `json:"number"`
	}{}, func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil })
	require.NoError(t, err)

	require.NoError(t, set.Add(a, b))
	assert.Equal(t, []string{"abstract", "search"}, set.Names())
	assert.Error(t, set.Add(a), "duplicate names must be rejected")

	clone := set.Clone()
	delete(clone, "search")
	assert.Len(t, set, 2)
}

func checkSchemaFormat(t *testing.T, params map[string]interface{}, typ reflect.Type) {
	data, err := json.Marshal(params)
	assert.NoError(t, err, "failed to marshal parameters to JSON")

	var schema map[string]interface{}
	err = json.Unmarshal(data, &schema)
	assert.NoError(t, err, "failed to unmarshal schema")

	assert.Equal(t, "object", schema["type"], "top-level schema should be type object")

	props, ok := schema["properties"].(map[string]interface{})
	assert.True(t, ok, "properties should be a map")
	assert.NotEmpty(t, props, "expected properties in schema")

	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue
		}
		jsonName, _ := jsonFieldName(f)
		if jsonName == "" {
			continue
		}
		_, fieldPresent := props[jsonName]
		assert.Truef(t, fieldPresent, "expected field %q in properties", jsonName)
	}
}
