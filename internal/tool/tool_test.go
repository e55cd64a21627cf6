package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metaTool struct {
	stubTool
}

func (t *metaTool) ToolMetadata() ToolMetadata {
	return ToolMetadata{Source: " Builtin ", Capabilities: []string{"SQL.Read", "sql.read", " "}, Risk: "HIGH"}
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(&stubTool{name: "b"}, &stubTool{name: " a "})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, registry.Names())
	_, ok := registry.Get("a")
	assert.True(t, ok)
	_, ok = registry.Get("c")
	assert.False(t, ok)

	_, err = NewRegistry(&stubTool{name: "a"}, &stubTool{name: "a"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(&stubTool{name: "  "})
	assert.ErrorContains(t, err, "empty")

	_, err = NewRegistry(nil)
	assert.Error(t, err)
}

func TestGetDescriptors_AreCopies(t *testing.T) {
	tool := echoTool()
	registry, err := NewRegistry(tool)
	require.NoError(t, err)

	first := registry.GetDescriptors()
	props := first[0].Definition.Parameters["properties"].(map[string]interface{})
	props["injected"] = map[string]interface{}{"type": "string"}
	first[0].Definition.Parameters["required"].([]string)[0] = "mutated"

	second := registry.GetDescriptors()
	assert.NotContains(t, second[0].Definition.Parameters["properties"], "injected")
	assert.Equal(t, []string{"text"}, second[0].Definition.Parameters["required"])
	assert.Equal(t, []string{"text"}, tool.params["required"])

	defs := registry.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "stub echo", defs[0].Description)
}

func TestGetDescriptors_Metadata(t *testing.T) {
	registry, err := NewRegistry(&metaTool{stubTool{name: "q"}}, &stubTool{name: "plain"})
	require.NoError(t, err)

	descriptors := registry.GetDescriptors()
	require.Len(t, descriptors, 2)

	assert.Equal(t, ToolMetadata{Source: "external", Capabilities: []string{}, Risk: RiskMedium}, descriptors[0].Metadata)
	assert.Equal(t, ToolMetadata{Source: "builtin", Capabilities: []string{"sql.read"}, Risk: RiskHigh}, descriptors[1].Metadata)
	assert.True(t, descriptors[1].HasCapability("SQL.READ"))
	assert.False(t, descriptors[0].HasCapability("sql.read"))
}

func TestValidateArguments(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":  map[string]interface{}{"type": "string"},
			"age":   map[string]interface{}{"type": "integer"},
			"score": map[string]interface{}{"type": "number"},
			"tags":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"color": map[string]interface{}{"type": "object"},
			"unit":  map[string]interface{}{"type": "string", "enum": []interface{}{"celsius", "fahrenheit"}},
			"nested": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"flag": map[string]interface{}{"type": "boolean"}},
			},
		},
		"required": []interface{}{"name"},
	}

	tests := []struct {
		name  string
		input string
		field string
	}{
		{"valid", `{"name":"a","age":3,"score":1.5,"tags":["x"],"color":{"field":"r","anything":1},"unit":"celsius","nested":{"flag":true}}`, ""},
		{"null optional", `{"name":"a","unit":null}`, ""},
		{"null required", `{"name":null}`, "name"},
		{"fractional integer", `{"name":"a","age":3.5}`, "age"},
		{"bad array item", `{"name":"a","tags":[1]}`, "tags[0]"},
		{"object expected", `{"name":"a","color":"red"}`, "color"},
		{"enum", `{"name":"a","unit":"kelvin"}`, "unit"},
		{"nested unknown", `{"name":"a","nested":{"other":1}}`, "nested.other"},
		{"nested type", `{"name":"a","nested":{"flag":"yes"}}`, "nested.flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.input), &args))

			err := ValidateArguments("t", schema, args)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.field, argErr.Field)
		})
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments("   ")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = DecodeArguments(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, args)

	_, err = DecodeArguments(`"a"`)
	assert.Error(t, err)
}
