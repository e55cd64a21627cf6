package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/tabletalk/internal/model/contract"
	"github.com/harunnryd/tabletalk/internal/session"
)

// Tool is one capability the model may call. Execute returns the reply text
// sent back to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, sess *session.Session, input json.RawMessage) (string, error)
}

// Registry maps tool names to tools. It is built once and never changes.
type Registry struct {
	tools map[string]Tool
	names []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("tool: nil tool")
		}
		name := NormalizeToolName(t.Name())
		if name == "" {
			return nil, fmt.Errorf("tool: empty tool name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool: duplicate tool name %q", name)
		}
		r.tools[name] = t
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[NormalizeToolName(name)]
	return t, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// GetDescriptors returns copies; callers may modify them freely.
func (r *Registry) GetDescriptors() []ToolDescriptor {
	descriptors := make([]ToolDescriptor, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		descriptors = append(descriptors, ToolDescriptor{
			Definition: contract.ToolDef{
				Name:        name,
				Description: t.Description(),
				Parameters:  copySchema(t.Parameters()),
			},
			Metadata: metadataOf(t),
		})
	}
	return descriptors
}

// Definitions returns the declarations sent to the gateway.
func (r *Registry) Definitions() []contract.ToolDef {
	descriptors := r.GetDescriptors()
	defs := make([]contract.ToolDef, len(descriptors))
	for i, d := range descriptors {
		defs[i] = d.Definition
	}
	return defs
}

func NormalizeToolName(name string) string {
	return strings.TrimSpace(name)
}

func copySchema(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copySchema(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
