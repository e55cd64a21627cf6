package tool

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/harunnryd/tabletalk/internal/dataset"
	"github.com/harunnryd/tabletalk/internal/sqlconn"
)

// ArtifactStore persists query results between tool calls.
type ArtifactStore interface {
	Write(ctx context.Context, table *dataset.Table) (string, error)
	Read(path string) (*dataset.Table, error)
}

// BuiltinOptions carries runtime dependencies needed by built-in tool factories.
type BuiltinOptions struct {
	Connector      sqlconn.Connector
	Artifacts      ArtifactStore
	WeatherMode    string
	WeatherBaseURL string
	WeatherTimeout time.Duration
}

const DefaultBuiltinHTTPTimeout = 10 * time.Second

type BuiltinFactory func(options BuiltinOptions) (Tool, error)

var (
	catalogMu sync.RWMutex
	catalog   = map[string]BuiltinFactory{}
)

// RegisterBuiltin adds a factory to the catalog. Built-in tool files call it
// from init; registering a name twice panics.
func RegisterBuiltin(name string, factory BuiltinFactory) {
	key := NormalizeToolName(name)
	switch {
	case key == "":
		panic("tool: built-in name cannot be empty")
	case factory == nil:
		panic("tool: nil factory for built-in " + key)
	}

	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[key]; dup {
		panic("tool: built-in registered twice: " + key)
	}
	catalog[key] = factory
}

// BuiltinNames lists the catalog in sorted order.
func BuiltinNames() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	return slices.Sorted(maps.Keys(catalog))
}

func IsBuiltinName(name string) bool {
	_, ok := lookupBuiltin(name)
	return ok
}

func lookupBuiltin(name string) (BuiltinFactory, bool) {
	key := NormalizeToolName(name)
	if key == "" {
		return nil, false
	}
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	f, ok := catalog[key]
	return f, ok
}

// InstantiateBuiltins constructs the named built-in tools in the given order.
// With no names every registered built-in is built.
func InstantiateBuiltins(options BuiltinOptions, names ...string) ([]Tool, error) {
	if len(names) == 0 {
		names = BuiltinNames()
	}

	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		factory, ok := lookupBuiltin(name)
		if !ok {
			return nil, fmt.Errorf("unknown built-in tool %q", name)
		}
		t, err := factory(options)
		if err != nil {
			return nil, fmt.Errorf("instantiate built-in %q: %w", name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
