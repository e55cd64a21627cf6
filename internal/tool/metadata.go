package tool

import (
	"slices"
	"strings"

	"github.com/harunnryd/tabletalk/internal/model/contract"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Capability tags. They are informational: listed by `tools ls` and usable
// as a filter there.
const (
	CapSQLDescribe   = "sql.describe"
	CapSQLQuery      = "sql.query"
	CapArtifactRead  = "artifact.read"
	CapArtifactWrite = "artifact.write"
	CapDisplayTable  = "display.table"
	CapDisplayChart  = "display.chart"
	CapWeatherQuery  = "weather.query"
	CapHTTPGet       = "http.get"
)

const (
	SourceBuiltin = "builtin"
	sourceUnknown = "external"
)

type ToolMetadata struct {
	Source       string
	Capabilities []string
	Risk         RiskLevel
}

// MetadataProvider is implemented by tools that describe themselves beyond
// their declaration.
type MetadataProvider interface {
	ToolMetadata() ToolMetadata
}

type ToolDescriptor struct {
	Definition contract.ToolDef
	Metadata   ToolMetadata
}

func metadataOf(t Tool) ToolMetadata {
	var meta ToolMetadata
	if provider, ok := t.(MetadataProvider); ok {
		meta = provider.ToolMetadata()
	}

	out := ToolMetadata{
		Source:       strings.ToLower(strings.TrimSpace(meta.Source)),
		Risk:         RiskLevel(strings.ToLower(strings.TrimSpace(string(meta.Risk)))),
		Capabilities: make([]string, 0, len(meta.Capabilities)),
	}
	if out.Source == "" {
		out.Source = sourceUnknown
	}
	if out.Risk != RiskLow && out.Risk != RiskHigh {
		out.Risk = RiskMedium
	}
	for _, c := range meta.Capabilities {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out.Capabilities = append(out.Capabilities, c)
		}
	}
	slices.Sort(out.Capabilities)
	out.Capabilities = slices.Compact(out.Capabilities)
	return out
}

// HasCapability reports whether the descriptor declares capability.
func (d ToolDescriptor) HasCapability(capability string) bool {
	return slices.Contains(d.Metadata.Capabilities, strings.ToLower(strings.TrimSpace(capability)))
}
