package present

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/tabletalk/internal/dataset"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}

// Format renders a whole table. maxRows only applies to the table format;
// zero means no limit.
func Format(t *dataset.Table, format OutputFormat, maxRows int) (string, error) {
	switch format {
	case OutputFormatTable:
		return NewTableRenderer(maxRows).Render(t), nil
	case OutputFormatJSON:
		data, err := json.MarshalIndent(t.Records(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case OutputFormatYAML:
		data, err := yaml.Marshal(t.Records())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}
