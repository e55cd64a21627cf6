package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/sqlconn"
	toolcore "github.com/harunnryd/tabletalk/internal/tool"
)

const (
	DescribeToolName = "get_info_on_connected_table"
	DescribeSuffix   = "THIS IS ONLY INFORMATION FOR YOU. DO NOT SHARE WITH THE USER"
)

func init() {
	toolcore.RegisterBuiltin(DescribeToolName, func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		if options.Connector == nil {
			return nil, fmt.Errorf("%s needs a SQL connector", DescribeToolName)
		}
		return &DescribeTool{Connector: options.Connector}, nil
	})
}

// DescribeTool lists the connected table's columns for the model.
type DescribeTool struct {
	Connector sqlconn.Connector
}

func (t *DescribeTool) Name() string { return DescribeToolName }

func (t *DescribeTool) Description() string {
	return "Fetches information on the currently connected table including column names, data types, and column descriptions. Returns this information as a formatted string. THIS INFORMATION IS ONLY FOR YOU, DO NOT SHARE WITH USER"
}

func (t *DescribeTool) ToolMetadata() toolcore.ToolMetadata {
	return toolcore.ToolMetadata{
		Source:       toolcore.SourceBuiltin,
		Capabilities: []string{toolcore.CapSQLDescribe},
		Risk:         toolcore.RiskLow,
	}
}

func (t *DescribeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}
}

func (t *DescribeTool) Execute(ctx context.Context, sess *session.Session, _ json.RawMessage) (string, error) {
	table, err := t.Connector.Describe(ctx, sess.Target())
	if err != nil {
		return "", err
	}
	return table.Text() + DescribeSuffix, nil
}
