package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/harunnryd/tabletalk/internal/conversation"
	"github.com/harunnryd/tabletalk/internal/logger"
	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/sqlconn"
	toolcore "github.com/harunnryd/tabletalk/internal/tool"
)

const (
	QueryToolName = "get_table"
	// QueryAcknowledgment is the whole reply; rows are shown to the user only.
	QueryAcknowledgment = "Data was shown to the user. Ask them for follow ups now"
)

func init() {
	toolcore.RegisterBuiltin(QueryToolName, func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		if options.Connector == nil {
			return nil, fmt.Errorf("%s needs a SQL connector", QueryToolName)
		}
		if options.Artifacts == nil {
			return nil, fmt.Errorf("%s needs an artifact store", QueryToolName)
		}
		return &QueryTool{Connector: options.Connector, Artifacts: options.Artifacts}, nil
	})
}

type queryArgs struct {
	SelectPart      string `json:"select_part"`
	AdditionalQuery string `json:"additional_query"`
}

// QueryTool runs a SELECT against the connected table, persists the result
// and displays it to the user.
type QueryTool struct {
	Connector sqlconn.Connector
	Artifacts toolcore.ArtifactStore
}

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Description() string {
	quoting := "double quotes"
	if t.Connector != nil && t.Connector.Dialect().Name() == "databricks" {
		quoting = "backticks"
	}
	return "Execute a SQL query against the connected table and retrieve the data as a table. " +
		"You are already connected to some table, which you can check by using get_info_on_connected_table. " +
		"However, you might need to modify the query on user request. " +
		"Remember to always put column names into " + quoting + ". " +
		"When performing calculations such as averages, ensure numerical fields are cast to FLOAT. " +
		"YOU ARE NOT ALLOWED TO SEE THE TABLE, BUT IT WILL BE DISPLAYED TO USER AUTOMATICALLY"
}

func (t *QueryTool) ToolMetadata() toolcore.ToolMetadata {
	return toolcore.ToolMetadata{
		Source:       toolcore.SourceBuiltin,
		Capabilities: []string{toolcore.CapSQLQuery, toolcore.CapArtifactWrite, toolcore.CapDisplayTable},
		Risk:         toolcore.RiskHigh,
	}
}

func (t *QueryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"select_part": map[string]interface{}{
				"type":        "string",
				"description": "The part of the SQL query that specifies which columns to select (e.g., '*', 'column1, column2'). Ensure numerical fields used for calculations are cast to FLOAT as needed.",
			},
			"additional_query": map[string]interface{}{
				"type":        "string",
				"description": "Additional SQL query conditions (e.g., 'WHERE condition', 'LIMIT 10'). When filtering for text, it is suggested to use 'is like' or similar case insensitive searches",
				"default":     "",
			},
		},
		"required": []string{"select_part"},
	}
}

func (t *QueryTool) Execute(ctx context.Context, sess *session.Session, input json.RawMessage) (string, error) {
	var args queryArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	table, statement, err := t.Connector.Select(ctx, sess.Target(), args.SelectPart, args.AdditionalQuery)
	if err != nil {
		return "", err
	}
	slog.Debug("Query statement", "statement", statement, "trace_id", logger.GetTraceID(ctx))

	path, err := t.Artifacts.Write(ctx, table)
	if err != nil {
		return "", err
	}

	sess.Log.AppendDataframe(conversation.ArtifactRef{
		Path:    path,
		Rows:    table.Len(),
		Columns: len(table.Columns),
	})

	if sess.Presenter != nil {
		if err := sess.Presenter.ShowTable(ctx, table); err != nil {
			slog.Warn("Failed to display query result", "path", path, "error", err, "trace_id", logger.GetTraceID(ctx))
		}
	}

	return QueryAcknowledgment, nil
}
