package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/harunnryd/tabletalk/internal/chart"
	"github.com/harunnryd/tabletalk/internal/dataset"
	"github.com/harunnryd/tabletalk/internal/logger"
	"github.com/harunnryd/tabletalk/internal/session"
	toolcore "github.com/harunnryd/tabletalk/internal/tool"
)

const ChartToolName = "generate_vega_lite_spec"

// Replies returned to the model.
const (
	NoDataframeMessage    = "No DataFrame found to display."
	EmptyDataframeMessage = "Loaded DataFrame is empty after filtering."
	ChartStoredMessage    = "Chart displayed successfully and specification stored."
)

func init() {
	toolcore.RegisterBuiltin(ChartToolName, func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		if options.Artifacts == nil {
			return nil, fmt.Errorf("%s needs an artifact store", ChartToolName)
		}
		return &ChartTool{Artifacts: options.Artifacts}, nil
	})
}

type chartArgs struct {
	MarkType     string         `json:"mark_type"`
	XField       string         `json:"x_field"`
	XType        string         `json:"x_type"`
	XAggregate   string         `json:"x_aggregate"`
	XFilter      string         `json:"x_filter"`
	YField       string         `json:"y_field"`
	YType        string         `json:"y_type"`
	YAggregate   string         `json:"y_aggregate"`
	YFilter      string         `json:"y_filter"`
	Color        map[string]any `json:"color"`
	Size         map[string]any `json:"size"`
	Column       map[string]any `json:"column"`
	Row          map[string]any `json:"row"`
	Theta        map[string]any `json:"theta"`
	GlobalFilter string         `json:"global_filter"`
}

func (a chartArgs) request() chart.Request {
	return chart.Request{
		MarkType:     a.MarkType,
		X:            chart.Axis{Field: a.XField, Type: a.XType, Aggregate: a.XAggregate, Filter: a.XFilter},
		Y:            chart.Axis{Field: a.YField, Type: a.YType, Aggregate: a.YAggregate, Filter: a.YFilter},
		Color:        a.Color,
		Size:         a.Size,
		Column:       a.Column,
		Row:          a.Row,
		Theta:        a.Theta,
		GlobalFilter: a.GlobalFilter,
	}
}

// ChartTool draws the most recent query result.
type ChartTool struct {
	Artifacts toolcore.ArtifactStore
}

func (t *ChartTool) Name() string { return ChartToolName }

func (t *ChartTool) Description() string {
	return "Generates a Vega-Lite visualization specification. This function allows creating various types of charts (e.g., bar, line, point) and supports detailed encoding configurations for axes and other visual properties. It also includes options for adding filters both globally and per encoding to refine data visibility based on specific conditions."
}

func (t *ChartTool) ToolMetadata() toolcore.ToolMetadata {
	return toolcore.ToolMetadata{
		Source:       toolcore.SourceBuiltin,
		Capabilities: []string{toolcore.CapArtifactRead, toolcore.CapDisplayChart},
		Risk:         toolcore.RiskLow,
	}
}

func (t *ChartTool) Parameters() map[string]interface{} {
	str := func(description string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": description}
	}
	obj := func(description string) map[string]interface{} {
		return map[string]interface{}{"type": "object", "description": description}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"mark_type": map[string]interface{}{
				"type":        "string",
				"enum":        slices.Clone(chart.Marks),
				"description": "Specifies the type of chart to generate. Valid options are 'bar', 'line', 'point'.",
			},
			"x_field": str("Field from the data to map against the x-axis."),
			"x_type": map[string]interface{}{
				"type":        "string",
				"enum":        slices.Clone(chart.Types),
				"description": "Type of the x-axis values. Valid types are 'quantitative', 'temporal', 'ordinal', 'nominal'.",
			},
			"x_aggregate":   str("Aggregation function to apply on the x-axis field, such as 'count', 'mean', etc."),
			"x_filter":      str("Filter condition to apply to the x-axis values. Remember to use Datum where needed"),
			"y_field":       str("Field from the data to map against the y-axis."),
			"y_type":        str("Type of the y-axis values."),
			"y_aggregate":   str("Aggregation function to apply on the y-axis field."),
			"y_filter":      str("Filter condition to apply to the y-axis values. Remember to use Datum where needed"),
			"global_filter": str("A global filter condition applied to all data in the visualization. Remember to use Datum where needed"),
			"color":         obj("Encoding settings for color."),
			"size":          obj("Encoding settings for size."),
			"column":        obj("Specifies how to divide data into vertical facets."),
			"row":           obj("Specifies how to divide data into horizontal facets."),
			"theta":         obj("Encoding settings for angular coordinates in polar charts."),
		},
		"required": []string{"mark_type"},
	}
}

func (t *ChartTool) Execute(ctx context.Context, sess *session.Session, input json.RawMessage) (string, error) {
	var args chartArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	ref, ok := sess.Log.LatestDataframe()
	if !ok {
		return NoDataframeMessage, nil
	}

	table, err := t.Artifacts.Read(ref.Path)
	if err != nil {
		return fmt.Sprintf("Error loading DataFrame: %v", err), nil
	}
	if table.Empty() {
		return EmptyDataframeMessage, nil
	}

	spec, err := chart.Build(args.request())
	if err != nil {
		return err.Error(), nil
	}
	for _, field := range spec.Fields() {
		if !slices.Contains(table.ColumnNames(), field) {
			slog.Warn("Chart references a missing column", "field", field, "path", ref.Path, "trace_id", logger.GetTraceID(ctx))
		}
	}

	if err := show(ctx, sess, spec, table); err != nil {
		return fmt.Sprintf("Error displaying chart: %v", err), nil
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode chart spec: %w", err)
	}
	sess.Log.AppendChart(raw, ref)
	return ChartStoredMessage, nil
}

func show(ctx context.Context, sess *session.Session, spec *chart.Spec, table *dataset.Table) (err error) {
	if sess.Presenter == nil {
		return fmt.Errorf("no presenter attached to the session")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return sess.Presenter.ShowChart(ctx, spec, table)
}
