package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/harunnryd/tabletalk/internal/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartEntries(entries []conversation.Entry) []conversation.Entry {
	var out []conversation.Entry
	for _, e := range entries {
		if e.Kind == conversation.KindChart {
			out = append(out, e)
		}
	}
	return out
}

func TestChartTool_NoDataframe(t *testing.T) {
	f := newFixture(t)

	reply := f.invoke(t, ChartToolName, `{"mark_type":"bar"}`)
	assert.Equal(t, NoDataframeMessage, reply)
	assert.Empty(t, chartEntries(f.session.Log.Entries()))
	assert.Empty(t, f.presenter.charts)
}

func TestChartTool_BarChartFromLatestQuery(t *testing.T) {
	f := newFixture(t)
	f.invoke(t, QueryToolName, `{"select_part":"*","additional_query":"LIMIT 5"}`)
	ref, _ := f.session.Log.LatestDataframe()

	reply := f.invoke(t, ChartToolName, `{"mark_type":"bar","x_field":"region","x_type":"nominal","y_field":"amount","y_type":"quantitative","y_aggregate":"sum","color":{"field":"region"}}`)
	assert.Equal(t, ChartStoredMessage, reply)

	require.Len(t, f.presenter.charts, 1)
	assert.Equal(t, "bar", f.presenter.charts[0].Mark.Type)

	charts := chartEntries(f.session.Log.Entries())
	require.Len(t, charts, 1)
	assert.Equal(t, ref, *charts[0].Artifact)

	var spec map[string]any
	require.NoError(t, json.Unmarshal(charts[0].Chart, &spec))
	assert.Equal(t, map[string]any{"type": "bar"}, spec["mark"])
}

func TestChartTool_InvalidMarkSkipsRender(t *testing.T) {
	f := newFixture(t)
	f.invoke(t, QueryToolName, `{"select_part":"*"}`)

	tool := &ChartTool{Artifacts: f.store}
	reply, err := tool.Execute(context.Background(), f.session, json.RawMessage(`{"mark_type":"pie"}`))
	require.NoError(t, err)
	assert.Equal(t, "Incorrect Mark Type Specified", reply)

	reply, err = tool.Execute(context.Background(), f.session, json.RawMessage(`{"mark_type":"line","y_type":"numeric"}`))
	require.NoError(t, err)
	assert.Equal(t, "Incorrect Type Parameter Specified", reply)

	assert.Empty(t, f.presenter.charts)
	assert.Empty(t, chartEntries(f.session.Log.Entries()))
}

func TestChartTool_SchemaRejectsInvalidMarkFirst(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatch.Invoke(context.Background(), f.session, ChartToolName, `{"mark_type":"pie"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark_type")
	assert.Empty(t, f.presenter.charts)
}

func TestChartTool_EmptyDataframe(t *testing.T) {
	f := newFixture(t)
	f.invoke(t, QueryToolName, `{"select_part":"*","additional_query":"WHERE 1 = 0"}`)

	reply := f.invoke(t, ChartToolName, `{"mark_type":"point"}`)
	assert.Equal(t, EmptyDataframeMessage, reply)
}

func TestChartTool_MissingSideFile(t *testing.T) {
	f := newFixture(t)
	f.invoke(t, QueryToolName, `{"select_part":"*"}`)
	ref, _ := f.session.Log.LatestDataframe()
	require.NoError(t, os.Remove(ref.Path))

	reply := f.invoke(t, ChartToolName, `{"mark_type":"point"}`)
	assert.Contains(t, reply, "Error loading DataFrame: ")
}

func TestChartTool_RenderFailure(t *testing.T) {
	f := newFixture(t)
	f.invoke(t, QueryToolName, `{"select_part":"*"}`)
	f.presenter.chartErr = errors.New("no display")

	reply := f.invoke(t, ChartToolName, `{"mark_type":"line"}`)
	assert.Equal(t, "Error displaying chart: no display", reply)
	assert.Empty(t, chartEntries(f.session.Log.Entries()))
}

func TestChartTool_UsesMostRecentQuery(t *testing.T) {
	f := newFixture(t)
	f.invoke(t, QueryToolName, `{"select_part":"*","additional_query":"LIMIT 2"}`)
	f.invoke(t, QueryToolName, `{"select_part":"region","additional_query":"LIMIT 3"}`)
	latest, _ := f.session.Log.LatestDataframe()

	f.invoke(t, ChartToolName, `{"mark_type":"bar","x_field":"region","x_type":"nominal"}`)
	charts := chartEntries(f.session.Log.Entries())
	require.Len(t, charts, 1)
	assert.Equal(t, latest.Path, charts[0].Artifact.Path)
	assert.Equal(t, 3, charts[0].Artifact.Rows)
}
