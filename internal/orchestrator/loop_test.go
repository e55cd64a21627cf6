package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/tabletalk/internal/artifact"
	"github.com/harunnryd/tabletalk/internal/chart"
	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/conversation"
	"github.com/harunnryd/tabletalk/internal/dataset"
	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/model/contract"
	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/sqlconn"
	"github.com/harunnryd/tabletalk/internal/tool"
	"github.com/harunnryd/tabletalk/internal/tool/builtin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type recordingPresenter struct {
	texts  []string
	tables []*dataset.Table
	charts []*chart.Spec
	errors []string
}

func (p *recordingPresenter) ShowText(_ context.Context, text string) error {
	p.texts = append(p.texts, text)
	return nil
}

func (p *recordingPresenter) ShowTable(_ context.Context, t *dataset.Table) error {
	p.tables = append(p.tables, t)
	return nil
}

func (p *recordingPresenter) ShowChart(_ context.Context, spec *chart.Spec, _ *dataset.Table) error {
	p.charts = append(p.charts, spec)
	return nil
}

func (p *recordingPresenter) ShowError(_ context.Context, text string) error {
	p.errors = append(p.errors, text)
	return nil
}

type step func(req contract.CompletionRequest) (*contract.CompletionResponse, error)

// scriptedGateway answers each call with the next step and records every
// request it saw.
type scriptedGateway struct {
	steps    []step
	requests []contract.CompletionRequest
	observe  func()
}

func (g *scriptedGateway) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	g.requests = append(g.requests, req)
	if g.observe != nil {
		g.observe()
	}
	if len(g.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := g.steps[0]
	g.steps = g.steps[1:]
	return next(req)
}

func reply(text string, calls ...*contract.ToolCall) step {
	return func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
		return &contract.CompletionResponse{Content: text, ToolCalls: calls, Usage: contract.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
	}
}

func fail(err error) step {
	return func(contract.CompletionRequest) (*contract.CompletionResponse, error) {
		return nil, err
	}
}

func call(id, name, input string) *contract.ToolCall {
	return &contract.ToolCall{ID: id, Name: name, Input: input}
}

type probeTool struct {
	loop   *Loop
	states []State
}

func (p *probeTool) Name() string        { return "probe" }
func (p *probeTool) Description() string { return "records the loop state" }
func (p *probeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (p *probeTool) Execute(context.Context, *session.Session, json.RawMessage) (string, error) {
	p.states = append(p.states, p.loop.State())
	return "ok", nil
}

type harness struct {
	loop      *Loop
	gateway   *scriptedGateway
	session   *session.Session
	presenter *recordingPresenter
	store     *artifact.Store
	probe     *probeTool
	sleeps    []time.Duration
}

func newHarness(t *testing.T, cfg config.OrchestratorConfig, steps ...step) *harness {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shop.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE orders (id INTEGER PRIMARY KEY, region TEXT, amount REAL);
INSERT INTO orders (region, amount) VALUES
  ('EU', 10.5), ('US', 20), ('EU', 7.25), ('APAC', 3), ('US', 9.5), ('EU', 11), ('APAC', 4);
`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	connector, err := sqlconn.New(config.ConnectorConfig{Driver: config.ConnectorDriverSQLite, Path: dbPath}, false)
	require.NoError(t, err)
	store := artifact.NewStoreWithLock(filepath.Join(dir, "artifacts"), artifact.LockConfig{
		Timeout: time.Second, Retry: 10 * time.Millisecond, MaxRetry: 100,
	})

	tools, err := tool.InstantiateBuiltins(tool.BuiltinOptions{Connector: connector, Artifacts: store}, config.DefaultTools...)
	require.NoError(t, err)
	probe := &probeTool{}
	registry, err := tool.NewRegistry(append(tools, probe)...)
	require.NoError(t, err)

	gateway := &scriptedGateway{steps: steps}
	loop, err := NewLoop(gateway, tool.NewDispatcher(registry), cfg, "test-model")
	require.NoError(t, err)
	probe.loop = loop

	h := &harness{
		loop:      loop,
		gateway:   gateway,
		presenter: &recordingPresenter{},
		store:     store,
		probe:     probe,
	}
	loop.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.session = session.New(sqlconn.Target{Table: "orders"}, h.presenter)
	return h
}

func (h *harness) script(steps ...step) {
	h.gateway.steps = append(h.gateway.steps, steps...)
}

func roles(msgs []contract.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func entriesOf(log *conversation.Log, kind conversation.Kind) []conversation.Entry {
	var out []conversation.Entry
	for _, e := range log.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestTurn_QueryThenFinalAnswer(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{},
		reply("", call("call_1", builtin.QueryToolName, `{"select_part":"*","additional_query":"LIMIT 5"}`)),
		func(req contract.CompletionRequest) (*contract.CompletionResponse, error) {
			last := req.Messages[len(req.Messages)-1]
			if last.Role != contract.RoleTool || last.Content != builtin.QueryAcknowledgment {
				return nil, fmt.Errorf("unexpected last message %+v", last)
			}
			return &contract.CompletionResponse{Content: "Here are five orders."}, nil
		},
	)

	res := h.loop.Turn(context.Background(), h.session, "show me 5 rows")
	require.NoError(t, res.Err)
	assert.Equal(t, "Here are five orders.", res.Text)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, AwaitingUserInput, h.loop.State())

	first := h.gateway.requests[0]
	assert.Equal(t, "test-model", first.Model)
	assert.Equal(t, config.DefaultToolChoice, first.ToolChoice)
	assert.Len(t, first.Tools, len(config.DefaultTools)+1)
	assert.Equal(t, []string{"system", "user"}, roles(first.Messages))
	assert.Equal(t, config.DefaultSystemPrompt, first.Messages[0].Content)
	assert.Equal(t, "show me 5 rows", first.Messages[1].Content)

	assert.Equal(t, []string{"system", "user", "assistant", "tool", "assistant"}, roles(h.session.Log.Messages()))

	ref, ok := h.session.Log.LatestDataframe()
	require.True(t, ok)
	assert.Equal(t, 5, ref.Rows)
	stored, err := h.store.Read(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Len())

	require.Len(t, h.presenter.tables, 1)
	assert.Equal(t, []string{"Here are five orders."}, h.presenter.texts)
	assert.Empty(t, h.presenter.errors)

	for _, req := range h.gateway.requests {
		for _, m := range req.Messages {
			assert.NotContains(t, m.Content, "APAC", "row data never reaches the model")
		}
	}
}

func TestTurn_ChartAfterQuery(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{},
		reply("", call("call_1", builtin.QueryToolName, `{"select_part":"*","additional_query":"LIMIT 5"}`)),
		reply("Here are five orders."),
	)
	require.NoError(t, h.loop.Turn(context.Background(), h.session, "show me 5 rows").Err)

	first, ok := h.session.Log.LatestDataframe()
	require.True(t, ok)
	again, ok := h.session.Log.LatestDataframe()
	require.True(t, ok)
	assert.Equal(t, first, again)

	h.script(
		reply("", call("call_2", builtin.ChartToolName, `{"mark_type":"bar","x_field":"region","x_type":"nominal","y_field":"amount","y_type":"quantitative"}`)),
		reply("Here is the bar chart."),
	)
	res := h.loop.Turn(context.Background(), h.session, "chart it as a bar chart")
	require.NoError(t, res.Err)
	assert.Equal(t, "Here is the bar chart.", res.Text)

	require.Len(t, h.presenter.charts, 1)
	assert.Equal(t, "bar", h.presenter.charts[0].Mark.Type)

	charts := entriesOf(h.session.Log, conversation.KindChart)
	require.Len(t, charts, 1)
	assert.Equal(t, first.Path, charts[0].Artifact.Path)

	msgs := h.session.Log.Messages()
	assert.Equal(t, contract.RoleSystem, msgs[0].Role)
	assert.Equal(t, 1, countRole(msgs, contract.RoleSystem), "the system instruction is added once")
	assert.Equal(t, builtin.ChartStoredMessage, msgs[len(msgs)-2].Content)
}

func TestTurn_BatchRepliesInEmissionOrder(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{},
		reply("Let me check.",
			call("a", builtin.WeatherToolName, `{"location":"Tokyo"}`),
			call("b", "drop_table", `{}`),
			call("c", builtin.WeatherToolName, `{"location":`),
			call("d", builtin.WeatherToolName, `{"location":"Paris","unit":"kelvin"}`),
		),
		reply("Done."),
	)

	res := h.loop.Turn(context.Background(), h.session, "weather?")
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.ToolCalls)

	msgs := h.session.Log.Messages()
	var replies []contract.Message
	for _, m := range msgs {
		if m.Role == contract.RoleTool {
			replies = append(replies, m)
		}
	}
	require.Len(t, replies, 4)
	assert.Equal(t, "a", replies[0].ToolCallID)
	assert.Equal(t, "b", replies[1].ToolCallID)
	assert.Equal(t, "c", replies[2].ToolCallID)
	assert.Equal(t, "d", replies[3].ToolCallID)

	assert.Contains(t, replies[0].Content, `"temperature":"10"`)
	assert.Equal(t, "Wrong function name: drop_table", replies[1].Content)
	assert.Contains(t, replies[2].Content, "Invalid function arguments: ")
	assert.Contains(t, replies[3].Content, "Wrong parameters provided: ")

	assert.Equal(t, []string{"Let me check.", "Done."}, h.presenter.texts)
	require.NoError(t, h.session.Log.Validate())
}

func TestTurn_AssignsIDsToAnonymousCalls(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{},
		reply("", call("", builtin.WeatherToolName, `{"location":"Tokyo"}`), nil, call("", builtin.WeatherToolName, `{"location":"Paris"}`)),
		reply("Done."),
	)

	require.NoError(t, h.loop.Turn(context.Background(), h.session, "weather?").Err)

	msgs := h.session.Log.Messages()
	assistant := msgs[2]
	require.Len(t, assistant.ToolCalls, 2)
	assert.NotEmpty(t, assistant.ToolCalls[0].ID)
	assert.NotEqual(t, assistant.ToolCalls[0].ID, assistant.ToolCalls[1].ID)
	assert.Equal(t, assistant.ToolCalls[0].ID, msgs[3].ToolCallID)
	assert.Equal(t, assistant.ToolCalls[1].ID, msgs[4].ToolCallID)
}

func TestTurn_StateTransitions(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{},
		reply("", call("p", "probe", `{}`)),
		reply("Done."),
	)
	var seen []State
	h.gateway.observe = func() { seen = append(seen, h.loop.State()) }

	assert.Equal(t, AwaitingUserInput, h.loop.State())
	require.NoError(t, h.loop.Turn(context.Background(), h.session, "go").Err)

	assert.Equal(t, []State{AwaitingModel, AwaitingModel}, seen)
	assert.Equal(t, []State{ProcessingTools}, h.probe.states)
	assert.Equal(t, AwaitingUserInput, h.loop.State())
	assert.Equal(t, "PROCESSING_TOOLS", ProcessingTools.String())
}

func TestTurn_RetriesTransientGatewayErrors(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{GatewayRetries: 2, GatewayRetryBackoff: "10ms"},
		fail(errors.New("429 too many requests")),
		fail(talkErrors.Transient("upstream overloaded")),
		reply("Recovered."),
	)

	res := h.loop.Turn(context.Background(), h.session, "hello")
	require.NoError(t, res.Err)
	assert.Equal(t, "Recovered.", res.Text)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, h.sleeps)
	assert.Len(t, h.gateway.requests, 3)
}

func TestTurn_SurfacesGatewayFailure(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{GatewayRetries: 1, GatewayRetryBackoff: "5ms"},
		fail(errors.New("503 service unavailable")),
		fail(errors.New("503 service unavailable")),
	)

	res := h.loop.Turn(context.Background(), h.session, "hello")
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, talkErrors.ErrGateway)
	assert.ErrorIs(t, res.Err, talkErrors.ErrTransient)
	assert.Equal(t, AwaitingUserInput, h.loop.State())
	assert.Len(t, h.gateway.requests, 2)

	require.Len(t, h.presenter.errors, 1)
	assert.Contains(t, h.presenter.errors[0], "503")
	assert.Len(t, entriesOf(h.session.Log, conversation.KindError), 1)
	assert.Equal(t, []string{"system", "user"}, roles(h.session.Log.Messages()), "no assistant entry on failure")

	// The next turn carries on from a valid log.
	h.script(reply("Back online."))
	res = h.loop.Turn(context.Background(), h.session, "again")
	require.NoError(t, res.Err)
	last := h.gateway.requests[len(h.gateway.requests)-1]
	assert.Equal(t, []string{"system", "user", "user"}, roles(last.Messages))
}

func TestTurn_DoesNotRetryPermanentErrors(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{GatewayRetries: 3},
		fail(errors.New("401 unauthorized")),
	)

	res := h.loop.Turn(context.Background(), h.session, "hello")
	assert.ErrorIs(t, res.Err, talkErrors.ErrGateway)
	assert.ErrorIs(t, res.Err, talkErrors.ErrInvalidInput)
	assert.Len(t, h.gateway.requests, 1)
	assert.Empty(t, h.sleeps)
}

func TestTurn_GatewayTimeout(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{GatewayTimeout: "20ms"})
	h.loop.gateway = gatewayFunc(func(ctx context.Context, _ contract.CompletionRequest) (*contract.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	res := h.loop.Turn(context.Background(), h.session, "hello")
	assert.ErrorIs(t, res.Err, talkErrors.ErrGateway)
	assert.ErrorIs(t, res.Err, talkErrors.ErrTransient)
	assert.Len(t, h.presenter.errors, 1)
}

func TestTurn_IterationLimit(t *testing.T) {
	loopingCall := reply("", call("", builtin.WeatherToolName, `{"location":"Tokyo"}`))
	h := newHarness(t, config.OrchestratorConfig{MaxIterations: 3}, loopingCall, loopingCall, loopingCall, loopingCall)

	res := h.loop.Turn(context.Background(), h.session, "loop forever")
	assert.ErrorIs(t, res.Err, ErrIterationLimit)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, res.ToolCalls)
	assert.Len(t, h.gateway.requests, 3)
	require.NoError(t, h.session.Log.Validate(), "every call was answered")
	assert.Len(t, h.presenter.errors, 1)
}

func TestTurn_WithoutPresenter(t *testing.T) {
	h := newHarness(t, config.OrchestratorConfig{}, reply("Hi."))
	sess := session.New(sqlconn.Target{Table: "orders"}, nil)

	res := h.loop.Turn(context.Background(), sess, "hello")
	require.NoError(t, res.Err)
	assert.Equal(t, "Hi.", res.Text)
}

func TestNewLoop(t *testing.T) {
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	dispatcher := tool.NewDispatcher(registry)

	_, err = NewLoop(nil, dispatcher, config.OrchestratorConfig{}, "")
	assert.ErrorIs(t, err, talkErrors.ErrInvalidInput)

	_, err = NewLoop(&scriptedGateway{}, nil, config.OrchestratorConfig{}, "")
	assert.ErrorIs(t, err, talkErrors.ErrInvalidInput)

	_, err = NewLoop(&scriptedGateway{}, dispatcher, config.OrchestratorConfig{GatewayTimeout: "soon"}, "")
	assert.Error(t, err)

	loop, err := NewLoop(&scriptedGateway{}, dispatcher, config.OrchestratorConfig{SystemPrompt: "  "}, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSystemPrompt, loop.prompt)
	assert.Equal(t, config.DefaultOrchestratorMaxIterations, loop.maxIterations)

	loop.SetModel(" claude ")
	assert.Equal(t, "claude", loop.Model())
}

type gatewayFunc func(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)

func (f gatewayFunc) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return f(ctx, req)
}

func countRole(msgs []contract.Message, role string) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}
