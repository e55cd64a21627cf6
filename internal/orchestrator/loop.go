package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/tabletalk/internal/config"
	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/logger"
	"github.com/harunnryd/tabletalk/internal/model"
	"github.com/harunnryd/tabletalk/internal/model/contract"
	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/tool"

	"github.com/oklog/ulid/v2"
)

// State is where the loop sits within a turn.
type State int32

const (
	AwaitingUserInput State = iota
	AwaitingModel
	ProcessingTools
)

func (s State) String() string {
	switch s {
	case AwaitingUserInput:
		return "AWAITING_USER_INPUT"
	case AwaitingModel:
		return "AWAITING_MODEL"
	case ProcessingTools:
		return "PROCESSING_TOOLS"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrIterationLimit is returned when a turn keeps requesting tools past
// orchestrator.max_iterations.
var ErrIterationLimit = errors.New("model round-trip limit reached")

// TurnResult is what one user input produced.
type TurnResult struct {
	Text       string
	Iterations int
	ToolCalls  int
	Err        error
}

// Loop drives one conversation between the user, the gateway and the tools.
// It is not safe for concurrent turns on the same session.
type Loop struct {
	gateway    model.Gateway
	dispatcher *tool.Dispatcher
	mapper     talkErrors.ErrorMapper

	modelMu       sync.RWMutex
	model         string
	prompt        string
	toolChoice    string
	maxIterations int
	retries       int
	timeout       time.Duration
	backoff       time.Duration

	state atomic.Int32
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLoop(gateway model.Gateway, dispatcher *tool.Dispatcher, cfg config.OrchestratorConfig, modelName string) (*Loop, error) {
	if gateway == nil {
		return nil, talkErrors.InvalidInput("orchestrator needs a gateway")
	}
	if dispatcher == nil || dispatcher.Registry() == nil {
		return nil, talkErrors.InvalidInput("orchestrator needs a tool dispatcher")
	}

	timeout, err := cfg.GatewayTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("parse orchestrator gateway timeout: %w", err)
	}
	backoff, err := cfg.GatewayRetryBackoffDuration()
	if err != nil {
		return nil, fmt.Errorf("parse orchestrator gateway retry backoff: %w", err)
	}

	l := &Loop{
		gateway:       gateway,
		dispatcher:    dispatcher,
		mapper:        talkErrors.NewDefaultErrorMapper(),
		model:         modelName,
		prompt:        cfg.SystemPrompt,
		toolChoice:    cfg.ToolChoice,
		maxIterations: cfg.MaxIterations,
		retries:       cfg.GatewayRetries,
		timeout:       timeout,
		backoff:       backoff,
		sleep:         sleepContext,
	}
	if strings.TrimSpace(l.prompt) == "" {
		l.prompt = config.DefaultSystemPrompt
	}
	if l.toolChoice == "" {
		l.toolChoice = config.DefaultToolChoice
	}
	if l.maxIterations <= 0 {
		l.maxIterations = config.DefaultOrchestratorMaxIterations
	}
	if l.retries < 0 {
		l.retries = 0
	}
	return l, nil
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Model is the model id sent with every completion request. Empty means the
// router default.
func (l *Loop) Model() string {
	l.modelMu.RLock()
	defer l.modelMu.RUnlock()
	return l.model
}

func (l *Loop) SetModel(name string) {
	l.modelMu.Lock()
	defer l.modelMu.Unlock()
	l.model = strings.TrimSpace(name)
}

// Turn takes one user input through to the next AWAITING_USER_INPUT state.
// Failures are surfaced to the user and returned in TurnResult.Err; the log
// is left valid for the next turn.
func (l *Loop) Turn(ctx context.Context, sess *session.Session, text string) TurnResult {
	if sess == nil || sess.Log == nil {
		return TurnResult{Err: talkErrors.InvalidInput("turn needs a session")}
	}
	ctx = logger.WithTraceID(ctx, logger.NewTraceID())
	ctx = logger.WithSessionID(ctx, sess.ID)
	defer l.setState(AwaitingUserInput)

	sess.Log.EnsureSystem(l.prompt)
	sess.Log.Append(contract.Message{Role: contract.RoleUser, Content: text})
	slog.Info("Turn started", "session", sess.ID, "trace_id", logger.GetTraceID(ctx))

	tools := l.dispatcher.Registry().Definitions()
	result := TurnResult{}

	for result.Iterations < l.maxIterations {
		if err := sess.Log.Validate(); err != nil {
			return l.fail(ctx, sess, result, talkErrors.WrapWithCategory(err, "conversation is inconsistent", talkErrors.ErrInternal))
		}

		l.setState(AwaitingModel)
		result.Iterations++
		resp, err := l.complete(ctx, contract.CompletionRequest{
			Model:      l.Model(),
			Messages:   sess.Log.Messages(),
			Tools:      tools,
			ToolChoice: l.toolChoice,
		})
		if err != nil {
			return l.fail(ctx, sess, result, err)
		}

		calls := normalizeCalls(resp.ToolCalls)
		sess.Log.Append(contract.Message{
			Role:      contract.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})

		if len(calls) == 0 {
			result.Text = resp.Content
			l.show(ctx, sess, resp.Content)
			slog.Info("Turn completed", "iterations", result.Iterations, "tool_calls", result.ToolCalls, "trace_id", logger.GetTraceID(ctx))
			return result
		}

		// Interim text that rides along with tool calls is shown too.
		if strings.TrimSpace(resp.Content) != "" {
			l.show(ctx, sess, resp.Content)
		}

		l.setState(ProcessingTools)
		for _, call := range calls {
			l.dispatcher.Dispatch(ctx, sess, call)
			result.ToolCalls++
		}
	}

	return l.fail(ctx, sess, result, fmt.Errorf("%w: %d", ErrIterationLimit, l.maxIterations))
}

// complete calls the gateway, retrying transient failures with exponential
// backoff.
func (l *Loop) complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	traceID := logger.GetTraceID(ctx)
	backoff := l.backoff

	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying gateway call", "attempt", attempt, "backoff", backoff, "error", lastErr, "trace_id", traceID)
			if err := l.sleep(ctx, backoff); err != nil {
				return nil, talkErrors.WrapWithCategory(err, "gateway retry aborted", talkErrors.ErrGateway)
			}
			backoff *= 2
		}

		start := time.Now()
		resp, err := l.callOnce(ctx, req)
		if err == nil {
			slog.Info("Gateway call completed",
				"model", req.Model,
				"messages", len(req.Messages),
				"tool_calls", len(resp.ToolCalls),
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens,
				"duration", time.Since(start),
				"trace_id", traceID,
			)
			return resp, nil
		}

		lastErr = l.mapper.MapError(err)
		if ctx.Err() != nil || !l.mapper.IsRetryable(lastErr) {
			break
		}
	}
	return nil, talkErrors.WrapWithCategory(lastErr, "gateway call failed", talkErrors.ErrGateway)
}

func (l *Loop) callOnce(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	resp, err := l.gateway.Complete(callCtx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, talkErrors.Internal("gateway returned no response")
	}
	return resp, nil
}

func (l *Loop) fail(ctx context.Context, sess *session.Session, result TurnResult, err error) TurnResult {
	text := "Error: " + err.Error()
	sess.Log.AppendError(text)
	slog.Error("Turn failed",
		"category", talkErrors.Category(err),
		"iterations", result.Iterations,
		"error", err,
		"trace_id", logger.GetTraceID(ctx),
	)
	if sess.Presenter != nil {
		if showErr := sess.Presenter.ShowError(ctx, err.Error()); showErr != nil {
			slog.Warn("Failed to show error", "error", showErr)
		}
	}
	result.Err = err
	return result
}

func (l *Loop) show(ctx context.Context, sess *session.Session, text string) {
	if sess.Presenter == nil {
		return
	}
	if err := sess.Presenter.ShowText(ctx, text); err != nil {
		slog.Warn("Failed to show assistant text", "error", err, "trace_id", logger.GetTraceID(ctx))
	}
}

// normalizeCalls drops nil calls and gives id-less calls a generated id so
// every reply can reference its call.
func normalizeCalls(calls []*contract.ToolCall) []*contract.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]*contract.ToolCall, 0, len(calls))
	seen := make(map[string]bool, len(calls))
	for _, call := range calls {
		if call == nil {
			continue
		}
		c := *call
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + ulid.Make().String()
		}
		seen[c.ID] = true
		out = append(out, &c)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
