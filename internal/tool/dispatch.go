package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
	"github.com/harunnryd/tabletalk/internal/logger"
	"github.com/harunnryd/tabletalk/internal/model/contract"
	"github.com/harunnryd/tabletalk/internal/session"
)

// DispatchError carries a dispatch failure category and its detail.
type DispatchError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *DispatchError) Error() string {
	return e.Kind.Error() + ": " + e.Detail
}

func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke resolves, decodes, validates and runs one call. Panics in the tool
// are recovered into errors.
func (d *Dispatcher) Invoke(ctx context.Context, sess *session.Session, name, rawArgs string) (reply string, err error) {
	t, ok := d.registry.Get(name)
	if !ok {
		return "", &DispatchError{Kind: talkErrors.ErrUnresolvableTool, Detail: name}
	}

	args, err := DecodeArguments(rawArgs)
	if err != nil {
		return "", &DispatchError{Kind: talkErrors.ErrMalformedArguments, Detail: err.Error(), Err: err}
	}
	if err := ValidateArguments(NormalizeToolName(t.Name()), t.Parameters(), args); err != nil {
		return "", err
	}
	input, err := json.Marshal(args)
	if err != nil {
		return "", &DispatchError{Kind: talkErrors.ErrMalformedArguments, Detail: err.Error(), Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", t.Name(), "panic", r, "stack", string(debug.Stack()), "trace_id", logger.GetTraceID(ctx))
			reply = ""
			err = &DispatchError{Kind: talkErrors.ErrToolFailed, Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()

	reply, err = t.Execute(ctx, sess, input)
	if err != nil {
		return "", &DispatchError{Kind: talkErrors.ErrToolFailed, Detail: err.Error(), Err: err}
	}
	return reply, nil
}

// Dispatch runs call and appends exactly one tool reply to the session log,
// whatever the outcome. It never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, call *contract.ToolCall) contract.Message {
	if call == nil {
		call = &contract.ToolCall{}
	}
	start := time.Now()
	traceID := logger.GetTraceID(ctx)

	reply, err := d.Invoke(ctx, sess, call.Name, call.Input)
	outcome := "ok"
	if err != nil {
		reply = ReplyText(err)
		outcome = Outcome(err)
		slog.Warn("Tool call failed",
			"tool", call.Name,
			"call_id", call.ID,
			"outcome", outcome,
			"error", err,
			"duration", time.Since(start),
			"trace_id", traceID,
		)
	} else {
		slog.Info("Tool call completed",
			"tool", call.Name,
			"call_id", call.ID,
			"outcome", outcome,
			"duration", time.Since(start),
			"trace_id", traceID,
		)
	}

	msg := contract.Message{
		Role:       contract.RoleTool,
		Content:    reply,
		Name:       call.Name,
		ToolCallID: call.ID,
	}
	if sess != nil && sess.Log != nil {
		sess.Log.Append(msg)
	}
	return msg
}

// ReplyText converts a dispatch failure into the text the model receives.
func ReplyText(err error) string {
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return "Wrong parameters provided: " + argErr.Error()
	}

	detail := err.Error()
	var dErr *DispatchError
	if errors.As(err, &dErr) {
		detail = dErr.Detail
	}

	switch {
	case errors.Is(err, talkErrors.ErrUnresolvableTool):
		return "Wrong function name: " + detail
	case errors.Is(err, talkErrors.ErrMalformedArguments):
		return "Invalid function arguments: " + detail
	default:
		return "An error occurred in the function: " + detail
	}
}

// Outcome names the failure category for logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, talkErrors.ErrUnresolvableTool):
		return "unresolvable"
	case errors.Is(err, talkErrors.ErrMalformedArguments):
		return "malformed_arguments"
	case errors.Is(err, talkErrors.ErrInvalidArguments):
		return "invalid_arguments"
	default:
		return "failed"
	}
}
