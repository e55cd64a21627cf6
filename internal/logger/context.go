package logger

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const TraceIDKey contextKey = "trace_id"
const SessionIDKey contextKey = "session_id"

// NewTraceID returns a sortable id for one user turn.
func NewTraceID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
