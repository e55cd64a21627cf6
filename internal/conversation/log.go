// Package conversation is the per-session message log threaded through the
// tool-calling loop.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harunnryd/tabletalk/internal/model/contract"

	"github.com/oklog/ulid/v2"
)

type Kind string

const (
	// KindMessage entries are sent to the model.
	KindMessage Kind = "message"
	// The rest are display-only.
	KindDataframe Kind = "dataframe"
	KindChart     Kind = "chart"
	KindError     Kind = "error"
)

var (
	ErrDanglingToolCall = errors.New("dangling tool call")
	ErrOrphanToolReply  = errors.New("tool reply without a matching call")
)

// ArtifactRef points at a persisted query result.
type ArtifactRef struct {
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

type Entry struct {
	ID      string           `json:"id"`
	At      time.Time        `json:"at"`
	Kind    Kind             `json:"kind"`
	Message contract.Message `json:"message"`
	// Artifact is set on dataframe entries and, for chart entries, names the
	// side file the chart was drawn from.
	Artifact *ArtifactRef    `json:"artifact,omitempty"`
	Chart    json.RawMessage `json:"chart,omitempty"`
}

// Log is append-only, apart from EnsureSystem placing the system
// instruction in front.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

func New() *Log {
	return &Log{now: time.Now}
}

func (l *Log) newEntry(kind Kind, msg contract.Message) Entry {
	return Entry{
		ID:      ulid.Make().String(),
		At:      l.now(),
		Kind:    kind,
		Message: copyMessage(msg),
	}
}

func (l *Log) push(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return e
}

// Append records a model-visible message.
func (l *Log) Append(msg contract.Message) Entry {
	return l.push(l.newEntry(KindMessage, msg))
}

// AppendDataframe records a persisted query result.
func (l *Log) AppendDataframe(ref ArtifactRef) Entry {
	e := l.newEntry(KindDataframe, contract.Message{Role: contract.RoleAssistant, Content: ref.Path})
	e.Artifact = &ref
	return l.push(e)
}

// AppendChart records a displayed chart and the side file it was drawn from.
func (l *Log) AppendChart(spec json.RawMessage, source ArtifactRef) Entry {
	e := l.newEntry(KindChart, contract.Message{Role: contract.RoleAssistant})
	e.Artifact = &source
	e.Chart = append(json.RawMessage(nil), spec...)
	return l.push(e)
}

// AppendError records a failure the user was shown. The model never sees it.
func (l *Log) AppendError(text string) Entry {
	return l.push(l.newEntry(KindError, contract.Message{Role: contract.RoleAssistant, Content: text}))
}

// EnsureSystem makes prompt the first model-visible message when the log has
// none yet.
func (l *Log) EnsureSystem(prompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.Kind == KindMessage && e.Message.Role == contract.RoleSystem {
			return
		}
	}
	e := l.newEntry(KindMessage, contract.Message{Role: contract.RoleSystem, Content: prompt})
	l.entries = append([]Entry{e}, l.entries...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Messages returns the model-visible history in order.
func (l *Log) Messages() []contract.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]contract.Message, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Kind == KindMessage {
			out = append(out, copyMessage(e.Message))
		}
	}
	return out
}

// LatestDataframe scans backward for the most recent dataframe entry.
func (l *Log) LatestDataframe() (ArtifactRef, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if e := l.entries[i]; e.Kind == KindDataframe && e.Artifact != nil {
			return *e.Artifact, true
		}
	}
	return ArtifactRef{}, false
}

// Validate checks that every tool reply answers a call from the assistant
// batch right before it and that no call is left unanswered.
func (l *Log) Validate() error {
	pending := map[string]bool{}
	var order []string

	for _, msg := range l.Messages() {
		switch msg.Role {
		case contract.RoleTool:
			if !pending[msg.ToolCallID] {
				return fmt.Errorf("%w: %q", ErrOrphanToolReply, msg.ToolCallID)
			}
			delete(pending, msg.ToolCallID)
		default:
			if len(pending) > 0 {
				return fmt.Errorf("%w: %s", ErrDanglingToolCall, firstPending(order, pending))
			}
			order = order[:0]
			if msg.Role == contract.RoleAssistant {
				for _, call := range msg.ToolCalls {
					if call == nil {
						continue
					}
					pending[call.ID] = true
					order = append(order, call.ID)
				}
			}
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: %s", ErrDanglingToolCall, firstPending(order, pending))
	}
	return nil
}

func firstPending(order []string, pending map[string]bool) string {
	for _, id := range order {
		if pending[id] {
			return id
		}
	}
	return ""
}

func copyMessage(msg contract.Message) contract.Message {
	if len(msg.ToolCalls) == 0 {
		msg.ToolCalls = nil
		return msg
	}
	calls := make([]*contract.ToolCall, len(msg.ToolCalls))
	for i, c := range msg.ToolCalls {
		if c == nil {
			continue
		}
		cp := *c
		calls[i] = &cp
	}
	msg.ToolCalls = calls
	return msg
}
