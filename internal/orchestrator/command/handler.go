package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/sqlconn"

	"github.com/google/shlex"
)

// Handler runs in-session slash commands. Command output goes to the
// presenter only; it never enters the conversation.
type Handler interface {
	CanHandle(input string) bool
	Execute(ctx context.Context, sess *session.Session, input string) (Result, error)
}

// Result tells the caller what the command produced and whether the
// session should end.
type Result struct {
	Message string
	Exit    bool
}

// ModelSelector is the part of the loop /model talks to.
type ModelSelector interface {
	Model() string
	SetModel(name string)
}

type DefaultCommandHandler struct {
	models   ModelSelector
	required []string
}

const commandOutputPrefix = "[CMD] "

// NewHandler builds the handler. required lists the target parts the active
// connector needs, so /use can reject references it could never query.
func NewHandler(models ModelSelector, required ...string) *DefaultCommandHandler {
	return &DefaultCommandHandler{
		models:   models,
		required: append([]string(nil), required...),
	}
}

func (h *DefaultCommandHandler) CanHandle(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

func (h *DefaultCommandHandler) Execute(ctx context.Context, sess *session.Session, input string) (Result, error) {
	parts, parseErr := shlex.Split(input)
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return Result{}, nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	slog.Info("Executing slash command", "cmd", cmd, "session", sessionID(sess))

	var res Result
	var err error

	switch cmd {
	case "/use":
		res.Message, err = h.handleUse(sess, args)
	case "/target":
		res.Message, err = h.handleTarget(sess)
	case "/clear":
		res.Message, err = h.handleClear(sess)
	case "/model":
		res.Message, err = h.handleModel(args)
	case "/exit", "/quit":
		res = Result{Message: "Bye.", Exit: true}
	case "/help":
		res.Message = h.helpText()
	default:
		res.Message = fmt.Sprintf("Unknown command: %s", cmd)
	}

	if err != nil {
		res.Message = fmt.Sprintf("Command failed: %v", err)
		slog.Error("Command execution failed", "cmd", cmd, "error", err)
	}

	if sess != nil && sess.Presenter != nil {
		if err := sess.Presenter.ShowText(ctx, formatCommandOutput(res.Message)); err != nil {
			return res, fmt.Errorf("show command output: %w", err)
		}
	}
	return res, nil
}

func (h *DefaultCommandHandler) handleUse(sess *session.Session, args []string) (string, error) {
	if len(args) < 1 {
		return "Usage: /use <db.schema.table>", nil
	}
	if sess == nil {
		return "", fmt.Errorf("no active session")
	}
	target, err := sqlconn.ParseTarget(args[0])
	if err != nil {
		return "", err
	}
	if missing := target.Missing(h.required...); len(missing) > 0 {
		return "", fmt.Errorf("table reference %q is missing %s", args[0], strings.Join(missing, ", "))
	}
	sess.SetTarget(target)
	return fmt.Sprintf("Now talking about %s", target), nil
}

func (h *DefaultCommandHandler) handleTarget(sess *session.Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("no active session")
	}
	target := sess.Target()
	if target.Table == "" {
		return "No table selected. Use /use <db.schema.table>.", nil
	}
	return fmt.Sprintf("Current table: %s", target), nil
}

func (h *DefaultCommandHandler) handleClear(sess *session.Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("no active session")
	}
	sess.Reset()
	return "Conversation cleared.", nil
}

func (h *DefaultCommandHandler) handleModel(args []string) (string, error) {
	if h.models == nil {
		return "", fmt.Errorf("model selection not available")
	}
	if len(args) < 1 {
		current := h.models.Model()
		if current == "" {
			current = "(default)"
		}
		return fmt.Sprintf("Current model: %s", current), nil
	}
	h.models.SetModel(args[0])
	return fmt.Sprintf("Model set to %s", args[0]), nil
}

func (h *DefaultCommandHandler) helpText() string {
	return "Available commands: /help, /use <db.schema.table>, /target, /model [name], /clear, /exit"
}

func formatCommandOutput(msg string) string {
	if strings.HasPrefix(msg, commandOutputPrefix) {
		return msg
	}
	return commandOutputPrefix + msg
}

func sessionID(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}
