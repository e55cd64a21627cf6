// Package mcpserve exposes the tool registry over MCP stdio, so the same
// tools can be driven by an external agent instead of the chat loop.
package mcpserve

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/harunnryd/tabletalk/internal/concurrency"
	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/logger"
	"github.com/harunnryd/tabletalk/internal/session"
	"github.com/harunnryd/tabletalk/internal/tool"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server binds every registered tool to one shared session, so a chart call
// finds the dataframe of an earlier query call. Calls on the session run one
// at a time.
type Server struct {
	mcp        *server.MCPServer
	dispatcher *tool.Dispatcher
	session    *session.Session
	locks      *concurrency.KeyedMutex
	timeout    time.Duration
}

func New(cfg config.MCPConfig, dispatcher *tool.Dispatcher, sess *session.Session) *Server {
	name := cfg.Name
	if name == "" {
		name = config.DefaultMCPName
	}
	version := cfg.Version
	if version == "" {
		version = config.DefaultMCPVersion
	}

	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		dispatcher: dispatcher,
		session:    sess,
		locks:      concurrency.NewKeyedMutex(),
	}

	for _, desc := range dispatcher.Registry().GetDescriptors() {
		s.mcp.AddTool(toolSpec(desc), s.Handler(desc.Definition.Name))
	}
	slog.Info("MCP server created", "name", name, "tools", len(dispatcher.Registry().Names()))
	return s
}

// WithCallTimeout bounds every tool call; zero means no bound.
func (s *Server) WithCallTimeout(d time.Duration) *Server {
	s.timeout = d
	return s
}

// Handler returns the MCP handler for one registered tool. Dispatch failures
// come back as error results carrying the same text the chat loop would send
// the model.
func (s *Server) Handler(name string) func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		ctx := logger.WithTraceID(context.Background(), logger.NewTraceID())
		ctx = logger.WithSessionID(ctx, s.session.ID)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		raw := ""
		if arguments != nil {
			encoded, err := json.Marshal(arguments)
			if err != nil {
				return textResult(tool.ReplyText(err), true), nil
			}
			raw = string(encoded)
		}

		s.locks.Lock(s.session.ID)
		defer s.locks.Unlock(s.session.ID)

		start := time.Now()
		reply, err := s.dispatcher.Invoke(ctx, s.session, name, raw)
		if err != nil {
			slog.Warn("MCP tool call failed", "tool", name, "outcome", tool.Outcome(err), "error", err, "trace_id", logger.GetTraceID(ctx))
			return textResult(tool.ReplyText(err), true), nil
		}
		slog.Info("MCP tool call completed", "tool", name, "duration", time.Since(start), "trace_id", logger.GetTraceID(ctx))
		return textResult(reply, false), nil
	}
}

func (s *Server) Serve() error {
	slog.Info("Starting MCP server on stdio")
	if err := server.ServeStdio(s.mcp); err != nil {
		slog.Error("MCP server stopped", "error", err)
		return err
	}
	return nil
}

func toolSpec(desc tool.ToolDescriptor) mcp.Tool {
	params := desc.Definition.Parameters
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}}
	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = props
	}
	schema.Required = requiredFields(params["required"])

	return mcp.Tool{
		Name:        desc.Definition.Name,
		Description: desc.Definition.Description,
		InputSchema: schema,
	}
}

func requiredFields(v interface{}) []string {
	switch req := v.(type) {
	case []string:
		return append([]string(nil), req...)
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []interface{}{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: isError,
	}
}
