package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/tabletalk/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Provider struct {
	client    anthropic.Client
	maxTokens int64
}

func New(apiKey, baseURL string, maxTokens int) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{
		client:    anthropic.NewClient(opts...),
		maxTokens: int64(maxTokens),
	}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	system, messages := toMessages(req.Messages)

	var tools []anthropic.ToolUnionParam
	for _, t := range req.Tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: toInputSchema(t.Parameters),
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}

	modelName := req.Model
	if modelName == "" {
		modelName = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: p.maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.ToolChoice = toToolChoice(req.ToolChoice)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	resp := &contract.CompletionResponse{
		Usage: contract.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += b.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, &contract.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: string(inputJSON),
			})
		}
	}

	return resp, nil
}

func toInputSchema(params map[string]interface{}) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{Properties: map[string]interface{}{}}
	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = props
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = append([]string(nil), req...)
	case []interface{}:
		for _, v := range req {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

// toToolChoice maps the contract value; anything unknown is left to the API
// default, which is auto.
func toToolChoice(choice string) anthropic.ToolChoiceUnionParam {
	switch choice {
	case contract.ToolChoiceAuto:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	case contract.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case contract.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{}
	}
}

// toMessages lifts system entries into the system prompt and groups the tool
// replies of one batch into a single user turn, since the Messages API expects
// every tool_result of a batch directly after the assistant's tool_use blocks.
func toMessages(in []contract.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range in {
		switch m.Role {
		case contract.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case contract.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case contract.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := tc.Input
				if strings.TrimSpace(input) == "" {
					input = "{}"
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(input), tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		default:
			flush()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()

	return system, messages
}
