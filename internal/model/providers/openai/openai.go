package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/tabletalk/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

// Provider speaks the OpenAI chat completions protocol. It also serves Ollama
// and Azure OpenAI deployments: a non-empty apiVersion switches to Azure
// routing where the model name selects the deployment.
type Provider struct {
	client *openai.Client
}

func New(apiKey, baseURL, apiVersion string) *Provider {
	baseURL = strings.TrimSuffix(baseURL, "/")

	var cfg openai.ClientConfig
	if apiVersion != "" {
		cfg = openai.DefaultAzureConfig(apiKey, baseURL)
		cfg.APIVersion = apiVersion
	} else {
		cfg = openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
	}

	return &Provider{client: openai.NewClientWithConfig(cfg)}
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toChatMessages(req.Messages),
		Tools:    toTools(req.Tools),
	}
	if len(chatReq.Tools) > 0 && req.ToolChoice != "" {
		chatReq.ToolChoice = req.ToolChoice
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]
	result := &contract.CompletionResponse{
		Content: choice.Message.Content,
		Usage: contract.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", len(result.ToolCalls)+1)
		}
		result.ToolCalls = append(result.ToolCalls, &contract.ToolCall{
			ID:    id,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}

	return result, nil
}

func toChatMessages(in []contract.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == contract.RoleTool {
			msg.Name = m.Name
		}

		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Input,
				},
			})
		}

		messages = append(messages, msg)
	}
	return messages
}

func toTools(defs []contract.ToolDef) []openai.Tool {
	var tools []openai.Tool
	for _, t := range defs {
		params := t.Parameters
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
