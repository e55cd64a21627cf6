package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/tabletalk/internal/model/contract"

	"google.golang.org/genai"
)

type Provider struct {
	client *genai.Client
}

func New(apiKey string, timeout time.Duration) (*Provider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

var callingModes = map[string]genai.FunctionCallingConfigMode{
	contract.ToolChoiceAuto:     genai.FunctionCallingConfigModeAuto,
	contract.ToolChoiceRequired: genai.FunctionCallingConfigModeAny,
	contract.ToolChoiceNone:     genai.FunctionCallingConfigModeNone,
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	system, contents := toContents(req.Messages)

	genCfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if mode, ok := callingModes[req.ToolChoice]; ok {
			genCfg.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
			}
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	out := &contract.CompletionResponse{}
	if resp == nil {
		return out, nil
	}

	for i, fc := range resp.FunctionCalls() {
		argsJSON, _ := json.Marshal(fc.Args)
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("%s_%d", fc.Name, i+1)
		}
		out.ToolCalls = append(out.ToolCalls, &contract.ToolCall{ID: id, Name: fc.Name, Input: string(argsJSON)})
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
		}
	}

	if resp.UsageMetadata != nil {
		out.Usage = contract.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	return out, nil
}

func toContents(in []contract.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for _, m := range in {
		switch m.Role {
		case contract.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
		case contract.RoleTool:
			contents = append(contents, &genai.Content{Role: "function", Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{ID: m.ToolCallID, Name: m.Name, Response: toolResponse(m.Content)},
			}}})
		case contract.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Input), &args)
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	return system, contents
}

// toolResponse wraps plain-text tool replies, which are the common case here,
// into the object shape FunctionResponse requires.
func toolResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": content}
}

// toSchema converts a JSON-schema parameter map into genai's typed schema.
func toSchema(in map[string]interface{}) *genai.Schema {
	if in == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := in["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := in["description"].(string); ok {
		schema.Description = d
	}
	schema.Enum = stringList(in["enum"])
	schema.Required = stringList(in["required"])

	if props, ok := in["properties"].(map[string]interface{}); ok && len(props) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if prop, ok := raw.(map[string]interface{}); ok {
				schema.Properties[name] = toSchema(prop)
			}
		}
	}
	if items, ok := in["items"].(map[string]interface{}); ok {
		schema.Items = toSchema(items)
	}

	return schema
}

func stringList(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
