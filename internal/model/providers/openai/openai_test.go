package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/tabletalk/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [
        {"id": "call_a", "type": "function", "function": {"name": "get_table", "arguments": "{\"select_part\":\"*\",\"additional_query\":\"LIMIT 5\"}"}},
        {"id": "", "type": "function", "function": {"name": "get_current_weather", "arguments": "{\"location\":\"Paris\"}"}}
      ]
    }
  }],
  "usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
}`

func TestGenerate_TranslatesToolCallsBothWays(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallResponse)
	}))
	defer server.Close()

	p := New("sk-test", server.URL, "")
	resp, err := p.Generate(context.Background(), contract.CompletionRequest{
		Model: "gpt-4o",
		Messages: []contract.Message{
			{Role: contract.RoleSystem, Content: "be brief"},
			{Role: contract.RoleUser, Content: "show me 5 rows"},
			{Role: contract.RoleAssistant, ToolCalls: []*contract.ToolCall{{ID: "call_0", Name: "get_info_on_connected_table", Input: "{}"}}},
			{Role: contract.RoleTool, ToolCallID: "call_0", Name: "get_info_on_connected_table", Content: "id INTEGER"},
		},
		Tools:      []contract.ToolDef{{Name: "get_table", Description: "query"}},
		ToolChoice: "auto",
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_a", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_table", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"select_part":"*","additional_query":"LIMIT 5"}`, resp.ToolCalls[0].Input)
	assert.Equal(t, "call_2", resp.ToolCalls[1].ID)
	assert.Equal(t, 42, resp.Usage.PromptTokens)
	assert.Equal(t, 7, resp.Usage.CompletionTokens)

	assert.Equal(t, "auto", captured["tool_choice"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 4)
	assistant := messages[2].(map[string]interface{})
	calls := assistant["tool_calls"].([]interface{})
	assert.Equal(t, "call_0", calls[0].(map[string]interface{})["id"])
	toolMsg := messages[3].(map[string]interface{})
	assert.Equal(t, "call_0", toolMsg["tool_call_id"])
	assert.Equal(t, "get_info_on_connected_table", toolMsg["name"])

	tools := captured["tools"].([]interface{})
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "object", fn["parameters"].(map[string]interface{})["type"])
}

func TestGenerate_AzureRouting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Contains(t, r.URL.Path, "/openai/deployments/gpt-4o/chat/completions")
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer server.Close()

	p := New("az-key", server.URL, "2024-06-01")
	resp, err := p.Generate(context.Background(), contract.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []contract.Message{{Role: contract.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestGenerate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer server.Close()

	_, err := New("sk", server.URL, "").Generate(context.Background(), contract.CompletionRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
