package models

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// recordingServer answers every request with body and keeps the decoded
// request payloads.
type recordingServer struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (rs *recordingServer) start(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		rs.mu.Lock()
		rs.bodies = append(rs.bodies, payload)
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (rs *recordingServer) last(t *testing.T) map[string]any {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.bodies) == 0 {
		t.Fatalf("no request recorded")
	}
	return rs.bodies[len(rs.bodies)-1]
}

// exhaustedRequest replays a finished tool round and forbids further calls.
func exhaustedRequest() ChatRequest {
	return ChatRequest{
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "who wrote dune"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "toolu_1", Name: "wikipedia_search", Arguments: map[string]any{"query": "dune"}}}},
			{Role: RoleTool, ToolCallID: "toolu_1", Name: "wikipedia_search", Content: "tool limit reached"},
		},
		Tools: []ToolSpec{{
			Name:        "wikipedia_search",
			Description: "search wikipedia",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{"query": map[string]any{"type": "string"}}},
		}},
		ToolChoice: ToolChoiceNone,
	}
}

func TestAnthropicKeepsToolsWhenCallsAreForbidden(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
		"content":[{"type":"text","text":"Frank Herbert"}],"stop_reason":"end_turn",
		"usage":{"input_tokens":1,"output_tokens":1}}`)

	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey("test"),
		anthropicopt.WithBaseURL(srv.URL),
		anthropicopt.WithMaxRetries(0),
	)
	llm := &AnthropicLLM{Client: &cl, Model: "claude-test", MaxTokens: 64}

	reply, err := llm.Chat(context.Background(), exhaustedRequest())
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if reply.Content != "Frank Herbert" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	body := rs.last(t)
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Fatalf("tool definitions must accompany replayed tool turns, got %v", body["tools"])
	}
	choice, _ := body["tool_choice"].(map[string]any)
	if choice["type"] != "none" {
		t.Fatalf("expected tool_choice none, got %v", body["tool_choice"])
	}
}

func TestOpenAIToolChoice(t *testing.T) {
	rs := &recordingServer{}
	srv := rs.start(t, `{"id":"c1","object":"chat.completion","model":"m",
		"choices":[{"index":0,"message":{"role":"assistant","content":"Frank Herbert"},"finish_reason":"stop"}]}`)
	llm := NewOpenAILLM("test", srv.URL, "m")

	if _, err := llm.Chat(context.Background(), exhaustedRequest()); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	body := rs.last(t)
	if body["tool_choice"] != "none" {
		t.Fatalf("expected tool_choice none, got %v", body["tool_choice"])
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Fatalf("expected tools to be sent, got %v", body["tools"])
	}

	req := exhaustedRequest()
	req.ToolChoice = ToolChoiceAuto
	if _, err := llm.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if _, ok := rs.last(t)["tool_choice"]; ok {
		t.Fatalf("auto choice must leave tool_choice unset")
	}
}
