package models

import (
	"context"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is a provider-neutral chat message.
// Tool messages carry the ID and name of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HasToolCalls reports whether the message is an assistant turn requesting tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ToolSpec describes how a tool is presented to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolChoice constrains whether the model may call the offered tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = ""
	// ToolChoiceNone keeps the tool definitions in the request but forbids
	// new calls. Providers that replay tool turns need the definitions.
	ToolChoiceNone ToolChoice = "none"
)

// ChatRequest is a single model call. System is sent out of band from Messages.
type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolSpec
	ToolChoice  ToolChoice
	Temperature float32
}

// LLM is implemented by every chat provider.
type LLM interface {
	Chat(ctx context.Context, req ChatRequest) (Message, error)
}

// File is a lightweight in-memory attachment.
// Name is used for display; MIME should be best-effort (e.g., "image/png").
type File struct {
	Name string
	MIME string
	Data []byte
}

func schemaProperties(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	return props
}

func schemaRequired(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
