package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAILLM talks to any OpenAI-compatible chat completions endpoint
// (OpenAI itself, Groq, the A4F aggregator).
type OpenAILLM struct {
	Client *openai.Client
	Model  string
}

func NewOpenAILLM(apiKey, baseURL, model string) *OpenAILLM {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAILLM{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (o *OpenAILLM) Chat(ctx context.Context, req ChatRequest) (Message, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if sys := strings.TrimSpace(req.System); sys != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}
	for _, m := range req.Messages {
		msg, err := toOpenAIMessage(m)
		if err != nil {
			return Message{}, err
		}
		messages = append(messages, msg)
	}

	creq := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	for _, spec := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}

	if len(creq.Tools) > 0 && req.ToolChoice == ToolChoiceNone {
		creq.ToolChoice = string(ToolChoiceNone)
	}

	resp, err := o.Client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Message{}, fmt.Errorf("openai chat (%s): %w", o.Model, err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, errors.New("no response from OpenAI")
	}

	choice := resp.Choices[0].Message
	out := Message{Role: RoleAssistant, Content: strings.TrimSpace(choice.Content)}
	for _, call := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: ParseToolArguments(call.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessage(m Message) (openai.ChatCompletionMessage, error) {
	switch m.Role {
	case RoleSystem:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content}, nil
	case RoleUser:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}, nil
	case RoleAssistant:
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
		for _, call := range m.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				return openai.ChatCompletionMessage{}, fmt.Errorf("encode arguments for %s: %w", call.Name, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
		return msg, nil
	case RoleTool:
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}, nil
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("unsupported role %q", m.Role)
	}
}

// ParseToolArguments decodes a raw argument payload. Non-JSON input is kept
// under the "input" key and JSON arrays under "items".
func ParseToolArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var payload map[string]any
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return payload
		}
	}
	if strings.HasPrefix(raw, "[") {
		var arr []any
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			return map[string]any{"items": arr}
		}
	}
	return map[string]any{"input": raw}
}

var _ LLM = (*OpenAILLM)(nil)
