package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiLLM struct {
	Client *genai.Client
	Model  string
}

func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiLLM{Client: client, Model: model}, nil
}

func (g *GeminiLLM) Chat(ctx context.Context, req ChatRequest) (Message, error) {
	model := g.Client.GenerativeModel(g.Model)
	if sys := strings.TrimSpace(req.System); sys != "" {
		model.SystemInstruction = &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(sys)}}
	}
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  geminiSchema(spec.InputSchema),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if req.ToolChoice == ToolChoiceNone {
			model.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingNone},
			}
		}
	}

	contents := geminiContents(req.Messages)
	if len(contents) == 0 {
		return Message{}, errors.New("gemini: no messages to send")
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return Message{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Message{}, errors.New("gemini: empty response")
	}

	out := Message{Role: RoleAssistant}
	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d_%s", i, p.Name),
				Name:      p.Name,
				Arguments: p.Args,
			})
		}
	}
	out.Content = strings.TrimSpace(text.String())
	return out, nil
}

// geminiContents maps the neutral history onto Gemini's alternating user/model
// turns. Function responses travel as user content and adjacent turns with the
// same role are merged.
func geminiContents(msgs []Message) []*genai.Content {
	var contents []*genai.Content
	push := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			if strings.TrimSpace(m.Content) != "" {
				push("user", genai.Text(m.Content))
			}
		case RoleAssistant:
			var parts []genai.Part
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
			}
			push("model", parts...)
		case RoleTool:
			push("user", genai.FunctionResponse{
				Name:     m.Name,
				Response: map[string]any{"content": m.Content},
			})
		}
	}
	return contents
}

func geminiSchema(schema map[string]any) *genai.Schema {
	if len(schema) == 0 {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{Type: geminiType(schema["type"])}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props := schemaProperties(schema); len(props) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				out.Properties[name] = geminiSchema(sub)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = geminiSchema(items)
	}
	out.Required = schemaRequired(schema)
	return out
}

func geminiType(v any) genai.Type {
	s, _ := v.(string)
	switch strings.ToLower(s) {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

var _ LLM = (*GeminiLLM)(nil)
