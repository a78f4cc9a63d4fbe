package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

// OllamaLLM is a local text-only provider. Tool specs are ignored and tool
// results are replayed as plain tool-role messages.
type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaLLM(host, model string) (*OllamaLLM, error) {
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	c := ollama.NewClient(u, httpClient)
	return &OllamaLLM{Client: c, Model: model}, nil
}

func (o *OllamaLLM) Chat(ctx context.Context, req ChatRequest) (Message, error) {
	msgs := make([]ollama.Message, 0, len(req.Messages)+1)
	if sys := strings.TrimSpace(req.System); sys != "" {
		msgs = append(msgs, ollama.Message{Role: string(RoleSystem), Content: sys})
	}
	for _, m := range req.Messages {
		content := m.Content
		if m.Role == RoleAssistant && content == "" && len(m.ToolCalls) > 0 {
			content = fmt.Sprintf("(requested tool %s)", m.ToolCalls[0].Name)
		}
		msgs = append(msgs, ollama.Message{Role: string(m.Role), Content: content})
	}

	stream := false
	chatReq := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: msgs,
		Stream:   &stream,
	}
	if req.Temperature > 0 {
		chatReq.Options = map[string]any{"temperature": req.Temperature}
	}

	var text strings.Builder
	if err := o.Client.Chat(ctx, chatReq, func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		return nil
	}); err != nil {
		return Message{}, fmt.Errorf("ollama chat (%s): %w", o.Model, err)
	}

	return Message{Role: RoleAssistant, Content: strings.TrimSpace(text.String())}, nil
}

var _ LLM = (*OllamaLLM)(nil)
