package models

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// ErrNoProviders is returned when no provider has credentials and models.
var ErrNoProviders = errors.New("no LLM providers configured")

// ProviderConfig describes one hosted model family.
type ProviderConfig struct {
	Name    string
	Kind    string // gemini, openai, anthropic, ollama, dummy
	APIKey  string
	BaseURL string
	Models  []string
}

// Provider builds LLM clients for each of its models on demand.
type Provider struct {
	Name   string
	Models []string
	New    func(model string) (LLM, error)
}

// Candidate is the model chosen for a single agent run.
type Candidate struct {
	Provider string
	Model    string
	Display  string
	LLM      LLM
}

// NewLLMProvider maps a provider config onto its client constructor.
// Providers missing credentials return (nil, nil) so callers can skip them.
func NewLLMProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if len(cfg.Models) == 0 {
		return nil, nil
	}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = strings.ToLower(cfg.Name)
	}
	if kind != "ollama" && kind != "dummy" && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}

	p := &Provider{Name: cfg.Name, Models: append([]string(nil), cfg.Models...)}
	switch kind {
	case "openai", "groq", "a4f":
		p.New = func(model string) (LLM, error) {
			return NewOpenAILLM(cfg.APIKey, cfg.BaseURL, model), nil
		}
	case "gemini", "google":
		p.New = func(model string) (LLM, error) {
			return NewGeminiLLM(ctx, cfg.APIKey, model)
		}
	case "ollama":
		p.New = func(model string) (LLM, error) {
			return NewOllamaLLM(cfg.BaseURL, model)
		}
	case "anthropic", "claude":
		p.New = func(model string) (LLM, error) {
			return NewAnthropicLLM(cfg.APIKey, model), nil
		}
	case "dummy":
		p.New = func(model string) (LLM, error) {
			return NewDummyLLM(model + ":"), nil
		}
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
	return p, nil
}

// Selector picks a provider uniformly at random and then one of its models.
type Selector struct {
	providers []*Provider

	mu      sync.Mutex
	rnd     *rand.Rand
	clients map[string]LLM
}

// NewSelector requires at least one usable provider.
func NewSelector(providers []*Provider, rnd *rand.Rand) (*Selector, error) {
	var usable []*Provider
	for _, p := range providers {
		if p == nil || p.New == nil || len(p.Models) == 0 {
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) == 0 {
		return nil, ErrNoProviders
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{providers: usable, rnd: rnd, clients: make(map[string]LLM)}, nil
}

// BuildSelector constructs every configured provider and wraps them in a Selector.
func BuildSelector(ctx context.Context, cfgs []ProviderConfig) (*Selector, error) {
	var providers []*Provider
	for _, cfg := range cfgs {
		p, err := NewLLMProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
		}
		if p != nil {
			providers = append(providers, p)
		}
	}
	return NewSelector(providers, nil)
}

// Providers lists the usable provider names in configuration order.
func (s *Selector) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name)
	}
	return names
}

// Pick chooses a model for the next run. Clients are built once per model.
func (s *Selector) Pick() (Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.providers[s.rnd.IntN(len(s.providers))]
	model := p.Models[s.rnd.IntN(len(p.Models))]

	key := p.Name + "|" + model
	llm, ok := s.clients[key]
	if !ok {
		var err error
		llm, err = p.New(model)
		if err != nil {
			return Candidate{}, fmt.Errorf("init %s/%s: %w", p.Name, model, err)
		}
		s.clients[key] = llm
	}
	return Candidate{Provider: p.Name, Model: model, Display: DisplayName(model), LLM: llm}, nil
}

// DisplayName strips aggregator routing prefixes such as "provider-4/".
func DisplayName(model string) string {
	if strings.HasPrefix(model, "provider-") {
		if idx := strings.Index(model, "/"); idx >= 0 && idx < len(model)-1 {
			return model[idx+1:]
		}
	}
	return model
}
