// Package tools holds the functions the agent can call and the catalog that
// presents them to the model.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

// Request carries the arguments decoded from a model tool call.
type Request struct {
	ThreadID  string
	Arguments map[string]any
}

// Response is the text handed back to the model.
type Response struct {
	Content string
}

// Tool is a callable function advertised to the model.
type Tool interface {
	Spec() models.ToolSpec
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Catalog keeps tools keyed by lower-cased name in registration order.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
	specs map[string]models.ToolSpec
	order []string
}

// NewCatalog registers every tool, failing on nil, empty or duplicate names.
func NewCatalog(tools ...Tool) (*Catalog, error) {
	c := &Catalog{
		tools: make(map[string]Tool),
		specs: make(map[string]models.ToolSpec),
	}
	for _, t := range tools {
		if err := c.Register(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) Register(tool Tool) error {
	if tool == nil {
		return errors.New("tool is nil")
	}
	spec := tool.Spec()
	key := strings.ToLower(strings.TrimSpace(spec.Name))
	if key == "" {
		return errors.New("tool name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	c.tools[key] = tool
	c.specs[key] = spec
	c.order = append(c.order, key)
	return nil
}

func (c *Catalog) Lookup(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Specs returns the specs in registration order.
func (c *Catalog) Specs() []models.ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	specs := make([]models.ToolSpec, 0, len(c.order))
	for _, key := range c.order {
		specs = append(specs, c.specs[key])
	}
	return specs
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Call runs a model tool call. Unknown tools and tool failures are returned
// as errors; the agent turns them into tool message text.
func (c *Catalog) Call(ctx context.Context, threadID string, call models.ToolCall) (string, error) {
	t, ok := c.Lookup(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	resp, err := t.Invoke(ctx, Request{ThreadID: threadID, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("%s: %w", call.Name, err)
	}
	return resp.Content, nil
}

// stringArg reads the first non-empty string among keys, then the "input"
// fallback produced for non-JSON arguments.
func stringArg(args map[string]any, keys ...string) string {
	for _, key := range append(keys, "input") {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

func objectSchema(required []string, props map[string]any) map[string]any {
	req := make([]any, 0, len(required))
	for _, r := range required {
		req = append(req, r)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   req,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 20 * time.Second}
}

const userAgent = "Mozilla/5.0 (compatible; lattice-discord/1.0)"

// Options selects and configures the default tool set.
type Options struct {
	TavilyAPIKey  string
	SenderEmail   string
	EmailPassword string
	Messenger     DirectMessenger
	CacheSize     int
	CacheTTL      time.Duration
}

// DefaultCatalog builds the agent's tool set. Search tools are cached;
// tools with side effects never are. Tavily is only offered with a key.
func DefaultCatalog(opts Options) (*Catalog, error) {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	var list []Tool
	if opts.TavilyAPIKey != "" {
		list = append(list, NewCached(NewTavilySearch(opts.TavilyAPIKey), opts.CacheSize, ttl))
	}
	list = append(list,
		NewCached(NewDuckDuckGoSearch(), opts.CacheSize, ttl),
		NewCached(NewWikipediaSearch(), opts.CacheSize, ttl),
		NewCached(NewReadWebpage(), opts.CacheSize, ttl),
		NewSendEmail(opts.SenderEmail, opts.EmailPassword),
	)
	if opts.Messenger != nil {
		list = append(list, &SendDiscordMessage{Messenger: opts.Messenger})
	}
	return NewCatalog(list...)
}
