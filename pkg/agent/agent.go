// Package agent runs the two-node tool-calling graph behind every chat
// command: the agent node asks the model, the tools node executes the calls
// it requested, and a router loops between them until the model answers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/lattice-discord/pkg/checkpoint"
	"github.com/Protocol-Lattice/lattice-discord/pkg/concurrent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/graph"
	"github.com/Protocol-Lattice/lattice-discord/pkg/metrics"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
	"github.com/Protocol-Lattice/lattice-discord/pkg/prompts"
)

const (
	DefaultMaxHistory      = 10
	DefaultMaxToolCalls    = 2
	DefaultRecursionLimit  = 8
	DefaultToolConcurrency = 4

	ToolLimitMessage = "Sorry the tool calling limit has been reached. Cannot provide any relevant information. Respond with your own deduction."

	nodeAgent  = "agent"
	nodeTools  = "tools"
	routeTools = "tools"
	routeEnd   = "end"
)

// ErrBadResponse is returned when a run does not end on an assistant message.
var ErrBadResponse = errors.New("bad response: latest message is not an assistant message")

// ModelPicker chooses the model for a run.
type ModelPicker interface {
	Pick() (models.Candidate, error)
}

// ToolCaller is the tool catalog as seen by the graph.
type ToolCaller interface {
	Specs() []models.ToolSpec
	Call(ctx context.Context, threadID string, call models.ToolCall) (string, error)
}

type Options struct {
	Models  ModelPicker
	Tools   ToolCaller
	Store   checkpoint.Store
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	MaxHistory      int
	MaxToolCalls    int
	RecursionLimit  int
	ToolConcurrency int
	Temperature     float32
}

// Runner executes agent runs. It is safe for concurrent use; runs on the
// same thread are serialised.
type Runner struct {
	models  ModelPicker
	tools   ToolCaller
	store   checkpoint.Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	maxHistory      int
	maxToolCalls    int
	recursionLimit  int
	toolConcurrency int
	temperature     float32

	graph *graph.Graph[State]

	mu      sync.Mutex
	threads map[string]*threadLock

	now func() time.Time
}

func New(opts Options) (*Runner, error) {
	if opts.Models == nil {
		return nil, errors.New("agent requires a model picker")
	}
	if opts.Store == nil {
		opts.Store = checkpoint.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := &Runner{
		models:          opts.Models,
		tools:           opts.Tools,
		store:           opts.Store,
		logger:          opts.Logger.Named("agent"),
		metrics:         opts.Metrics,
		maxHistory:      positive(opts.MaxHistory, DefaultMaxHistory),
		maxToolCalls:    positive(opts.MaxToolCalls, DefaultMaxToolCalls),
		recursionLimit:  positive(opts.RecursionLimit, DefaultRecursionLimit),
		toolConcurrency: positive(opts.ToolConcurrency, DefaultToolConcurrency),
		temperature:     opts.Temperature,
		threads:         make(map[string]*threadLock),
		now:             time.Now,
	}

	g, err := graph.NewBuilder[State]().
		AddNode(nodeAgent, r.agentNode).
		AddNode(nodeTools, r.toolsNode).
		SetEntryPoint(nodeAgent).
		AddConditionalEdges(nodeAgent, route, map[string]string{
			routeTools: nodeTools,
			routeEnd:   graph.End,
		}).
		AddEdge(nodeTools, nodeAgent).
		Compile(graph.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.graph = g
	return r, nil
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Request is one user message addressed to a handler.
type Request struct {
	Handler prompts.Handler
	Query   string
	// ThreadID defaults to the handler's shared thread.
	ThreadID string
	// Context is appended to the system prompt, e.g. the caller's Discord id.
	Context string
}

// Result is the outcome of a successful run.
type Result struct {
	Answer    string
	Handler   prompts.Handler
	Provider  string
	Model     string
	Elapsed   time.Duration
	ToolsUsed []string
}

// Format renders the channel reply: mention, answer and the run footer.
func (r Result) Format(mention string) string {
	return fmt.Sprintf("%s %s \n %s", mention, r.Answer, r.Footer())
}

// Footer is the execution summary shown under every answer.
func (r Result) Footer() string {
	tools := r.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	return fmt.Sprintf("`Executed in %.2f seconds` `AI Model: %s` `Tools used: %v`", r.Elapsed.Seconds(), r.Model, tools)
}

// Run executes one graph run and persists the resulting history.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	start := r.now()
	handler, err := prompts.Parse(string(req.Handler))
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return Result{}, errors.New("empty query")
	}
	thread := req.ThreadID
	if thread == "" {
		thread = prompts.ThreadID(handler)
	}

	unlock, err := r.lockThread(ctx, thread)
	if err != nil {
		return Result{}, err
	}
	defer unlock()
	defer r.metrics.TrackInFlight()()

	cand, err := r.models.Pick()
	if err != nil {
		return Result{}, fmt.Errorf("select model: %w", err)
	}
	log := r.logger.With(
		zap.String("handler", handler.String()),
		zap.String("thread", thread),
		zap.String("provider", cand.Provider),
		zap.String("model", cand.Model))

	cp, _, err := r.store.Load(ctx, thread)
	if err != nil {
		return Result{}, err
	}

	system := prompts.SystemPrompt(handler)
	if extra := strings.TrimSpace(req.Context); extra != "" {
		system += "\n\n" + extra
	}
	state := State{
		Handler:  handler,
		ThreadID: thread,
		Query:    req.Query,
		System:   system,
		Model:    cand,
		Messages: append([]models.Message(nil), cp.Messages...),
	}

	final, err := r.graph.Invoke(ctx, state, graph.RunConfig{ThreadID: thread, RecursionLimit: r.recursionLimit})
	elapsed := r.now().Sub(start)
	if err == nil {
		err = checkFinal(final)
	}
	r.metrics.ObserveRun(handler.String(), cand.Display, elapsed, err)
	if err != nil {
		log.Warn("agent run failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return Result{}, err
	}

	if err := r.store.Save(ctx, checkpoint.Checkpoint{ThreadID: thread, Messages: final.Messages}); err != nil {
		return Result{}, err
	}

	log.Info("agent run finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("tool_rounds", final.ToolCount),
		zap.Strings("tools", final.ToolsUsed))

	return Result{
		Answer:    final.Messages[len(final.Messages)-1].Content,
		Handler:   handler,
		Provider:  cand.Provider,
		Model:     cand.Display,
		Elapsed:   elapsed,
		ToolsUsed: final.ToolsUsed,
	}, nil
}

func checkFinal(s State) error {
	if len(s.Messages) == 0 || s.Messages[len(s.Messages)-1].Role != models.RoleAssistant {
		return ErrBadResponse
	}
	return nil
}

// History returns the persisted messages of a thread.
func (r *Runner) History(ctx context.Context, threadID string) ([]models.Message, error) {
	cp, _, err := r.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return cp.Messages, nil
}

// threadLock is dropped from the map once nobody holds or waits for it.
type threadLock struct {
	sem  chan struct{}
	refs int
}

func (r *Runner) lockThread(ctx context.Context, thread string) (func(), error) {
	r.mu.Lock()
	l, ok := r.threads[thread]
	if !ok {
		l = &threadLock{sem: make(chan struct{}, 1)}
		r.threads[thread] = l
	}
	l.refs++
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(r.threads, thread)
		}
		r.mu.Unlock()
	}

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}

func (r *Runner) agentNode(ctx context.Context, s State) (State, error) {
	if !s.queued {
		s.Messages = TrimHistory(s.Messages, r.maxHistory)
		s.Messages = append(s.Messages, models.Message{Role: models.RoleUser, Content: s.Query})
		s.queued = true
	}

	req := models.ChatRequest{
		System:      s.System,
		Messages:    s.Messages,
		Temperature: r.temperature,
	}
	if r.tools != nil {
		req.Tools = r.tools.Specs()
		if s.ToolsExhausted {
			req.ToolChoice = models.ToolChoiceNone
		}
	}

	reply, err := s.Model.LLM.Chat(ctx, req)
	if err != nil {
		return s, fmt.Errorf("%s/%s: %w", s.Model.Provider, s.Model.Model, err)
	}
	reply.Role = models.RoleAssistant
	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}
	s.Messages = append(s.Messages, reply)
	return s, nil
}

func route(_ context.Context, s State) (string, error) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].HasToolCalls() {
		return routeTools, nil
	}
	return routeEnd, nil
}

func (r *Runner) toolsNode(ctx context.Context, s State) (State, error) {
	calls := s.Messages[len(s.Messages)-1].ToolCalls
	s.ToolCount++

	if s.ToolCount > r.maxToolCalls || r.tools == nil {
		for _, call := range calls {
			s.Messages = append(s.Messages, models.Message{
				Role:       models.RoleTool,
				Content:    ToolLimitMessage,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
		s.ToolsExhausted = true
		return s, nil
	}

	for _, call := range calls {
		s.ToolsUsed = append(s.ToolsUsed, call.Name)
	}
	outcomes := concurrent.ParallelMap(ctx, calls, r.toolConcurrency, func(ctx context.Context, call models.ToolCall) (string, error) {
		return r.tools.Call(ctx, s.ThreadID, call)
	})
	for i, out := range outcomes {
		content := out.Value
		if out.Err != nil {
			r.logger.Debug("tool call failed", zap.String("tool", calls[i].Name), zap.Error(out.Err))
			content = "Error: " + out.Err.Error()
		}
		r.metrics.ObserveTool(calls[i].Name, out.Err)
		s.Messages = append(s.Messages, models.Message{
			Role:       models.RoleTool,
			Content:    content,
			ToolCallID: calls[i].ID,
			Name:       calls[i].Name,
		})
	}
	return s, nil
}
