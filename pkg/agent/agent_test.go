package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Protocol-Lattice/lattice-discord/pkg/checkpoint"
	"github.com/Protocol-Lattice/lattice-discord/pkg/graph"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
	"github.com/Protocol-Lattice/lattice-discord/pkg/prompts"
)

type scriptedLLM struct {
	mu       sync.Mutex
	replies  []models.Message
	requests []models.ChatRequest
	// fallback answers once the script is exhausted.
	fallback func(models.ChatRequest) models.Message
}

func (s *scriptedLLM) Chat(_ context.Context, req models.ChatRequest) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) > 0 {
		reply := s.replies[0]
		s.replies = s.replies[1:]
		return reply, nil
	}
	if s.fallback != nil {
		return s.fallback(req), nil
	}
	return models.Message{Role: models.RoleAssistant, Content: "done"}, nil
}

type fixedPicker struct{ llm models.LLM }

func (f fixedPicker) Pick() (models.Candidate, error) {
	return models.Candidate{Provider: "stub", Model: "provider-4/stub-1", Display: "stub-1", LLM: f.llm}, nil
}

type stubTools struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (s *stubTools) Specs() []models.ToolSpec {
	return []models.ToolSpec{{Name: "wikipedia_search"}, {Name: "duckduckgo_search"}}
}

func (s *stubTools) Call(_ context.Context, _ string, call models.ToolCall) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call.Name)
	s.mu.Unlock()
	if err := s.fail[call.Name]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s result for %v", call.Name, call.Arguments["query"]), nil
}

func toolCall(names ...string) models.Message {
	msg := models.Message{Role: models.RoleAssistant}
	for i, name := range names {
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{ID: fmt.Sprintf("c%d", i), Name: name, Arguments: map[string]any{"query": "go"}})
	}
	return msg
}

func newRunner(t *testing.T, llm models.LLM, tools ToolCaller, store checkpoint.Store) *Runner {
	t.Helper()
	r, err := New(Options{Models: fixedPicker{llm: llm}, Tools: tools, Store: store})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return r
}

func TestRunAnswersWithoutTools(t *testing.T) {
	llm := &scriptedLLM{replies: []models.Message{{Role: models.RoleAssistant, Content: "Hey there 👋"}}}
	store := checkpoint.NewMemoryStore()
	r := newRunner(t, llm, &stubTools{}, store)

	res, err := r.Run(context.Background(), Request{Handler: "ai", Query: "hello", Context: "Discord user id: 42"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Answer != "Hey there 👋" || res.Model != "stub-1" || res.Handler != prompts.Assistant {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.ToolsUsed) != 0 {
		t.Fatalf("expected no tools, got %v", res.ToolsUsed)
	}

	req := llm.requests[0]
	if !strings.Contains(req.System, "ApplePie200") || !strings.Contains(req.System, "Discord user id: 42") {
		t.Fatalf("system prompt missing persona or context: %q", req.System)
	}
	if len(req.Tools) != 2 {
		t.Fatalf("expected tools to be offered, got %d", len(req.Tools))
	}

	cp, ok, _ := store.Load(context.Background(), "assistant_thread")
	if !ok || len(cp.Messages) != 2 {
		t.Fatalf("expected user+assistant persisted, got %+v", cp.Messages)
	}
	for _, m := range cp.Messages {
		if m.Role == models.RoleSystem {
			t.Fatalf("system prompt must not be persisted")
		}
	}
}

func TestRunExecutesToolsAndLoopsBack(t *testing.T) {
	llm := &scriptedLLM{replies: []models.Message{
		toolCall("wikipedia_search", "duckduckgo_search"),
		{Role: models.RoleAssistant, Content: "Go was designed at Google."},
	}}
	tools := &stubTools{}
	r := newRunner(t, llm, tools, nil)

	res, err := r.Run(context.Background(), Request{Handler: prompts.Zeo, Query: "who made go?"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := fmt.Sprint(res.ToolsUsed); got != "[wikipedia_search duckduckgo_search]" {
		t.Fatalf("unexpected tools used: %s", got)
	}
	if len(tools.calls) != 2 {
		t.Fatalf("expected both tools to run, got %v", tools.calls)
	}

	second := llm.requests[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected user, tool call and two results, got %d messages", len(second))
	}
	if second[2].ToolCallID != "c0" || second[3].ToolCallID != "c1" {
		t.Fatalf("tool results must answer their calls in order: %+v", second[2:])
	}
	if second[2].Content != "wikipedia_search result for go" {
		t.Fatalf("unexpected tool content: %q", second[2].Content)
	}
}

func TestToolErrorsBecomeMessageText(t *testing.T) {
	llm := &scriptedLLM{replies: []models.Message{toolCall("wikipedia_search")}}
	tools := &stubTools{fail: map[string]error{"wikipedia_search": errors.New("no article")}}
	r := newRunner(t, llm, tools, nil)

	if _, err := r.Run(context.Background(), Request{Handler: prompts.Zeo, Query: "q"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	msgs := llm.requests[1].Messages
	if last := msgs[len(msgs)-1]; last.Role != models.RoleTool || !strings.Contains(last.Content, "no article") {
		t.Fatalf("expected tool error text, got %+v", last)
	}
}

func TestToolBudgetIsEnforced(t *testing.T) {
	llm := &scriptedLLM{fallback: func(req models.ChatRequest) models.Message {
		if req.ToolChoice != models.ToolChoiceNone {
			return toolCall("duckduckgo_search")
		}
		return models.Message{Role: models.RoleAssistant, Content: "my own deduction"}
	}}
	tools := &stubTools{}
	r := newRunner(t, llm, tools, nil)

	res, err := r.Run(context.Background(), Request{Handler: prompts.Zeo, Query: "q"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Answer != "my own deduction" {
		t.Fatalf("unexpected answer %q", res.Answer)
	}
	if len(res.ToolsUsed) != DefaultMaxToolCalls || len(tools.calls) != DefaultMaxToolCalls {
		t.Fatalf("expected %d tool rounds, used=%v calls=%v", DefaultMaxToolCalls, res.ToolsUsed, tools.calls)
	}
	if len(llm.requests) != 4 {
		t.Fatalf("expected 4 model calls, got %d", len(llm.requests))
	}
	last := llm.requests[3]
	if len(last.Tools) != 2 || last.ToolChoice != models.ToolChoiceNone {
		t.Fatalf("exhausted budget must keep tool specs and forbid calls, got %d specs choice=%q", len(last.Tools), last.ToolChoice)
	}
	for i, req := range llm.requests[:3] {
		if req.ToolChoice != models.ToolChoiceAuto {
			t.Fatalf("request %d: unexpected tool choice %q", i, req.ToolChoice)
		}
	}
	limitMsg := last.Messages[len(last.Messages)-1]
	if limitMsg.Content != ToolLimitMessage || limitMsg.ToolCallID == "" {
		t.Fatalf("expected limit message answering the call, got %+v", limitMsg)
	}
}

func TestRecursionLimitStopsRunawayModel(t *testing.T) {
	llm := &scriptedLLM{fallback: func(models.ChatRequest) models.Message { return toolCall("wikipedia_search") }}
	store := checkpoint.NewMemoryStore()
	r := newRunner(t, llm, &stubTools{}, store)

	_, err := r.Run(context.Background(), Request{Handler: prompts.Zeo, Query: "q"})
	if !errors.Is(err, graph.ErrRecursionLimit) {
		t.Fatalf("expected recursion limit error, got %v", err)
	}
	if _, ok, _ := store.Load(context.Background(), "zeo_thread"); ok {
		t.Fatalf("failed runs must not be persisted")
	}
}

func TestRunRejectsUnknownHandler(t *testing.T) {
	r := newRunner(t, &scriptedLLM{}, nil, nil)
	if _, err := r.Run(context.Background(), Request{Handler: "nope", Query: "q"}); !errors.Is(err, prompts.ErrUnknownHandler) {
		t.Fatalf("expected ErrUnknownHandler, got %v", err)
	}
}

func TestRunTrimsHistoryAtTurnBoundary(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	var history []models.Message
	for i := 0; i < 4; i++ {
		history = append(history,
			models.Message{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)},
			toolCall("wikipedia_search"),
			models.Message{Role: models.RoleTool, ToolCallID: "c0", Name: "wikipedia_search", Content: "r"},
			models.Message{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	_ = store.Save(context.Background(), checkpoint.Checkpoint{ThreadID: "zeo_thread", Messages: history})

	llm := &scriptedLLM{}
	r := newRunner(t, llm, nil, store)
	if _, err := r.Run(context.Background(), Request{Handler: prompts.Zeo, Query: "next"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	sent := llm.requests[0].Messages
	if sent[0].Role != models.RoleUser || sent[0].Content != "q2" {
		t.Fatalf("expected window to start on a user turn, got %+v", sent[0])
	}
	if len(sent) != 9 {
		t.Fatalf("expected 8 history messages plus the query, got %d", len(sent))
	}
}

func TestRunsOnSameThreadAreSerialised(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	r := newRunner(t, &scriptedLLM{}, nil, store)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Run(context.Background(), Request{Handler: prompts.Rate, Query: fmt.Sprint(i)}); err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	cp, _, _ := store.Load(context.Background(), "rate_thread")
	if len(cp.Messages) != DefaultMaxHistory {
		t.Fatalf("expected %d messages after trimming, got %d", DefaultMaxHistory, len(cp.Messages))
	}
}

func TestThreadLocksAreReleased(t *testing.T) {
	r := newRunner(t, &scriptedLLM{}, nil, nil)
	for i := 0; i < 20; i++ {
		if _, err := r.Run(context.Background(), Request{Handler: prompts.Zeo, ThreadID: fmt.Sprintf("t%d", i), Query: "q"}); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	}

	unlock, err := r.lockThread(context.Background(), "busy")
	if err != nil {
		t.Fatalf("lockThread returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.lockThread(ctx, "busy"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected waiter to time out, got %v", err)
	}
	unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.threads) != 0 {
		t.Fatalf("expected no idle thread locks, got %d", len(r.threads))
	}
}

func TestTrimHistory(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "1"},
		{Role: models.RoleAssistant, Content: "2"},
		{Role: models.RoleTool, Content: "3"},
		{Role: models.RoleUser, Content: "4"},
		{Role: models.RoleAssistant, Content: "5"},
	}
	if got := TrimHistory(msgs, 10); len(got) != 5 {
		t.Fatalf("short history must be untouched, got %d", len(got))
	}
	got := TrimHistory(msgs, 3)
	if len(got) != 2 || got[0].Content != "4" {
		t.Fatalf("expected window starting at the last user turn, got %+v", got)
	}
	if got := TrimHistory(msgs[:3], 1); len(got) != 0 {
		t.Fatalf("expected empty window without a user turn, got %+v", got)
	}
}

func TestResultFormat(t *testing.T) {
	res := Result{Answer: "hi", Model: "gpt-4.1", Elapsed: 1234 * time.Millisecond, ToolsUsed: []string{"wikipedia_search"}}
	want := "<@1> hi \n `Executed in 1.23 seconds` `AI Model: gpt-4.1` `Tools used: [wikipedia_search]`"
	if got := res.Format("<@1>"); got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
	if got := (Result{Answer: "x"}).Format("<@1>"); !strings.HasSuffix(got, "`Tools used: []`") {
		t.Fatalf("expected empty tool list, got %q", got)
	}
}

func TestCheckFinal(t *testing.T) {
	if err := checkFinal(State{Messages: []models.Message{{Role: models.RoleTool}}}); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
	if err := checkFinal(State{}); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse for empty state, got %v", err)
	}
}
