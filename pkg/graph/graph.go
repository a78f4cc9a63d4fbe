// Package graph is a small state-machine executor: named nodes transform a
// state value and edges (plain or routed) decide which node runs next.
package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// End is the terminal pseudo-node.
const End = "__end__"

// DefaultRecursionLimit bounds the number of node executions per run.
const DefaultRecursionLimit = 25

// ErrRecursionLimit is matched by *RecursionError.
var ErrRecursionLimit = errors.New("graph recursion limit reached")

// RecursionError reports the node that would have exceeded the step budget.
type RecursionError struct {
	Limit int
	Node  string
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("graph recursion limit of %d reached before node %q", e.Limit, e.Node)
}

func (e *RecursionError) Is(target error) bool { return target == ErrRecursionLimit }

// NodeFunc transforms the state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc returns a key of the route map registered with AddConditionalEdges.
type RouterFunc[S any] func(ctx context.Context, state S) (string, error)

type conditional[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

// Builder assembles a graph before compilation.
type Builder[S any] struct {
	nodes        map[string]NodeFunc[S]
	order        []string
	edges        map[string]string
	conditionals map[string]conditional[S]
	entry        string
	errs         []error
}

func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		nodes:        make(map[string]NodeFunc[S]),
		edges:        make(map[string]string),
		conditionals: make(map[string]conditional[S]),
	}
}

func (b *Builder[S]) AddNode(name string, fn NodeFunc[S]) *Builder[S] {
	switch {
	case name == "" || name == End:
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("node %q has nil function", name))
	default:
		if _, exists := b.nodes[name]; exists {
			b.errs = append(b.errs, fmt.Errorf("node %q already added", name))
			return b
		}
		b.nodes[name] = fn
		b.order = append(b.order, name)
	}
	return b
}

func (b *Builder[S]) SetEntryPoint(name string) *Builder[S] {
	b.entry = name
	return b
}

func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	if _, exists := b.edges[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %q already has an edge", from))
		return b
	}
	b.edges[from] = to
	return b
}

func (b *Builder[S]) AddConditionalEdges(from string, router RouterFunc[S], routes map[string]string) *Builder[S] {
	if router == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has nil router", from))
		return b
	}
	if _, exists := b.conditionals[from]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %q already has conditional edges", from))
		return b
	}
	copied := make(map[string]string, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	b.conditionals[from] = conditional[S]{router: router, routes: copied}
	return b
}

// Option configures a compiled graph.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger logs every step at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Compile validates the wiring and returns an executable graph.
func (b *Builder[S]) Compile(opts ...Option) (*Graph[S], error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	errs := append([]error(nil), b.errs...)
	if b.entry == "" {
		errs = append(errs, errors.New("entry point not set"))
	} else if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry point %q is not a node", b.entry))
	}
	known := func(name string) bool {
		if name == End {
			return true
		}
		_, ok := b.nodes[name]
		return ok
	}
	for from, to := range b.edges {
		if !known(from) || from == End {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		if !known(to) {
			errs = append(errs, fmt.Errorf("edge %q -> unknown node %q", from, to))
		}
		if _, dup := b.conditionals[from]; dup {
			errs = append(errs, fmt.Errorf("node %q has both an edge and conditional edges", from))
		}
	}
	for from, c := range b.conditionals {
		if !known(from) || from == End {
			errs = append(errs, fmt.Errorf("conditional edges from unknown node %q", from))
		}
		for key, to := range c.routes {
			if !known(to) {
				errs = append(errs, fmt.Errorf("route %q from %q -> unknown node %q", key, from, to))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile graph: %w", errors.Join(errs...))
	}

	g := &Graph[S]{
		nodes:        make(map[string]NodeFunc[S], len(b.nodes)),
		edges:        make(map[string]string, len(b.edges)),
		conditionals: make(map[string]conditional[S], len(b.conditionals)),
		entry:        b.entry,
		logger:       o.logger,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	for k, v := range b.conditionals {
		g.conditionals[k] = v
	}
	return g, nil
}

// RunConfig carries per-invocation settings.
type RunConfig struct {
	ThreadID       string
	RecursionLimit int
}

// Graph is immutable after compilation and safe for concurrent Invoke calls.
type Graph[S any] struct {
	nodes        map[string]NodeFunc[S]
	edges        map[string]string
	conditionals map[string]conditional[S]
	entry        string
	logger       *zap.Logger
}

// Invoke runs from the entry point until End, a node without outgoing
// transitions, an error, or the recursion limit.
func (g *Graph[S]) Invoke(ctx context.Context, state S, cfg RunConfig) (S, error) {
	limit := cfg.RecursionLimit
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}

	current := g.entry
	for step := 1; current != End; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if step > limit {
			return state, &RecursionError{Limit: limit, Node: current}
		}

		g.logger.Debug("graph step",
			zap.String("thread", cfg.ThreadID),
			zap.Int("step", step),
			zap.String("node", current))

		next, err := g.nodes[current](ctx, state)
		if err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		state = next

		current, err = g.next(ctx, current, state)
		if err != nil {
			return state, err
		}
	}
	return state, nil
}

func (g *Graph[S]) next(ctx context.Context, from string, state S) (string, error) {
	if c, ok := g.conditionals[from]; ok {
		key, err := c.router(ctx, state)
		if err != nil {
			return "", fmt.Errorf("router after %s: %w", from, err)
		}
		to, ok := c.routes[key]
		if !ok {
			return "", fmt.Errorf("router after %s returned unknown route %q", from, key)
		}
		g.logger.Debug("graph route", zap.String("from", from), zap.String("route", key), zap.String("to", to))
		return to, nil
	}
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	return End, nil
}
