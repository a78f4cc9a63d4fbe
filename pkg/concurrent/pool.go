package concurrent

import (
	"context"
	"sync"
	"sync/atomic"
)

// WorkerPool bounds how many agent runs execute at once.
type WorkerPool struct {
	sem      chan struct{}
	inFlight atomic.Int64
}

// NewWorkerPool falls back to 4 slots when size is not positive.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 4
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Size reports the number of slots.
func (wp *WorkerPool) Size() int { return cap(wp.sem) }

// InFlight reports how many functions currently hold a slot.
func (wp *WorkerPool) InFlight() int { return int(wp.inFlight.Load()) }

// Do waits for a free slot, or the context, and runs fn in the caller's goroutine.
func (wp *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
	}
	wp.inFlight.Add(1)
	defer func() {
		wp.inFlight.Add(-1)
		<-wp.sem
	}()
	return fn(ctx)
}

// Outcome pairs a result with the error produced for the same input.
type Outcome[R any] struct {
	Value R
	Err   error
}

// ParallelMap runs fn over items with at most limit goroutines in flight.
// Outcomes keep the input order and every item gets its own error, so one
// failing call never hides the results of the others.
func ParallelMap[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) []Outcome[R] {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	out := make([]Outcome[R], len(items))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				out[idx].Err = ctx.Err()
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()
			out[idx].Value, out[idx].Err = fn(ctx, val)
		}(i, item)
	}
	wg.Wait()
	return out
}
