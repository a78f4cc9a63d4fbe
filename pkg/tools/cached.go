package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Protocol-Lattice/lattice-discord/pkg/cache"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

// Cached memoises successful responses of a read-only tool per argument set.
type Cached struct {
	Tool
	lru *cache.LRU[Response]
}

func NewCached(t Tool, capacity int, ttl time.Duration) *Cached {
	return &Cached{Tool: t, lru: cache.NewLRU[Response](capacity, ttl)}
}

func (c *Cached) Spec() models.ToolSpec { return c.Tool.Spec() }

func (c *Cached) Invoke(ctx context.Context, req Request) (Response, error) {
	// json.Marshal sorts map keys, so equal argument sets share a key.
	args, err := json.Marshal(req.Arguments)
	if err != nil {
		return c.Tool.Invoke(ctx, req)
	}
	key := cache.Key(c.Tool.Spec().Name, string(args))
	if resp, ok := c.lru.Get(key); ok {
		return resp, nil
	}
	resp, err := c.Tool.Invoke(ctx, req)
	if err != nil {
		return resp, err
	}
	c.lru.Set(key, resp)
	return resp, nil
}
