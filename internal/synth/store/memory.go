// Package store holds the rewrite cache and run checkpoint backends.
package store

import (
	"context"
	"sync"

	"github.com/trajgen/server/internal/synth/model"
)

// MemoryRewriteCache is the in-process cache used when Redis is not
// configured. Entries live for the process lifetime.
type MemoryRewriteCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryRewriteCache() *MemoryRewriteCache {
	return &MemoryRewriteCache{m: make(map[string]string)}
}

func (c *MemoryRewriteCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.m[key]
	return text, ok, nil
}

func (c *MemoryRewriteCache) Set(_ context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = text
	return nil
}

type MemoryCheckpoint struct {
	mu   sync.Mutex
	runs map[string]map[string]struct{}
}

func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{runs: make(map[string]map[string]struct{})}
}

func (c *MemoryCheckpoint) Done(_ context.Context, run, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[run][key]
	return ok, nil
}

func (c *MemoryCheckpoint) Mark(_ context.Context, run, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.runs[run]
	if !ok {
		set = make(map[string]struct{})
		c.runs[run] = set
	}
	set[key] = struct{}{}
	return nil
}

func (c *MemoryCheckpoint) Count(_ context.Context, run string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.runs[run])), nil
}

func (c *MemoryCheckpoint) Reset(_ context.Context, run string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, run)
	return nil
}

var (
	_ model.RewriteCache = (*MemoryRewriteCache)(nil)
	_ model.Checkpoint   = (*MemoryCheckpoint)(nil)
)
