// Package state holds the per-trajectory tool history.
package state

import (
	"fmt"

	"github.com/trajgen/server/internal/synth/model"
)

// Context is the append-only tool history of one trajectory. It is owned by
// a single generator run and is not safe for concurrent use.
type Context struct {
	query    model.RewrittenQuery
	batches  [][]model.ToolInvocation
	released bool
}

func New(query model.RewrittenQuery) *Context {
	return &Context{query: query}
}

func (c *Context) Query() model.RewrittenQuery {
	return c.query
}

// Record appends the invocations produced by one CALL decision. Recording
// after Release is a programming error and panics.
func (c *Context) Record(invs ...model.ToolInvocation) {
	if c.released {
		panic(fmt.Sprintf("state: record on released context for seed %d variant %s", c.query.SeedID, c.query.Variant()))
	}
	batch := make([]model.ToolInvocation, len(invs))
	copy(batch, invs)
	c.batches = append(c.batches, batch)
}

// Release marks the trajectory terminated.
func (c *Context) Release() {
	c.released = true
}

func (c *Context) Released() bool {
	return c.released
}

// Snapshot returns a copy that later Record calls do not affect.
func (c *Context) Snapshot() Snapshot {
	batches := make([][]model.ToolInvocation, len(c.batches))
	for i, b := range c.batches {
		batches[i] = append([]model.ToolInvocation(nil), b...)
	}
	return Snapshot{batches: batches}
}

// Snapshot is a read-only view of a Context at one point in time.
type Snapshot struct {
	batches [][]model.ToolInvocation
}

func (s Snapshot) Empty() bool {
	return len(s.batches) == 0
}

// Calls is the number of recorded CALL batches.
func (s Snapshot) Calls() int {
	return len(s.batches)
}

// Invocations returns every recorded invocation in order.
func (s Snapshot) Invocations() []model.ToolInvocation {
	var out []model.ToolInvocation
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

// LastBatch returns the invocations of the most recent CALL.
func (s Snapshot) LastBatch() []model.ToolInvocation {
	if len(s.batches) == 0 {
		return nil
	}
	return s.batches[len(s.batches)-1]
}

// LastBatchErrors returns the failed invocations of the most recent CALL.
func (s Snapshot) LastBatchErrors() []model.ToolInvocation {
	var out []model.ToolInvocation
	for _, inv := range s.LastBatch() {
		if inv.Failed() {
			out = append(out, inv)
		}
	}
	return out
}

// SuccessfulTools returns the distinct tool names with at least one success,
// in first success order.
func (s Snapshot) SuccessfulTools() []string {
	seen := map[string]bool{}
	var out []string
	for _, inv := range s.Invocations() {
		if !inv.Failed() && !seen[inv.Tool] {
			seen[inv.Tool] = true
			out = append(out, inv.Tool)
		}
	}
	return out
}

// CalledTools returns every distinct tool name invoked so far.
func (s Snapshot) CalledTools() map[string]bool {
	out := map[string]bool{}
	for _, inv := range s.Invocations() {
		out[inv.Tool] = true
	}
	return out
}

// UnresolvedErrors returns failed invocations whose tool has not succeeded
// in any later batch.
func (s Snapshot) UnresolvedErrors() []model.ToolInvocation {
	lastFail := map[string]int{}
	lastOK := map[string]int{}
	var fails []model.ToolInvocation
	for i, b := range s.batches {
		for _, inv := range b {
			if inv.Failed() {
				lastFail[inv.Tool] = i
				fails = append(fails, inv)
			} else {
				lastOK[inv.Tool] = i
			}
		}
	}
	var out []model.ToolInvocation
	reported := map[string]bool{}
	for i := len(fails) - 1; i >= 0; i-- {
		inv := fails[i]
		if reported[inv.Tool] {
			continue
		}
		ok, hasOK := lastOK[inv.Tool]
		if hasOK && ok > lastFail[inv.Tool] {
			continue
		}
		reported[inv.Tool] = true
		out = append([]model.ToolInvocation{inv}, out...)
	}
	return out
}
