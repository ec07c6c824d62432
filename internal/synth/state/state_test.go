package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trajgen/server/internal/synth/model"
)

func ok(tool string, iter int) model.ToolInvocation {
	return model.ToolInvocation{Tool: tool, Outcome: model.OutcomeSuccess, Iteration: iter}
}

func fail(tool string, iter int) model.ToolInvocation {
	return model.ToolInvocation{Tool: tool, Outcome: model.OutcomeSimulatedError, ErrorKind: model.ErrUpstreamFailure, Iteration: iter}
}

func TestContextAppendOnly(t *testing.T) {
	c := New(model.RewrittenQuery{Text: "q"})
	assert.True(t, c.Snapshot().Empty())

	c.Record(ok("a", 0), fail("b", 0))
	snap := c.Snapshot()
	c.Record(ok("b", 1))

	assert.Equal(t, 1, snap.Calls())
	assert.Len(t, snap.Invocations(), 2)
	assert.Equal(t, 2, c.Snapshot().Calls())
	assert.Equal(t, []string{"a", "b"}, c.Snapshot().SuccessfulTools())
	assert.Equal(t, []model.ToolInvocation{ok("b", 1)}, c.Snapshot().LastBatch())
}

func TestSnapshotErrors(t *testing.T) {
	c := New(model.RewrittenQuery{})
	c.Record(fail("a", 0), fail("b", 0))
	c.Record(ok("a", 1), fail("b", 1))

	s := c.Snapshot()
	assert.Len(t, s.LastBatchErrors(), 1)
	unresolved := s.UnresolvedErrors()
	assert.Len(t, unresolved, 1)
	assert.Equal(t, "b", unresolved[0].Tool)
	assert.Equal(t, 1, unresolved[0].Iteration)
	assert.True(t, s.CalledTools()["a"])
}

func TestEmptySnapshot(t *testing.T) {
	var s Snapshot
	assert.Nil(t, s.LastBatch())
	assert.Empty(t, s.LastBatchErrors())
	assert.Empty(t, s.UnresolvedErrors())
}

func TestRecordAfterReleasePanics(t *testing.T) {
	c := New(model.RewrittenQuery{})
	c.Release()
	assert.True(t, c.Released())
	assert.Panics(t, func() { c.Record(ok("a", 0)) })
}
