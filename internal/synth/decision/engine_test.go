package decision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/prompts"
	"github.com/trajgen/server/internal/synth/state"
	"github.com/trajgen/server/internal/synth/textgen/textgentest"
	"github.com/trajgen/server/internal/synth/tools"
)

func newEngine(fake *textgentest.Fake, retries int) *Engine {
	cfg := DefaultConfig()
	cfg.ParseRetries = retries
	return NewEngine(fake, prompts.NewRenderer(), tools.DefaultCatalog(), cfg)
}

func TestEngineDecideCall(t *testing.T) {
	fake := textgentest.Synthetic(nil)
	step, err := newEngine(fake, 1).Decide(context.Background(), query(retirement, model.Simplified), state.Snapshot{}, 0, 3)
	require.NoError(t, err)

	assert.Equal(t, model.DecisionCall, step.Decision)
	assert.Equal(t, 0, step.Iteration)
	assert.NotEmpty(t, step.Rationale)
	require.Len(t, step.ToolCalls, 1)
	assert.Equal(t, "CALL", step.Label())

	require.Equal(t, 1, fake.CallCount())
	call := fake.Calls()[0]
	assert.Equal(t, 1000, call.MaxTokens)
	assert.Contains(t, call.Prompt, retirement)
	assert.Contains(t, call.Prompt, "search_knowledge_base(query="+retirement+")")
}

func TestEngineDecideAnswerIncludesContext(t *testing.T) {
	fake := textgentest.Synthetic(nil)
	snap := snapshotOf([]model.ToolInvocation{{
		Tool: tools.ToolSearchKnowledgeBase, Outcome: model.OutcomeSuccess, Iteration: 0,
		Result: `{"tool":"search_knowledge_base","status":"ok"}`,
	}})
	step, err := newEngine(fake, 0).Decide(context.Background(), query(retirement, model.Original), snap, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAnswer, step.Decision)
	assert.True(t, strings.HasPrefix(step.Label(), "ANSWER: "))
	assert.Contains(t, fake.Calls()[0].Prompt, "Iteration 0: Called search_knowledge_base, success")
}

func TestEngineRetriesMalformedOutput(t *testing.T) {
	fake := textgentest.Queue("REASONING: ok", "REASONING: fine\nANSWER: Diversify.")
	step, err := newEngine(fake, 1).Decide(context.Background(), query(retirement, model.Original), state.Snapshot{}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "Diversify.", step.Answer)
	assert.True(t, step.Forced)
	assert.Equal(t, 2, fake.CallCount())
}

func TestEngineMalformedAfterRetries(t *testing.T) {
	fake := textgentest.Queue("nothing useful", "still nothing")
	_, err := newEngine(fake, 1).Decide(context.Background(), query(retirement, model.Original), state.Snapshot{}, 0, 1)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestEngineTextFailure(t *testing.T) {
	boom := errors.New("service down")
	_, err := newEngine(textgentest.Failing(boom), 3).Decide(context.Background(), query(retirement, model.Original), state.Snapshot{}, 0, 3)
	assert.ErrorIs(t, err, boom)
}

func TestEngineRejectsBadIteration(t *testing.T) {
	e := newEngine(textgentest.Synthetic(nil), 0)
	_, err := e.Decide(context.Background(), query(retirement, model.Original), state.Snapshot{}, 3, 3)
	assert.Error(t, err)
	_, err = e.Decide(context.Background(), query(retirement, model.Original), state.Snapshot{}, 0, 0)
	assert.Error(t, err)
}

func TestFormatCall(t *testing.T) {
	got := FormatCall(model.ToolCall{Tool: "calculate_allocation", Arguments: map[string]any{"time_horizon_years": 20, "risk_tolerance": "moderate"}})
	assert.Equal(t, "calculate_allocation(risk_tolerance=moderate, time_horizon_years=20)", got)
}
