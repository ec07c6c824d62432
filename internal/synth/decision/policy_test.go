package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/state"
	"github.com/trajgen/server/internal/synth/tools"
)

const retirement = "How should I allocate my retirement portfolio?"

func query(text string, c model.Complexity) model.RewrittenQuery {
	return model.NewRewrittenQuery(model.SeedQuery{Text: text},
		model.Variant{Persona: model.P1, Complexity: c, ToolDataMode: model.ValidData}, text)
}

func newPolicy() *Policy {
	return NewPolicy(tools.DefaultCatalog(), DefaultAmbiguityRules(), true)
}

func snapshotOf(batches ...[]model.ToolInvocation) state.Snapshot {
	c := state.New(model.RewrittenQuery{})
	for _, b := range batches {
		c.Record(b...)
	}
	return c.Snapshot()
}

func success(tool string, iter int) model.ToolInvocation {
	return model.ToolInvocation{Tool: tool, Outcome: model.OutcomeSuccess, Iteration: iter}
}

func failure(tool string, kind model.ErrorKind, param string, iter int) model.ToolInvocation {
	return model.ToolInvocation{Tool: tool, Outcome: model.OutcomeSimulatedError, ErrorKind: kind, MissingParam: param, Iteration: iter}
}

func TestPolicyInitialCall(t *testing.T) {
	c := newPolicy().Choose(query(retirement, model.Simplified), state.Snapshot{}, 0, 3)
	assert.Equal(t, model.DecisionCall, c.Decision)
	assert.Equal(t, ReasonInitialCall, c.Reason)
	require.Len(t, c.Calls, 1)
	assert.Equal(t, tools.ToolSearchKnowledgeBase, c.Calls[0].Tool)
}

func TestPolicyComplexSpreadsCalls(t *testing.T) {
	p := newPolicy()
	q := query(retirement, model.Complex)

	c := p.Choose(q, state.Snapshot{}, 0, 3)
	require.Equal(t, model.DecisionCall, c.Decision)
	require.Len(t, c.Calls, 1)

	snap := snapshotOf([]model.ToolInvocation{success(tools.ToolSearchKnowledgeBase, 0)})
	c = p.Choose(q, snap, 1, 3)
	require.Equal(t, model.DecisionCall, c.Decision)
	assert.Equal(t, tools.ToolCalculateAllocation, c.Calls[0].Tool)

	// Only one CALL left before the cap: both tools go in one batch.
	c = p.Choose(q, state.Snapshot{}, 0, 2)
	require.Equal(t, model.DecisionCall, c.Decision)
	assert.Len(t, c.Calls, 2)
}

func TestPolicyRules(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		snap      state.Snapshot
		iteration int
		max       int
		want      model.DecisionType
		reason    Reason
		forced    bool
	}{
		{
			name:  "ambiguous account outranks initial call",
			query: "What is my account balance?",
			max:   3, want: model.DecisionAsk, reason: ReasonAmbiguous,
		},
		{
			name:  "account number resolves ambiguity",
			query: "What is my account balance for account ACC-20931?",
			max:   3, want: model.DecisionCall, reason: ReasonInitialCall,
		},
		{
			name:  "time horizon ambiguity",
			query: "How has my portfolio been performing?",
			max:   3, want: model.DecisionAsk, reason: ReasonAmbiguous,
		},
		{
			name:  "general knowledge answered directly",
			query: "What is an index fund?",
			max:   3, want: model.DecisionAnswer, reason: ReasonGeneralKnowledge,
		},
		{
			name:  "definitional but tool specific",
			query: "What is the price of AAPL?",
			max:   3, want: model.DecisionCall, reason: ReasonInitialCall,
		},
		{
			name:      "sufficient context",
			query:     retirement,
			snap:      snapshotOf([]model.ToolInvocation{success(tools.ToolSearchKnowledgeBase, 0)}),
			iteration: 1, max: 3, want: model.DecisionAnswer, reason: ReasonSufficient,
		},
		{
			name:      "missing input asks",
			query:     retirement,
			snap:      snapshotOf([]model.ToolInvocation{failure(tools.ToolGetAccountInfo, model.ErrMissingInput, "account_id", 0)}),
			iteration: 1, max: 3, want: model.DecisionAsk, reason: ReasonMissingInput,
		},
		{
			name:      "upstream failure retries",
			query:     retirement,
			snap:      snapshotOf([]model.ToolInvocation{failure(tools.ToolSearchKnowledgeBase, model.ErrUpstreamFailure, "", 0)}),
			iteration: 1, max: 3, want: model.DecisionCall, reason: ReasonCorrectiveCall,
		},
		{
			name:      "cap with unresolved error asks",
			query:     retirement,
			snap:      snapshotOf([]model.ToolInvocation{failure(tools.ToolSearchKnowledgeBase, model.ErrCorruptedPayload, "", 0)}),
			iteration: 1, max: 2, want: model.DecisionAsk, reason: ReasonCapAsk, forced: true,
		},
		{
			name:  "cap at first iteration answers",
			query: retirement,
			max:   1, want: model.DecisionAnswer, reason: ReasonCapAnswer, forced: true,
		},
	}

	p := newPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := p.Choose(query(tt.query, model.Original), tt.snap, tt.iteration, tt.max)
			assert.Equal(t, tt.want, c.Decision)
			assert.Equal(t, tt.reason, c.Reason)
			assert.Equal(t, tt.forced, c.Forced)
			if c.Decision == model.DecisionAsk {
				assert.NotEmpty(t, c.QuestionHint)
			}
		})
	}
}

func TestPolicyCorrectiveCallReinvokesFailedTool(t *testing.T) {
	snap := snapshotOf([]model.ToolInvocation{
		success(tools.ToolSearchKnowledgeBase, 0),
		failure(tools.ToolCalculateAllocation, model.ErrUpstreamFailure, "", 0),
	})
	c := newPolicy().Choose(query(retirement, model.Complex), snap, 1, 3)
	require.Equal(t, model.DecisionCall, c.Decision)
	require.Len(t, c.Calls, 1)
	assert.Equal(t, tools.ToolCalculateAllocation, c.Calls[0].Tool)
	assert.True(t, c.Calls[0].Corrective)
	assert.True(t, c.Corrective)
}

func TestPolicyAsksAfterFailedCorrection(t *testing.T) {
	retry := failure(tools.ToolSearchKnowledgeBase, model.ErrUpstreamFailure, "", 1)
	retry.Corrective = true
	snap := snapshotOf(
		[]model.ToolInvocation{failure(tools.ToolSearchKnowledgeBase, model.ErrUpstreamFailure, "", 0)},
		[]model.ToolInvocation{retry},
	)

	c := newPolicy().Choose(query(retirement, model.Original), snap, 2, 6)
	assert.Equal(t, model.DecisionAsk, c.Decision)
	assert.Equal(t, ReasonCorrectionFailed, c.Reason)
	assert.False(t, c.Forced)
	assert.NotEmpty(t, c.QuestionHint)
}

func TestPolicyRetriesOnlyUncorrectedTools(t *testing.T) {
	retried := failure(tools.ToolSearchKnowledgeBase, model.ErrUpstreamFailure, "", 1)
	retried.Corrective = true
	snap := snapshotOf(
		[]model.ToolInvocation{failure(tools.ToolSearchKnowledgeBase, model.ErrUpstreamFailure, "", 0)},
		[]model.ToolInvocation{retried, failure(tools.ToolCalculateAllocation, model.ErrCorruptedPayload, "", 1)},
	)

	c := newPolicy().Choose(query(retirement, model.Complex), snap, 2, 6)
	require.Equal(t, model.DecisionCall, c.Decision)
	require.Len(t, c.Calls, 1)
	assert.Equal(t, tools.ToolCalculateAllocation, c.Calls[0].Tool)
	assert.True(t, c.Calls[0].Corrective)
}

func TestPolicyNeverCallsAtLastIteration(t *testing.T) {
	p := newPolicy()
	snaps := []state.Snapshot{
		{},
		snapshotOf([]model.ToolInvocation{failure(tools.ToolSearchKnowledgeBase, model.ErrUpstreamFailure, "", 0)}),
		snapshotOf([]model.ToolInvocation{success(tools.ToolSearchKnowledgeBase, 0)}),
	}
	for _, max := range []int{1, 2, 3, 5} {
		for _, s := range snaps {
			for _, c := range model.Complexities {
				got := p.Choose(query(retirement, c), s, max-1, max)
				assert.NotEqual(t, model.DecisionCall, got.Decision, "max=%d", max)
			}
		}
	}
}

func TestIsGeneralKnowledge(t *testing.T) {
	assert.True(t, isGeneralKnowledge("What is a bond?"))
	assert.True(t, isGeneralKnowledge("define dollar cost averaging"))
	assert.False(t, isGeneralKnowledge("What is my risk score?"))
	assert.False(t, isGeneralKnowledge("How should I allocate my retirement portfolio?"))
	assert.False(t, isGeneralKnowledge("What is the difference between a traditional and a Roth IRA when you are self employed and older"))
}
