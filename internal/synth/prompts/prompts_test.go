package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajgen/server/internal/synth/model"
)

func TestRewritePrompt(t *testing.T) {
	r := NewRenderer()
	out, err := r.Rewrite(context.Background(), "How should I allocate my retirement portfolio?",
		model.Variant{Persona: model.P1, Complexity: model.Simplified, ToolDataMode: model.ValidData})
	require.NoError(t, err)

	assert.Contains(t, out, "PERSONA: First-time Investor")
	assert.Contains(t, out, "COMPLEXITY: Simplified")
	assert.Contains(t, out, "How should I allocate my retirement portfolio?")
	assert.Contains(t, out, "everyday, non-technical language")
	assert.NotContains(t, out, "analytical depth")
}

func TestDecisionPrompts(t *testing.T) {
	r := &Renderer{}
	in := DecisionInput{
		Query:         "What's my balance?",
		Iteration:     1,
		MaxIterations: 3,
		Tools:         []model.ToolSpec{{Name: "get_account_info", Description: "Look up an account"}},
		Context:       []string{"Iteration 0: get_account_info -> simulated_error"},
		Calls:         []string{"get_account_info(account_id=ACC-1001)"},
		Corrective:    true,
		QuestionHint:  "Which account?",
	}

	call, err := r.Decision(context.Background(), model.DecisionCall, in)
	require.NoError(t, err)
	assert.Contains(t, call, "- get_account_info: Look up an account")
	assert.Contains(t, call, "get_account_info(account_id=ACC-1001)")
	assert.Contains(t, call, "corrected parameters")
	assert.Contains(t, call, "REASONING:")

	ask, err := r.Decision(context.Background(), model.DecisionAsk, in)
	require.NoError(t, err)
	assert.Contains(t, ask, "Missing information: Which account?")
	assert.Contains(t, ask, "QUESTION:")

	in.Context = nil
	answer, err := r.Decision(context.Background(), model.DecisionAnswer, in)
	require.NoError(t, err)
	assert.Contains(t, answer, "No previous tool results yet.")
	assert.Contains(t, answer, "answered without tools")
	assert.Contains(t, answer, "ANSWER:")

	_, err = r.Decision(context.Background(), model.DecisionType("MAYBE"), in)
	assert.Error(t, err)
}
