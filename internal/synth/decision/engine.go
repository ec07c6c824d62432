// Package decision chooses CALL, ASK or ANSWER for one trajectory step and
// generates the text that justifies the choice.
package decision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/prompts"
	"github.com/trajgen/server/internal/synth/state"
	"github.com/trajgen/server/internal/synth/textgen"
	"github.com/trajgen/server/internal/synth/tools"
	logx "github.com/trajgen/server/pkg/logger"
)

const maxContextResultChars = 100

type Config struct {
	MaxTokens int
	// ParseRetries is how many times a malformed completion is re-requested.
	ParseRetries           int
	Rules                  []AmbiguityRule
	AnswerGeneralKnowledge bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:              1000,
		ParseRetries:           1,
		Rules:                  DefaultAmbiguityRules(),
		AnswerGeneralKnowledge: true,
	}
}

type Engine struct {
	text    textgen.Completer
	prompts *prompts.Renderer
	catalog *tools.Catalog
	policy  *Policy
	cfg     Config
}

func NewEngine(text textgen.Completer, renderer *prompts.Renderer, catalog *tools.Catalog, cfg Config) *Engine {
	if cfg.ParseRetries < 0 {
		cfg.ParseRetries = 0
	}
	return &Engine{
		text:    text,
		prompts: renderer,
		catalog: catalog,
		policy:  NewPolicy(catalog, cfg.Rules, cfg.AnswerGeneralKnowledge),
		cfg:     cfg,
	}
}

// Decide returns exactly one decision for a well-formed step. Errors come
// only from the text service or from output that stays malformed after the
// configured retries.
func (e *Engine) Decide(ctx context.Context, q model.RewrittenQuery, snap state.Snapshot, iteration, maxIterations int) (model.DecisionStep, error) {
	if maxIterations < 1 || iteration < 0 || iteration >= maxIterations {
		return model.DecisionStep{}, fmt.Errorf("decide: iteration %d outside [0,%d)", iteration, maxIterations)
	}

	choice := e.policy.Choose(q, snap, iteration, maxIterations)
	logx.Debug().
		Int("seed_id", q.SeedID).
		Str("variant", q.Variant().Key()).
		Int("iteration", iteration).
		Str("decision", string(choice.Decision)).
		Str("reason", string(choice.Reason)).
		Msg("policy decision")

	prompt, err := e.prompts.Decision(ctx, choice.Decision, prompts.DecisionInput{
		Query:         q.Text,
		Iteration:     iteration,
		MaxIterations: maxIterations,
		Tools:         e.catalog.Specs(),
		Context:       contextLines(snap),
		Calls:         callLines(choice.Calls),
		Corrective:    choice.Corrective,
		QuestionHint:  choice.QuestionHint,
		Forced:        choice.Forced,
	})
	if err != nil {
		return model.DecisionStep{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.ParseRetries; attempt++ {
		text, err := e.text.Complete(ctx, prompt, e.cfg.MaxTokens)
		if err != nil {
			return model.DecisionStep{}, err
		}
		step, err := assemble(choice, text)
		if err == nil {
			step.Iteration = iteration
			return step, nil
		}
		lastErr = err
		logx.Warn().
			Int("seed_id", q.SeedID).
			Str("variant", q.Variant().Key()).
			Int("iteration", iteration).
			Int("attempt", attempt+1).
			Str("snippet", safeSnippet(text)).
			Err(err).
			Msg("malformed decision output")
	}
	return model.DecisionStep{}, lastErr
}

func assemble(c Choice, text string) (model.DecisionStep, error) {
	sec, err := ParseSections(text)
	if err != nil {
		return model.DecisionStep{}, err
	}

	step := model.DecisionStep{
		Decision:  c.Decision,
		Rationale: sec.Reasoning,
		ToolCalls: c.Calls,
		Forced:    c.Forced,
	}
	if !sec.Headers && c.Decision == model.DecisionCall {
		step.Rationale = strings.TrimSpace(text)
	}
	if step.Rationale == "" {
		return model.DecisionStep{}, fmt.Errorf("%w: missing reasoning", ErrMalformedOutput)
	}

	switch c.Decision {
	case model.DecisionAsk:
		step.Question = sec.Question
		if step.Question == "" {
			step.Question = c.QuestionHint
		}
	case model.DecisionAnswer:
		step.Answer = sec.Answer
		if step.Answer == "" {
			return model.DecisionStep{}, fmt.Errorf("%w: missing answer", ErrMalformedOutput)
		}
	}
	return step, nil
}

// contextLines renders prior invocations the way they appear in the prompt.
func contextLines(snap state.Snapshot) []string {
	var out []string
	for _, inv := range snap.Invocations() {
		status := string(inv.Outcome)
		if inv.ErrorKind != "" {
			status += " (" + string(inv.ErrorKind) + ")"
		}
		out = append(out, fmt.Sprintf("Iteration %d: Called %s, %s, got: %s",
			inv.Iteration, inv.Tool, status, clipRunes(inv.Result, maxContextResultChars)))
	}
	return out
}

func callLines(calls []model.ToolCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, FormatCall(c))
	}
	return out
}

// FormatCall renders a call as name(k=v, ...) with sorted keys.
func FormatCall(c model.ToolCall) string {
	keys := make([]string, 0, len(c.Arguments))
	for k := range c.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%s=%v", k, c.Arguments[k]))
	}
	return fmt.Sprintf("%s(%s)", c.Tool, strings.Join(args, ", "))
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
