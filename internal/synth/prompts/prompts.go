// Package prompts renders the text service instructions from embedded Go
// templates through the eino prompt component, so prompt callbacks fire on
// every render.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/trajgen/server/internal/synth/model"
)

//go:embed template/rewrite.txt
var rewriteTemplate string

//go:embed template/decision_call.txt
var callTemplate string

//go:embed template/decision_ask.txt
var askTemplate string

//go:embed template/decision_answer.txt
var answerTemplate string

// Renderer renders prompts. The zero value works and emits no callbacks.
type Renderer struct {
	handlers []einocb.Handler
}

func NewRenderer(handlers ...einocb.Handler) *Renderer {
	return &Renderer{handlers: handlers}
}

// DecisionInput carries everything a decision prompt may reference.
type DecisionInput struct {
	Query         string
	Iteration     int
	MaxIterations int
	Tools         []model.ToolSpec
	// Context holds one human readable line per prior tool invocation.
	Context []string
	// Calls holds one line per planned tool call (CALL only).
	Calls        []string
	Corrective   bool
	QuestionHint string
	Forced       bool
}

// Rewrite renders the combined persona and complexity rewrite instruction.
func (r *Renderer) Rewrite(ctx context.Context, seed string, v model.Variant) (string, error) {
	p := v.Persona.Profile()
	c := v.Complexity.Profile()
	return r.render(ctx, "rewrite", rewriteTemplate, map[string]any{
		"Query":                 seed,
		"PersonaName":           p.Name,
		"PersonaDescription":    p.Description,
		"PersonaStyle":          p.Style,
		"Complexity":            string(v.Complexity),
		"ComplexityName":        c.Name,
		"ComplexityDescription": c.Description,
		"ComplexityGuidance":    c.Guidance,
	})
}

// Decision renders the rationale prompt for an already chosen decision.
func (r *Renderer) Decision(ctx context.Context, d model.DecisionType, in DecisionInput) (string, error) {
	var tpl string
	switch d {
	case model.DecisionCall:
		tpl = callTemplate
	case model.DecisionAsk:
		tpl = askTemplate
	case model.DecisionAnswer:
		tpl = answerTemplate
	default:
		return "", fmt.Errorf("decision prompt: unknown decision %q", d)
	}
	return r.render(ctx, "decision_"+string(d), tpl, map[string]any{
		"Query":         in.Query,
		"Iteration":     in.Iteration,
		"MaxIterations": in.MaxIterations,
		"Tools":         in.Tools,
		"Context":       in.Context,
		"Calls":         in.Calls,
		"Corrective":    in.Corrective,
		"QuestionHint":  in.QuestionHint,
		"Forced":        in.Forced,
	})
}

func (r *Renderer) render(ctx context.Context, name, text string, vars map[string]any) (string, error) {
	if r != nil && len(r.handlers) > 0 {
		ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
			Name:      name,
			Type:      "GoTemplate",
			Component: components.ComponentOfPrompt,
		}, r.handlers...)
	}

	tpl := prompt.FromMessages(schema.GoTemplate, schema.UserMessage(text))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs[0].Content, nil
}
