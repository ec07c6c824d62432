package decision

import (
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/state"
	"github.com/trajgen/server/internal/synth/tools"
)

// Reason names the rule that produced a Choice; it is logged, not emitted.
type Reason string

const (
	ReasonAmbiguous        Reason = "ambiguous_query"
	ReasonInitialCall      Reason = "initial_call"
	ReasonGeneralKnowledge Reason = "general_knowledge"
	ReasonMissingInput     Reason = "missing_input"
	ReasonCorrectiveCall   Reason = "corrective_call"
	ReasonCorrectionFailed Reason = "correction_failed"
	ReasonSufficient       Reason = "sufficient_context"
	ReasonGatherMore       Reason = "gather_more"
	ReasonExhausted        Reason = "tools_exhausted"
	ReasonCapAsk           Reason = "iteration_cap_ask"
	ReasonCapAnswer        Reason = "iteration_cap_answer"
)

// Choice is the policy outcome before any text is generated.
type Choice struct {
	Decision     model.DecisionType
	Calls        []model.ToolCall
	QuestionHint string
	Forced       bool
	Corrective   bool
	Reason       Reason
}

// Policy is the deterministic part of the decision engine.
type Policy struct {
	catalog                *tools.Catalog
	rules                  []AmbiguityRule
	answerGeneralKnowledge bool
}

func NewPolicy(catalog *tools.Catalog, rules []AmbiguityRule, answerGeneralKnowledge bool) *Policy {
	return &Policy{catalog: catalog, rules: rules, answerGeneralKnowledge: answerGeneralKnowledge}
}

// Choose applies the rules in precedence order and then the iteration cap.
// It never returns CALL when iteration >= maxIterations-1.
func (p *Policy) Choose(q model.RewrittenQuery, snap state.Snapshot, iteration, maxIterations int) Choice {
	c := p.candidate(q, snap, iteration, maxIterations)
	if c.Decision == model.DecisionCall && iteration >= maxIterations-1 {
		return capChoice(snap)
	}
	return c
}

func (p *Policy) candidate(q model.RewrittenQuery, snap state.Snapshot, iteration, maxIterations int) Choice {
	for _, r := range p.rules {
		if r.Matches(q.Text) {
			return Choice{Decision: model.DecisionAsk, QuestionHint: r.Question, Reason: ReasonAmbiguous}
		}
	}

	relevant := p.relevant(q.Text)

	if iteration == 0 && snap.Empty() {
		if p.answerGeneralKnowledge && isGeneralKnowledge(q.Text) && !specificTool(relevant) {
			return Choice{Decision: model.DecisionAnswer, Reason: ReasonGeneralKnowledge}
		}
		return p.gather(q, snap, relevant, iteration, maxIterations, ReasonInitialCall)
	}

	if errs := snap.LastBatchErrors(); len(errs) > 0 {
		for _, inv := range errs {
			if inv.ErrorKind == model.ErrMissingInput {
				return Choice{Decision: model.DecisionAsk, QuestionHint: questionForParam(inv.MissingParam), Reason: ReasonMissingInput}
			}
		}
		// A tool gets one corrective retry; failing again means asking.
		var specs []model.ToolSpec
		for _, inv := range errs {
			if inv.Corrective {
				continue
			}
			if s, ok := p.catalog.Lookup(inv.Tool); ok {
				specs = append(specs, s)
			}
		}
		if len(specs) == 0 {
			return Choice{Decision: model.DecisionAsk, QuestionHint: questionForFailure(toolNames(errs)), Reason: ReasonCorrectionFailed}
		}
		return Choice{
			Decision:     model.DecisionCall,
			Calls:        tools.Plan(q.Text, specs, true),
			QuestionHint: questionForFailure(toolNames(errs)),
			Corrective:   true,
			Reason:       ReasonCorrectiveCall,
		}
	}

	if len(snap.SuccessfulTools()) >= requiredTools(q.Complexity, len(relevant)) {
		return Choice{Decision: model.DecisionAnswer, Reason: ReasonSufficient}
	}

	return p.gather(q, snap, relevant, iteration, maxIterations, ReasonGatherMore)
}

// gather plans the next unused relevant tools, spreading the remaining need
// over the iterations still allowed to CALL.
func (p *Policy) gather(q model.RewrittenQuery, snap state.Snapshot, relevant []model.ToolSpec, iteration, maxIterations int, reason Reason) Choice {
	called := snap.CalledTools()
	var unused []model.ToolSpec
	for _, s := range relevant {
		if !called[s.Name] {
			unused = append(unused, s)
		}
	}
	if len(unused) == 0 {
		if unresolved := snap.UnresolvedErrors(); len(unresolved) > 0 {
			return Choice{Decision: model.DecisionAsk, QuestionHint: questionForFailure(toolNames(unresolved)), Reason: ReasonExhausted}
		}
		return Choice{Decision: model.DecisionAnswer, Reason: ReasonExhausted}
	}

	need := requiredTools(q.Complexity, len(relevant)) - len(snap.SuccessfulTools())
	callsLeft := maxIterations - 1 - iteration
	perCall := 1
	if callsLeft > 0 && need > callsLeft {
		perCall = (need + callsLeft - 1) / callsLeft
	}
	perCall = min(perCall, len(unused))

	return Choice{Decision: model.DecisionCall, Calls: tools.Plan(q.Text, unused[:perCall], false), Reason: reason}
}

func (p *Policy) relevant(query string) []model.ToolSpec {
	rel := p.catalog.Relevant(query)
	if len(rel) == 0 {
		rel = p.catalog.Specs()[:1]
	}
	return rel
}

func capChoice(snap state.Snapshot) Choice {
	if unresolved := snap.UnresolvedErrors(); len(unresolved) > 0 {
		hint := questionForFailure(toolNames(unresolved))
		for _, inv := range unresolved {
			if inv.ErrorKind == model.ErrMissingInput {
				hint = questionForParam(inv.MissingParam)
				break
			}
		}
		return Choice{Decision: model.DecisionAsk, QuestionHint: hint, Forced: true, Reason: ReasonCapAsk}
	}
	return Choice{Decision: model.DecisionAnswer, Forced: true, Reason: ReasonCapAnswer}
}

// requiredTools is how many distinct successful tools make the context
// sufficient: two for complex queries, otherwise one, never more than exist.
func requiredTools(c model.Complexity, relevant int) int {
	n := 1
	if c == model.Complex {
		n = 2
	}
	return max(1, min(n, relevant))
}

// specificTool reports whether anything beyond always-on tools matched.
func specificTool(relevant []model.ToolSpec) bool {
	for _, s := range relevant {
		if !s.Always {
			return true
		}
	}
	return false
}

func toolNames(invs []model.ToolInvocation) []string {
	seen := map[string]bool{}
	var out []string
	for _, inv := range invs {
		if !seen[inv.Tool] {
			seen[inv.Tool] = true
			out = append(out, inv.Tool)
		}
	}
	return out
}
