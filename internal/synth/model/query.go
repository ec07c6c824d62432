package model

// SeedQuery is an input question, identified by its position in the seed file.
type SeedQuery struct {
	ID   int    `json:"seed_id"`
	Text string `json:"query"`
}

// RewrittenQuery is a seed rephrased for one variant. The JSON layout is the
// transformed_queries.jsonl line format.
type RewrittenQuery struct {
	SeedID                  int          `json:"seed_id"`
	SeedText                string       `json:"seed_query"`
	Persona                 Persona      `json:"persona"`
	PersonaName             string       `json:"persona_name"`
	Complexity              Complexity   `json:"complexity"`
	ComplexityName          string       `json:"complexity_name"`
	Text                    string       `json:"transformed_query"`
	ToolDataMode            ToolDataMode `json:"tool_variant"`
	ToolDataModeDescription string       `json:"tool_variant_description"`
	// Fallback marks a query whose text is the unmodified seed because the
	// rewrite failed and fallback was explicitly allowed.
	Fallback bool `json:"rewrite_fallback,omitempty"`
}

// NewRewrittenQuery fills the label fields from the variant profiles.
func NewRewrittenQuery(seed SeedQuery, v Variant, text string) RewrittenQuery {
	return RewrittenQuery{
		SeedID:                  seed.ID,
		SeedText:                seed.Text,
		Persona:                 v.Persona,
		PersonaName:             v.Persona.Profile().Name,
		Complexity:              v.Complexity,
		ComplexityName:          v.Complexity.Profile().Name,
		Text:                    text,
		ToolDataMode:            v.ToolDataMode,
		ToolDataModeDescription: v.ToolDataMode.Description(),
	}
}

func (q RewrittenQuery) Variant() Variant {
	return Variant{Persona: q.Persona, Complexity: q.Complexity, ToolDataMode: q.ToolDataMode}
}
