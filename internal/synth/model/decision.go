package model

type DecisionType string

const (
	DecisionCall   DecisionType = "CALL"
	DecisionAsk    DecisionType = "ASK"
	DecisionAnswer DecisionType = "ANSWER"
)

// Terminal reports whether the decision ends a trajectory.
func (d DecisionType) Terminal() bool {
	return d == DecisionAsk || d == DecisionAnswer
}

// ToolCall is a planned invocation attached to a CALL decision.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Arguments  map[string]any `json:"arguments"`
	Corrective bool           `json:"corrective,omitempty"`
}

// DecisionStep is one iteration's decision plus the text that justifies it.
type DecisionStep struct {
	Iteration int
	Decision  DecisionType
	Rationale string
	ToolCalls []ToolCall
	Question  string
	Answer    string
	// Forced is set when the iteration cap turned a CALL into ASK or ANSWER.
	Forced bool
}

// Label renders the record "Decision" field.
func (s DecisionStep) Label() string {
	switch s.Decision {
	case DecisionAsk:
		return "ASK: " + s.Question
	case DecisionAnswer:
		return "ANSWER: " + s.Answer
	default:
		return string(DecisionCall)
	}
}
