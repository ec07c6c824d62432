package model

import "sort"

// ToolKind groups tools by the synthetic payload they produce.
type ToolKind string

const (
	KindKnowledge  ToolKind = "knowledge"
	KindAccount    ToolKind = "account"
	KindMarket     ToolKind = "market"
	KindAllocation ToolKind = "allocation"
	KindRisk       ToolKind = "risk"
)

type ParamSpec struct {
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Required    bool     `json:"required,omitempty" yaml:"required"`
	Enum        []string `json:"enum,omitempty" yaml:"enum"`
	// Default is used when a corrective call fills in a value the planner
	// could not infer from the query.
	Default any `json:"default,omitempty" yaml:"default"`
}

type ToolSpec struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description" yaml:"description"`
	Parameters  map[string]ParamSpec `json:"parameters" yaml:"parameters"`
	Kind        ToolKind             `json:"kind,omitempty" yaml:"kind"`
	Keywords    []string             `json:"keywords,omitempty" yaml:"keywords"`
	// Always marks a tool relevant to every query regardless of keywords.
	Always bool `json:"always,omitempty" yaml:"always"`
}

// RequiredParams returns the names of required parameters in sorted order.
func (t ToolSpec) RequiredParams() []string {
	var out []string
	for name, p := range t.Parameters {
		if p.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ToolSetEntry is one element of a record's "Tool Set".
type ToolSetEntry struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	Arguments   map[string]any       `json:"arguments,omitempty"`
}

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeSimulatedError Outcome = "simulated_error"
)

type ErrorKind string

const (
	ErrMissingInput     ErrorKind = "missing_input"
	ErrUpstreamFailure  ErrorKind = "upstream_failure"
	ErrCorruptedPayload ErrorKind = "corrupted_payload"
)

// ToolInvocation is the recorded result of one synthetic tool execution.
type ToolInvocation struct {
	Tool         string         `json:"tool"`
	Parameters   map[string]any `json:"parameters"`
	Outcome      Outcome        `json:"outcome"`
	Result       string         `json:"result"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`
	MissingParam string         `json:"missing_param,omitempty"`
	Iteration    int            `json:"iteration"`
	Corrective   bool           `json:"corrective,omitempty"`
}

func (i ToolInvocation) Failed() bool {
	return i.Outcome == OutcomeSimulatedError
}
