package model

import "fmt"

// Persona is a labeled user voice applied when rewriting a seed query.
type Persona string

const (
	P1 Persona = "P1"
	P2 Persona = "P2"
	P3 Persona = "P3"
	P4 Persona = "P4"
	P5 Persona = "P5"
)

// Personas lists every persona in enumeration order.
var Personas = []Persona{P1, P2, P3, P4, P5}

// PersonaProfile describes how a persona phrases questions.
type PersonaProfile struct {
	Name        string
	Description string
	Style       string
}

var personaProfiles = map[Persona]PersonaProfile{
	P1: {
		Name:        "First-time Investor",
		Description: "New to investing, uses simple language, asks basic questions",
		Style:       "Simple, conversational, may be uncertain or ask for explanations",
	},
	P2: {
		Name:        "Experienced Professional",
		Description: "Familiar with investment concepts, direct and efficient",
		Style:       "Professional, concise, uses standard industry terminology",
	},
	P3: {
		Name:        "Technical Analyst",
		Description: "Data-driven, wants specific metrics and numbers",
		Style:       "Analytical, precise, requests quantitative details",
	},
	P4: {
		Name:        "Anxious Investor",
		Description: "Risk-averse, concerned about losses, seeks reassurance",
		Style:       "Cautious, uncertain, multiple questions, risk-focused",
	},
	P5: {
		Name:        "Directive Executive",
		Description: "Time-conscious, assertive, expects quick answers",
		Style:       "Direct commands, minimal details, action-oriented",
	},
}

func (p Persona) Valid() bool {
	_, ok := personaProfiles[p]
	return ok
}

func (p Persona) Profile() PersonaProfile {
	return personaProfiles[p]
}

// Complexity is a sophistication tier applied when rewriting a seed query.
type Complexity string

const (
	Simplified Complexity = "Q-"
	Original   Complexity = "Q"
	Complex    Complexity = "Q+"
)

// Complexities lists every tier in enumeration order.
var Complexities = []Complexity{Simplified, Original, Complex}

type ComplexityProfile struct {
	Name        string
	Description string
	Guidance    string
}

var complexityProfiles = map[Complexity]ComplexityProfile{
	Simplified: {
		Name:        "Simplified",
		Description: "Break down into simpler terms, beginner-friendly",
		Guidance:    "Use everyday language, shorter sentences, avoid jargon",
	},
	Original: {
		Name:        "Original",
		Description: "Keep as-is",
		Guidance:    "Keep the original level of detail and terminology",
	},
	Complex: {
		Name:        "Complex",
		Description: "Make more sophisticated, multi-faceted",
		Guidance:    "Add nuance, multiple aspects, technical depth",
	},
}

func (c Complexity) Valid() bool {
	_, ok := complexityProfiles[c]
	return ok
}

func (c Complexity) Profile() ComplexityProfile {
	return complexityProfiles[c]
}

// ToolDataMode selects whether synthetic tool outcomes succeed or fail for a
// whole trajectory.
type ToolDataMode string

const (
	ValidData   ToolDataMode = "valid"
	InvalidData ToolDataMode = "invalid"
)

// ToolDataModes lists both modes in enumeration order.
var ToolDataModes = []ToolDataMode{ValidData, InvalidData}

func (m ToolDataMode) Valid() bool {
	return m == ValidData || m == InvalidData
}

func (m ToolDataMode) Description() string {
	switch m {
	case ValidData:
		return "Normal tool execution with valid data"
	case InvalidData:
		return "Tool returns mismatched or wrong data"
	default:
		return ""
	}
}

// Variant is one point of the persona x complexity x tool data mode grid.
type Variant struct {
	Persona      Persona      `json:"persona"`
	Complexity   Complexity   `json:"complexity"`
	ToolDataMode ToolDataMode `json:"tool_data_mode"`
}

// Key is a stable identifier, e.g. "P1|Q-|valid".
func (v Variant) Key() string {
	return fmt.Sprintf("%s|%s|%s", v.Persona, v.Complexity, v.ToolDataMode)
}

func (v Variant) String() string {
	return v.Key()
}
