package model

// TrainingRecord is one line of trajectories.jsonl.
type TrainingRecord struct {
	Q        string         `json:"Q"`
	COT      string         `json:"COT"`
	ToolSet  []ToolSetEntry `json:"Tool Set"`
	Decision string         `json:"Decision"`
	// Context carries the tool results accumulated before this step; absent at
	// iteration 0.
	Context  []ToolInvocation `json:"Context,omitempty"`
	Metadata RecordMetadata   `json:"metadata"`
}

type RecordMetadata struct {
	Iteration       int          `json:"iteration"`
	DecisionType    DecisionType `json:"decision_type"`
	Persona         Persona      `json:"persona"`
	Complexity      Complexity   `json:"complexity"`
	ToolDataMode    ToolDataMode `json:"tool_data_mode"`
	SeedID          int          `json:"seed_id"`
	TrajectoryID    string       `json:"trajectory_id"`
	RewriteFallback bool         `json:"rewrite_fallback,omitempty"`
	ForcedTerminal  bool         `json:"forced_terminal,omitempty"`
}
