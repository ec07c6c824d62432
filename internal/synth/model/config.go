package model

import "time"

// ================ Config ================
type TextModelConfig struct {
	Model          string  `envconfig:"TEXT_MODEL" default:"gemini-2.5-flash"`
	Temperature    float32 `envconfig:"TEXT_TEMPERATURE" default:"0.7"`
	ThinkingBudget int32   `envconfig:"TEXT_THINKING_BUDGET" default:"0"`
}

type TextServiceConfig struct {
	Timeout           time.Duration `envconfig:"TEXT_TIMEOUT" default:"60s"`
	MaxAttempts       int           `envconfig:"TEXT_MAX_ATTEMPTS" default:"3"`
	BackoffBase       time.Duration `envconfig:"TEXT_BACKOFF_BASE" default:"2s"`
	BackoffMax        time.Duration `envconfig:"TEXT_BACKOFF_MAX" default:"30s"`
	RequestsPerSecond float64       `envconfig:"TEXT_RPS" default:"2"`
	MaxConcurrent     int           `envconfig:"TEXT_MAX_CONCURRENT" default:"4"`
}

type RewriteConfig struct {
	MaxTokens     int           `envconfig:"REWRITE_MAX_TOKENS" default:"250"`
	AllowFallback bool          `envconfig:"REWRITE_ALLOW_FALLBACK" default:"false"`
	CacheTTL      time.Duration `envconfig:"REWRITE_CACHE_TTL" default:"168h"`
}

type TrajectoryConfig struct {
	MaxIterations     int    `envconfig:"TRAJECTORY_MAX_ITERATIONS" default:"3"`
	DecisionMaxTokens int    `envconfig:"DECISION_MAX_TOKENS" default:"1000"`
	ParseRetries      int    `envconfig:"TRAJECTORY_PARSE_RETRIES" default:"1"`
	ToolsFile         string `envconfig:"TOOLS_DEFINITIONS_FILE"`
}

type BatchConfig struct {
	Workers                int           `envconfig:"BATCH_WORKERS" default:"4"`
	MaxConsecutiveFailures int           `envconfig:"BATCH_MAX_CONSECUTIVE_FAILURES" default:"10"`
	RunName                string        `envconfig:"BATCH_RUN_NAME" default:"default"`
	CheckpointTTL          time.Duration `envconfig:"BATCH_CHECKPOINT_TTL" default:"720h"`
}
