package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/trajgen/server/internal/core"
	"github.com/trajgen/server/internal/synth/model"
	pkgredis "github.com/trajgen/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the generator, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	LogFile     string `envconfig:"LOG_FILE"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	TextModel   model.TextModelConfig
	TextService model.TextServiceConfig
	Rewrite     model.RewriteConfig
	Trajectory  model.TrajectoryConfig
	Batch       model.BatchConfig
}

// LoadConfig reads envFile when it exists and then the process environment.
func LoadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

func (c AppConfig) environment() (core.Environment, error) {
	return core.ParseEnvironment(c.Environment)
}
