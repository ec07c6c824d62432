package textgen

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	synthmodel "github.com/trajgen/server/internal/synth/model"
	logx "github.com/trajgen/server/pkg/logger"
)

// GeminiConfig holds the configuration for chat model creation.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   synthmodel.TextModelConfig
}

// NewGeminiModel creates the Gemini chat model used as the text service backend.
func NewGeminiModel(ctx context.Context, config GeminiConfig) (model.BaseChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cfg := &gemini.Config{
		Client:      client,
		Model:       config.Model.Model,
		Temperature: &config.Model.Temperature,
	}
	if config.Model.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.Model.ThinkingBudget),
		}
	}

	chat, err := gemini.NewChatModel(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating text model")
		return nil, fmt.Errorf("error creating text model: %w", err)
	}

	return chat, nil
}
