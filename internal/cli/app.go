package cli

import (
	"context"
	"errors"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/trajgen/server/internal/synth/batch"
	"github.com/trajgen/server/internal/synth/decision"
	"github.com/trajgen/server/internal/synth/metrics"
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/observers"
	"github.com/trajgen/server/internal/synth/prompts"
	"github.com/trajgen/server/internal/synth/rewriter"
	"github.com/trajgen/server/internal/synth/store"
	"github.com/trajgen/server/internal/synth/textgen"
	"github.com/trajgen/server/internal/synth/tools"
	"github.com/trajgen/server/internal/synth/trajectory"
	logx "github.com/trajgen/server/pkg/logger"
)

// ErrMissingAPIKey is returned when no backend is injected and
// GEMINI_API_KEY is empty.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")

// app is the wired generator for one command invocation.
type app struct {
	cfg        AppConfig
	text       *textgen.Service
	usage      *textgen.UsageMeter
	metrics    *metrics.Batch
	catalog    *tools.Catalog
	cache      model.RewriteCache
	checkpoint model.Checkpoint
	rdb        *redis.Client
}

func newApp(ctx context.Context, cfg AppConfig, opts Options) (*app, error) {
	catalog, err := tools.LoadCatalog(cfg.Trajectory.ToolsFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, catalog: catalog, metrics: metrics.New(), usage: textgen.NewUsageMeter()}

	backend := opts.Backend
	if backend == nil {
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		chat, err := textgen.NewGeminiModel(ctx, textgen.GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.TextModel,
		})
		if err != nil {
			return nil, err
		}
		backend = textgen.NewChatBackend(chat, cfg.TextModel.Model,
			textgen.WithTemperature(cfg.TextModel.Temperature),
			textgen.WithUsageMeter(a.usage),
			textgen.WithCallbacks(observers.NewModelCallbacks()),
		)
	}

	a.text = textgen.NewService(backend, textgen.Options{
		Retry: textgen.RetryConfig{
			MaxAttempts:       cfg.TextService.MaxAttempts,
			BackoffBase:       cfg.TextService.BackoffBase,
			BackoffMultiplier: 2,
			MaxBackoff:        cfg.TextService.BackoffMax,
		},
		Timeout:  cfg.TextService.Timeout,
		Limiter:  textgen.NewLimiter(cfg.TextService.RequestsPerSecond, cfg.TextService.MaxConcurrent),
		Observer: a.metrics,
	})

	if cfg.Redis.Enabled() {
		a.rdb, err = cfg.Redis.New(ctx)
		if err != nil {
			return nil, err
		}
		a.cache = store.NewRedisRewriteCache(a.rdb, cfg.Rewrite.CacheTTL)
		a.checkpoint = store.NewRedisCheckpoint(a.rdb, cfg.Batch.CheckpointTTL)
		logx.Info().Msg("using redis rewrite cache and checkpoint")
	} else {
		a.cache = store.NewMemoryRewriteCache()
		a.checkpoint = store.NewMemoryCheckpoint()
	}
	return a, nil
}

func (a *app) driver(bc batch.Config) *batch.Driver {
	handler := observers.NewAllCallbacks()
	renderer := prompts.NewRenderer(handler)

	engineCfg := decision.DefaultConfig()
	engineCfg.MaxTokens = a.cfg.Trajectory.DecisionMaxTokens
	engineCfg.ParseRetries = a.cfg.Trajectory.ParseRetries

	engine := decision.NewEngine(a.text, renderer, a.catalog, engineCfg)
	gen := trajectory.NewGenerator(engine, tools.NewExecutor(a.catalog, handler), a.catalog)

	return batch.NewDriver(batch.Deps{
		Rewriter:   rewriter.New(a.text, renderer, a.cache, a.cfg.Rewrite),
		Runner:     gen,
		Checkpoint: a.checkpoint,
		Recorder:   a.metrics,
	}, bc)
}

// serveMetrics starts the metrics endpoint when an address is configured.
// The returned stop function is never nil.
func (a *app) serveMetrics(ctx context.Context, addr string) func() {
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(ctx, addr, a.metrics.Handler()); err != nil {
			logx.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *app) logUsage() {
	u := a.usage.Snapshot()
	if u.Calls == 0 {
		return
	}
	logx.Info().
		Int("calls", u.Calls).
		Int("prompt_tokens", u.PromptTokens).
		Int("completion_tokens", u.CompletionTokens).
		Float64("cost_usd", u.CostUSD).
		Msg("text service usage")
}

func (a *app) Close() error {
	if a.rdb != nil {
		return a.rdb.Close()
	}
	return nil
}

var _ io.Closer = (*app)(nil)
