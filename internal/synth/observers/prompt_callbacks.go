package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/trajgen/server/pkg/logger"
)

// newPromptHandler builds a typed PromptCallbackHandler (not yet wrapped).
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			if output != nil && len(output.Result) > 0 && output.Result[0] != nil {
				logx.Debug().Str("component", "prompt").Str("template", info.Name).
					Int("rendered_chars", len(output.Result[0].Content)).
					Msg("prompt rendered")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("component", "prompt").Str("template", info.Name).Err(err).Msg("prompt render failed")
			return ctx
		},
	}
}

// NewPromptCallbacks constructs a callbacks.Handler for prompt lifecycle events.
func NewPromptCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Prompt(newPromptHandler()).
		Handler()
}
