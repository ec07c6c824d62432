package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/trajgen/server/pkg/logger"
)

// newToolHandler builds a typed ToolCallbackHandler (not yet wrapped).
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			if input != nil {
				logx.Debug().Str("component", "tool").Str("tool", info.Name).Str("arguments", input.ArgumentsInJSON).Msg("tool start")
			}
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			if output != nil {
				logx.Debug().Str("component", "tool").Str("tool", info.Name).Str("response", clip(output.Response)).Msg("tool end")
			}
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("component", "tool").Str("tool", info.Name).Err(err).Msg("tool execution failed")
			return ctx
		},
	}
}

// NewToolCallbacks constructs a callbacks.Handler that logs tool lifecycle events.
func NewToolCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		Handler()
}
