package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/trajgen/server/pkg/logger"
)

const maxLoggedChars = 300

// newModelHandler logs the prompt and completion of every text service call
// at debug level, and failures at warn level.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", "text_model").Str("model", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).Str("prompt", clip(lastUserContent(input.Messages)))
			}
			ev.Msg("completion start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("component", "text_model").Str("model", info.Name)
			if output != nil {
				if output.Message != nil {
					ev = ev.Str("completion", clip(strings.TrimSpace(output.Message.Content)))
				}
				if output.TokenUsage != nil {
					ev = ev.Int("prompt_tokens", output.TokenUsage.PromptTokens).
						Int("completion_tokens", output.TokenUsage.CompletionTokens)
				}
			}
			ev.Msg("completion end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Str("component", "text_model").Str("model", info.Name).Err(err).Msg("completion error")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxLoggedChars {
		return s
	}
	return string(r[:maxLoggedChars]) + "..."
}
