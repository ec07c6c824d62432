package textgen

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatBackend performs exactly one chat model call per Complete.
type ChatBackend struct {
	chat        model.BaseChatModel
	modelName   string
	temperature *float32
	usage       *UsageMeter
	handlers    []einocb.Handler
}

type ChatOption func(*ChatBackend)

// WithTemperature sets the per-call sampling temperature.
func WithTemperature(t float32) ChatOption {
	return func(b *ChatBackend) { b.temperature = &t }
}

// WithUsageMeter records token usage reported by the model.
func WithUsageMeter(m *UsageMeter) ChatOption {
	return func(b *ChatBackend) { b.usage = m }
}

// WithCallbacks attaches eino callback handlers to every model call.
func WithCallbacks(handlers ...einocb.Handler) ChatOption {
	return func(b *ChatBackend) { b.handlers = append(b.handlers, handlers...) }
}

func NewChatBackend(chat model.BaseChatModel, modelName string, opts ...ChatOption) *ChatBackend {
	b := &ChatBackend{chat: chat, modelName: modelName}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *ChatBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if len(b.handlers) > 0 {
		ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
			Name:      b.modelName,
			Type:      "TextService",
			Component: components.ComponentOfChatModel,
		}, b.handlers...)
	}

	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	if b.temperature != nil {
		opts = append(opts, model.WithTemperature(*b.temperature))
	}

	msg, err := b.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if msg == nil {
		return "", ErrEmptyCompletion
	}
	if msg.ResponseMeta != nil && b.usage != nil {
		b.usage.Record(b.modelName, msg.ResponseMeta.Usage)
	}
	return msg.Content, nil
}
