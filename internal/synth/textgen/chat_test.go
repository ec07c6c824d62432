package textgen

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatModel struct {
	got  []*schema.Message
	opts *model.Options
}

func (s *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	s.got = input
	s.opts = model.GetCommonOptions(&model.Options{}, opts...)
	return &schema.Message{
		Role:    schema.Assistant,
		Content: "rewritten",
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}, nil
}

func (s *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func TestChatBackendComplete(t *testing.T) {
	stub := &stubChatModel{}
	meter := NewUsageMeter()
	b := NewChatBackend(stub, "gemini-2.5-flash", WithTemperature(0.7), WithUsageMeter(meter))

	text, err := b.Complete(context.Background(), "rewrite this", 250)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", text)

	require.Len(t, stub.got, 1)
	assert.Equal(t, schema.User, stub.got[0].Role)
	assert.Equal(t, "rewrite this", stub.got[0].Content)
	require.NotNil(t, stub.opts.MaxTokens)
	assert.Equal(t, 250, *stub.opts.MaxTokens)
	require.NotNil(t, stub.opts.Temperature)
	assert.InDelta(t, 0.7, *stub.opts.Temperature, 1e-6)

	assert.Equal(t, 15, meter.Snapshot().PromptTokens+meter.Snapshot().CompletionTokens)
}
