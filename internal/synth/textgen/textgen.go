// Package textgen is the client side of the external text generation
// service: a single-attempt chat backend, plus the shared Service that adds
// rate limiting, per-attempt timeouts and bounded retries on top of it.
package textgen

import "context"

// Completer turns a prompt into text. Implementations must be safe for
// concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}
