// Package textgentest provides scripted text services for tests.
package textgentest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Call records one Complete invocation.
type Call struct {
	Prompt    string
	MaxTokens int
}

// Responder decides a reply from the prompt.
type Responder func(prompt string) (string, error)

// Fake is a concurrency-safe Completer that answers through a Responder and
// records every call.
type Fake struct {
	mu      sync.Mutex
	respond Responder
	calls   []Call
}

func New(r Responder) *Fake {
	return &Fake{respond: r}
}

// Queue answers with replies in order, then fails with ErrScriptExhausted.
func Queue(replies ...string) *Fake {
	var mu sync.Mutex
	i := 0
	return New(func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(replies) {
			return "", ErrScriptExhausted
		}
		r := replies[i]
		i++
		return r, nil
	})
}

// Failing always returns err.
func Failing(err error) *Fake {
	return New(func(string) (string, error) { return "", err })
}

var ErrScriptExhausted = errors.New("textgentest: script exhausted")

func (f *Fake) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt, MaxTokens: maxTokens})
	f.mu.Unlock()
	return f.respond(prompt)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Markers the synthetic responder uses to recognise prompt types.
const (
	RewriteMarker  = "YOUR REWRITTEN QUERY:"
	decisionMarker = "The decision for this step is "
)

// Synthetic answers rewrite prompts with rewrite(prompt) and decision prompts
// with a well formed reply for the decision the prompt names.
func Synthetic(rewrite func(prompt string) string) *Fake {
	return New(SyntheticResponder(rewrite))
}

func SyntheticResponder(rewrite func(prompt string) string) Responder {
	return func(prompt string) (string, error) {
		if strings.Contains(prompt, RewriteMarker) {
			if rewrite == nil {
				return OriginalQuery(prompt), nil
			}
			return rewrite(prompt), nil
		}
		switch {
		case strings.Contains(prompt, decisionMarker+"CALL"):
			return "REASONING: I need more information before answering, so I will call the selected tools.", nil
		case strings.Contains(prompt, decisionMarker+"ASK"):
			return "REASONING: The request is missing a detail I cannot infer.\nQUESTION: Could you clarify which account you mean?", nil
		case strings.Contains(prompt, decisionMarker+"ANSWER"):
			return "REASONING: The gathered information is enough to respond.\nANSWER: Based on the retrieved information, a diversified mix of stocks and bonds fits your goal.", nil
		}
		return "", errors.New("textgentest: unrecognised prompt")
	}
}

// OriginalQuery extracts the seed text from a rewrite prompt.
func OriginalQuery(prompt string) string {
	_, after, ok := strings.Cut(prompt, "ORIGINAL QUERY:\n")
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(after, "\n")
	return strings.TrimSpace(line)
}
