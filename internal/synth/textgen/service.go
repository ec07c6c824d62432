package textgen

import (
	"context"
	"strings"
	"time"

	logx "github.com/trajgen/server/pkg/logger"
)

// Observer receives one event per attempt. outcome is "ok", "transient" or
// "permanent".
type Observer interface {
	ObserveCompletion(outcome string, elapsed time.Duration)
}

// Options configures a Service.
type Options struct {
	Retry    RetryConfig
	Timeout  time.Duration
	Limiter  *Limiter
	Observer Observer
}

// Service is the shared text service used by every trajectory worker.
type Service struct {
	backend  Completer
	retry    RetryConfig
	timeout  time.Duration
	limiter  *Limiter
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewService wraps a single-attempt backend.
func NewService(backend Completer, opts Options) *Service {
	return &Service{
		backend:  backend,
		retry:    opts.Retry.normalized(),
		timeout:  opts.Timeout,
		limiter:  opts.Limiter,
		observer: opts.Observer,
		sleep:    sleepCtx,
	}
}

// Complete sends prompt with retry. Only transient errors are retried; once
// attempts run out an *ExhaustedError is returned. Cancellation of ctx is
// returned as ctx.Err().
func (s *Service) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		text, err := s.attempt(ctx, prompt, maxTokens)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		if !IsTransient(err) {
			return "", err
		}

		if attempt < s.retry.MaxAttempts {
			backoff := s.retry.backoff(attempt)
			logx.Debug().
				Int("attempt", attempt).
				Int("max_attempts", s.retry.MaxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("completion failed, retrying")

			if err := s.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}
	}

	return "", &ExhaustedError{Attempts: s.retry.MaxAttempts, Err: lastErr}
}

func (s *Service) attempt(ctx context.Context, prompt string, maxTokens int) (string, error) {
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	actx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.backend.Complete(actx, prompt, maxTokens)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyCompletion
	}
	err = Classify(err)
	s.observe(err, time.Since(start))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *Service) observe(err error, elapsed time.Duration) {
	if s.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsTransient(err):
		outcome = "transient"
	default:
		outcome = "permanent"
	}
	s.observer.ObserveCompletion(outcome, elapsed)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
