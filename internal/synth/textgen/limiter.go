package textgen

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds both the request rate and the number of in-flight requests
// against the shared text service.
type Limiter struct {
	rate *rate.Limiter
	sem  *semaphore.Weighted
}

// NewLimiter builds a limiter. rps <= 0 disables rate limiting and
// maxConcurrent <= 0 disables the concurrency bound.
func NewLimiter(rps float64, maxConcurrent int) *Limiter {
	l := &Limiter{}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		l.rate = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return l
}

// Acquire blocks until a request may start. The returned release func must be
// called once the request finishes.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release := func() {
		if l.sem != nil {
			l.sem.Release(1)
		}
	}
	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}
