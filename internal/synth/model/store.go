package model

import "context"

// RewriteCache stores rewritten query text so both tool data modes of a
// (seed, persona, complexity) triple share one rewrite call.
type RewriteCache interface {
	// Get returns the cached text; ok is false on a miss.
	Get(ctx context.Context, key string) (text string, ok bool, err error)
	Set(ctx context.Context, key, text string) error
}

// Checkpoint records which (seed, variant) jobs of a named run have been
// written to the sink.
type Checkpoint interface {
	Done(ctx context.Context, run, key string) (bool, error)
	Mark(ctx context.Context, run, key string) error
	Count(ctx context.Context, run string) (int64, error)
	Reset(ctx context.Context, run string) error
}
