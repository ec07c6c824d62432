// Package rewriter rephrases seed queries for a persona and complexity level.
package rewriter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/prompts"
	"github.com/trajgen/server/internal/synth/textgen"
	logx "github.com/trajgen/server/pkg/logger"
)

// ErrEmptyRewrite is returned when the cleaned completion is empty.
var ErrEmptyRewrite = errors.New("empty rewrite")

type Rewriter struct {
	text    textgen.Completer
	prompts *prompts.Renderer
	cache   model.RewriteCache
	cfg     model.RewriteConfig
}

// New builds a Rewriter. cache may be nil.
func New(text textgen.Completer, renderer *prompts.Renderer, cache model.RewriteCache, cfg model.RewriteConfig) *Rewriter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 250
	}
	return &Rewriter{text: text, prompts: renderer, cache: cache, cfg: cfg}
}

// Rewrite returns seed rephrased for v. The tool data mode does not affect the
// text, so both modes of a (persona, complexity) pair share one cached rewrite.
func (r *Rewriter) Rewrite(ctx context.Context, seed model.SeedQuery, v model.Variant) (model.RewrittenQuery, error) {
	key := CacheKey(seed.Text, v)
	if r.cache != nil {
		text, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("rewrite cache read failed")
		} else if ok {
			return model.NewRewrittenQuery(seed, v, text), nil
		}
	}

	text, err := r.generate(ctx, seed, v)
	if err != nil {
		if ctx.Err() != nil {
			return model.RewrittenQuery{}, ctx.Err()
		}
		if !r.cfg.AllowFallback || textgen.IsUnusable(err) {
			return model.RewrittenQuery{}, errx.RewriteFailure(v.Key(), err)
		}
		logx.Warn().
			Err(err).
			Int("seed_id", seed.ID).
			Str("variant", v.Key()).
			Msg("rewrite failed, using seed text")
		q := model.NewRewrittenQuery(seed, v, seed.Text)
		q.Fallback = true
		return q, nil
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, text); err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("rewrite cache write failed")
		}
	}
	return model.NewRewrittenQuery(seed, v, text), nil
}

func (r *Rewriter) generate(ctx context.Context, seed model.SeedQuery, v model.Variant) (string, error) {
	prompt, err := r.prompts.Rewrite(ctx, seed.Text, v)
	if err != nil {
		return "", err
	}
	out, err := r.text.Complete(ctx, prompt, r.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	text := Clean(out)
	if text == "" {
		return "", ErrEmptyRewrite
	}
	logx.Debug().
		Int("seed_id", seed.ID).
		Str("variant", v.Key()).
		Str("rewritten", text).
		Msg("query rewritten")
	return text, nil
}

// CacheKey identifies a rewrite by seed text, persona and complexity.
func CacheKey(seed string, v model.Variant) string {
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("%s:%s:%s", hex.EncodeToString(sum[:8]), v.Persona, v.Complexity)
}

var labelPrefixes = []string{"rewritten query:", "your rewritten query:", "query:"}

// Clean trims whitespace, surrounding quotes and a leading label.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range labelPrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	for {
		t := strings.TrimSpace(strings.Trim(s, "\"'`“”‘’"))
		if t == s {
			return s
		}
		s = t
	}
}
