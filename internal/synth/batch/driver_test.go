package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/decision"
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/prompts"
	"github.com/trajgen/server/internal/synth/rewriter"
	"github.com/trajgen/server/internal/synth/store"
	"github.com/trajgen/server/internal/synth/textgen"
	"github.com/trajgen/server/internal/synth/textgen/textgentest"
	"github.com/trajgen/server/internal/synth/tools"
	"github.com/trajgen/server/internal/synth/trajectory"
	"github.com/trajgen/server/internal/synth/variants"
)

type memSink[T any] struct {
	mu    sync.Mutex
	items []T
}

func (s *memSink[T]) Write(items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return nil
}

func (s *memSink[T]) all() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.items...)
}

type rewriteFunc func(ctx context.Context, seed model.SeedQuery, v model.Variant) (model.RewrittenQuery, error)

func (f rewriteFunc) Rewrite(ctx context.Context, seed model.SeedQuery, v model.Variant) (model.RewrittenQuery, error) {
	return f(ctx, seed, v)
}

type runFunc func(ctx context.Context, q model.RewrittenQuery, max int) ([]model.TrainingRecord, error)

func (f runFunc) Run(ctx context.Context, q model.RewrittenQuery, max int) ([]model.TrainingRecord, error) {
	return f(ctx, q, max)
}

var seeds = []model.SeedQuery{
	{ID: 1, Text: "How should I allocate my retirement portfolio?"},
	{ID: 2, Text: "Is now a good time to buy AAPL stock?"},
}

func jobsFor(t *testing.T, f variants.Filters) []variants.Job {
	jobs, err := variants.Expand(seeds, f)
	require.NoError(t, err)
	return jobs
}

func realDeps(fake *textgentest.Fake) Deps {
	catalog := tools.DefaultCatalog()
	renderer := prompts.NewRenderer()
	return Deps{
		Rewriter: rewriter.New(fake, renderer, store.NewMemoryRewriteCache(), model.RewriteConfig{}),
		Runner: trajectory.NewGenerator(
			decision.NewEngine(fake, renderer, catalog, decision.DefaultConfig()),
			tools.NewExecutor(catalog), catalog),
	}
}

func passthroughRewriter() Rewriter {
	return rewriteFunc(func(_ context.Context, s model.SeedQuery, v model.Variant) (model.RewrittenQuery, error) {
		return model.NewRewrittenQuery(s, v, s.Text), nil
	})
}

func okRunner() Runner {
	return runFunc(func(_ context.Context, q model.RewrittenQuery, _ int) ([]model.TrainingRecord, error) {
		return []model.TrainingRecord{{Q: q.Text, Metadata: model.RecordMetadata{DecisionType: model.DecisionAnswer}}}, nil
	})
}

func TestPipelineEndToEnd(t *testing.T) {
	fake := textgentest.Synthetic(func(p string) string { return "Rewritten: " + textgentest.OriginalQuery(p) })
	d := NewDriver(realDeps(fake), Config{Workers: 8, MaxIterations: 3, RunName: "e2e"})

	var buf bytes.Buffer
	sink := NewJSONLWriter[model.TrainingRecord](&buf)
	queries := &memSink[model.RewrittenQuery]{}

	rep, err := d.Pipeline(context.Background(), jobsFor(t, variants.Filters{}), queries, sink)
	require.NoError(t, err)
	assert.Equal(t, 60, rep.Jobs)
	assert.Equal(t, 60, rep.Attempted)
	assert.Equal(t, 60, rep.Completed)
	assert.Zero(t, rep.Discarded)
	assert.Zero(t, rep.ExitCode())
	assert.Len(t, queries.all(), 60)
	assert.Equal(t, rep.Records, strings.Count(buf.String(), "\n"))

	// Records of one trajectory are contiguous and in iteration order.
	var prevID string
	seen := map[string]bool{}
	next := 0
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec model.TrainingRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		id := rec.Metadata.TrajectoryID
		if id != prevID {
			require.False(t, seen[id], "trajectory %s is split", id)
			seen[id] = true
			prevID, next = id, 0
		}
		assert.Equal(t, next, rec.Metadata.Iteration)
		next++
	}
	assert.Len(t, seen, 60)
}

func rewriteCalls(fake *textgentest.Fake) int {
	n := 0
	for _, c := range fake.Calls() {
		if strings.Contains(c.Prompt, textgentest.RewriteMarker) {
			n++
		}
	}
	return n
}

func TestRewriteFailureSkipsVariant(t *testing.T) {
	rw := rewriteFunc(func(_ context.Context, s model.SeedQuery, v model.Variant) (model.RewrittenQuery, error) {
		if v.Persona == model.P3 {
			return model.RewrittenQuery{}, errx.RewriteFailure(v.Key(), &textgen.ExhaustedError{Attempts: 3, Err: errors.New("503")})
		}
		return model.NewRewrittenQuery(s, v, s.Text), nil
	})
	d := NewDriver(Deps{Rewriter: rw, Runner: okRunner()}, Config{Workers: 4, MaxConsecutiveFailures: 100})

	sink := &memSink[model.TrainingRecord]{}
	rep, err := d.Pipeline(context.Background(), jobsFor(t, variants.Filters{}), nil, sink)
	require.NoError(t, err)
	assert.Equal(t, 60, rep.Attempted)
	assert.Equal(t, 48, rep.Completed)
	assert.Equal(t, 12, rep.Discarded)
	assert.Equal(t, 12, rep.DiscardReasons[string(errx.KindRewriteFailure)])
	assert.Equal(t, rep.Attempted, rep.Completed+rep.Discarded)
	assert.Equal(t, 2, rep.ExitCode())
	assert.Len(t, sink.all(), 48)
}

func TestAbortedTrajectoryIsNotWritten(t *testing.T) {
	run := runFunc(func(_ context.Context, q model.RewrittenQuery, _ int) ([]model.TrainingRecord, error) {
		if q.ToolDataMode == model.InvalidData {
			return nil, errx.TrajectoryAborted("t", 1, errors.New("parse"))
		}
		return []model.TrainingRecord{{Q: q.Text}}, nil
	})
	d := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: run}, Config{Workers: 3})
	sink := &memSink[model.TrainingRecord]{}
	rep, err := d.Pipeline(context.Background(), jobsFor(t, variants.Filters{Persona: "P1"}), nil, sink)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Discarded)
	assert.Equal(t, 6, rep.DiscardReasons[string(errx.KindTrajectoryAborted)])
	assert.Len(t, sink.all(), 6)
}

func TestUnusableServiceIsFatal(t *testing.T) {
	run := runFunc(func(context.Context, model.RewrittenQuery, int) ([]model.TrainingRecord, error) {
		return nil, errx.TrajectoryAborted("t", 0, textgen.NewPermanentError(genai.APIError{Code: 401, Message: "bad key"}))
	})
	d := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: run}, Config{Workers: 1})
	rep, err := d.Pipeline(context.Background(), jobsFor(t, variants.Filters{}), nil, &memSink[model.TrainingRecord]{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrServiceUnavailable)
	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, rep.Attempted, rep.Completed+rep.Discarded)
}

func TestConsecutiveExhaustionIsFatal(t *testing.T) {
	var calls atomic.Int32
	run := runFunc(func(context.Context, model.RewrittenQuery, int) ([]model.TrainingRecord, error) {
		calls.Add(1)
		return nil, errx.TrajectoryAborted("t", 0, &textgen.ExhaustedError{Attempts: 3, Err: errors.New("timeout")})
	})
	d := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: run}, Config{Workers: 1, MaxConsecutiveFailures: 3})
	rep, err := d.Pipeline(context.Background(), jobsFor(t, variants.Filters{}), nil, &memSink[model.TrainingRecord]{})
	assert.ErrorIs(t, err, errx.ErrServiceUnavailable)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, rep.Discarded)
}

func TestResumeSkipsCompletedJobs(t *testing.T) {
	cp := store.NewMemoryCheckpoint()
	jobs := jobsFor(t, variants.Filters{Persona: "P2", Complexity: "Q"})
	cfg := Config{Workers: 2, RunName: "resume"}

	first, err := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: okRunner(), Checkpoint: cp}, cfg).
		Pipeline(context.Background(), jobs, nil, &memSink[model.TrainingRecord]{})
	require.NoError(t, err)
	assert.Equal(t, 4, first.Completed)

	n, err := cp.Count(context.Background(), "resume")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	cfg.Resume = true
	second, err := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: okRunner(), Checkpoint: cp}, cfg).
		Pipeline(context.Background(), jobs, nil, &memSink[model.TrainingRecord]{})
	require.NoError(t, err)
	assert.Equal(t, 4, second.Skipped)
	assert.EqualValues(t, 4, second.Checkpointed)
	assert.Zero(t, second.Attempted)
	assert.Zero(t, second.ExitCode())

	var buf bytes.Buffer
	second.Print(&buf)
	assert.Contains(t, buf.String(), "Checkpointed:  4 jobs done in earlier runs")
}

func TestResetCheckpointRerunsJobs(t *testing.T) {
	ctx := context.Background()
	cp := store.NewMemoryCheckpoint()
	jobs := jobsFor(t, variants.Filters{Persona: "P2", Complexity: "Q"})
	cfg := Config{Workers: 2, RunName: "reset"}

	_, err := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: okRunner(), Checkpoint: cp}, cfg).
		Pipeline(ctx, jobs, nil, &memSink[model.TrainingRecord]{})
	require.NoError(t, err)

	cfg.Resume = true
	d := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: okRunner(), Checkpoint: cp}, cfg)
	require.NoError(t, d.ResetCheckpoint(ctx))
	n, err := cp.Count(ctx, "reset")
	require.NoError(t, err)
	assert.Zero(t, n)

	rep, err := d.Pipeline(ctx, jobs, nil, &memSink[model.TrainingRecord]{})
	require.NoError(t, err)
	assert.Zero(t, rep.Skipped)
	assert.Zero(t, rep.Checkpointed)
	assert.Equal(t, 4, rep.Completed)
}

func TestResetCheckpointWithoutStore(t *testing.T) {
	d := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: okRunner()}, Config{Workers: 1})
	assert.NoError(t, d.ResetCheckpoint(context.Background()))
}

func TestCancelLetsInFlightTrajectoryFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	run := runFunc(func(runCtx context.Context, q model.RewrittenQuery, _ int) ([]model.TrainingRecord, error) {
		once.Do(func() { close(started) })
		<-release
		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		return []model.TrainingRecord{{Q: q.Text}}, nil
	})
	d := NewDriver(Deps{Rewriter: passthroughRewriter(), Runner: run}, Config{Workers: 1})
	sink := &memSink[model.TrainingRecord]{}

	jobs := jobsFor(t, variants.Filters{})
	done := make(chan *Report)
	go func() {
		rep, _ := d.Pipeline(ctx, jobs, nil, sink)
		done <- rep
	}()

	<-started
	cancel()
	close(release)
	rep := <-done

	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, 1, rep.Completed)
	assert.True(t, rep.Interrupted)
	assert.Equal(t, 2, rep.ExitCode())
	assert.Len(t, sink.all(), 1)
}

func TestTransformWritesQueries(t *testing.T) {
	fake := textgentest.Synthetic(nil)
	d := NewDriver(realDeps(fake), Config{Workers: 1})
	sink := &memSink[model.RewrittenQuery]{}

	rep, err := d.Transform(context.Background(), jobsFor(t, variants.Filters{Complexity: "Q+"}), sink)
	require.NoError(t, err)
	assert.Equal(t, 20, rep.Completed)
	assert.Zero(t, rep.Records)
	// Both data modes of a pair share one cached rewrite.
	assert.Equal(t, 10, rewriteCalls(fake))
	for _, q := range sink.all() {
		assert.Equal(t, model.Complex, q.Complexity)
		assert.NotEmpty(t, q.PersonaName)
	}
}

func TestGenerateFromQueries(t *testing.T) {
	var qs []model.RewrittenQuery
	for _, j := range jobsFor(t, variants.Filters{Persona: "P5"}) {
		qs = append(qs, model.NewRewrittenQuery(j.Seed, j.Variant, j.Seed.Text))
	}
	d := NewDriver(realDeps(textgentest.Synthetic(nil)), Config{Workers: 2, MaxIterations: 1})
	sink := &memSink[model.TrainingRecord]{}

	rep, err := d.Generate(context.Background(), qs, sink)
	require.NoError(t, err)
	assert.Equal(t, 12, rep.Completed)
	assert.Equal(t, 12, rep.Records)
	assert.Zero(t, rep.Decisions[model.DecisionCall])
}

func TestPreflight(t *testing.T) {
	assert.NoError(t, Preflight(context.Background(), textgentest.Queue("OK")))
	err := Preflight(context.Background(), textgentest.Failing(errors.New("dial tcp: refused")))
	assert.ErrorIs(t, err, errx.ErrServiceUnavailable)
}

func TestReportPrint(t *testing.T) {
	rep := newReport(StagePipeline, "demo", "id", 3)
	rep.attempt()
	rep.attempt()
	rep.complete(Result{Records: []model.TrainingRecord{
		{Metadata: model.RecordMetadata{DecisionType: model.DecisionCall}},
		{Metadata: model.RecordMetadata{DecisionType: model.DecisionAnswer}},
	}})
	rep.discard("rewrite_failure")

	var buf bytes.Buffer
	rep.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "Completed:     1")
	assert.Contains(t, out, "discarded rewrite_failure: 1")
	assert.Contains(t, out, "(2.00 per trajectory)")
	assert.Equal(t, 2.0, rep.AvgRecords())
	assert.Equal(t, 2, rep.ExitCode())
}

func TestDiscardReason(t *testing.T) {
	assert.Equal(t, "tool_simulation_inconsistency", DiscardReason(errx.ToolInconsistency("x")))
	assert.Equal(t, "canceled", DiscardReason(context.Canceled))
	assert.Equal(t, "error", DiscardReason(errors.New("disk full")))
}
