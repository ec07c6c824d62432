// Package batch fans rewrite and trajectory jobs out over a bounded worker
// pool and accounts for every job it starts.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/textgen"
	"github.com/trajgen/server/internal/synth/variants"
	logx "github.com/trajgen/server/pkg/logger"
)

const (
	StageTransform = "transform"
	StageGenerate  = "generate"
	StagePipeline  = "pipeline"
)

type Rewriter interface {
	Rewrite(ctx context.Context, seed model.SeedQuery, v model.Variant) (model.RewrittenQuery, error)
}

type Runner interface {
	Run(ctx context.Context, q model.RewrittenQuery, maxIterations int) ([]model.TrainingRecord, error)
}

// Recorder receives progress events; metrics.Batch implements it.
type Recorder interface {
	TrajectoryAttempted()
	TrajectorySkipped()
	TrajectoryCompleted(records []model.TrainingRecord)
	TrajectoryDiscarded(reason string)
	Rewrite(outcome string)
}

type Config struct {
	Workers                int
	MaxConsecutiveFailures int
	MaxIterations          int
	RunName                string
	// Resume skips jobs the checkpoint already marks done.
	Resume bool
}

type Deps struct {
	Rewriter   Rewriter
	Runner     Runner
	Checkpoint model.Checkpoint
	Recorder   Recorder
}

type Driver struct {
	rewriter   Rewriter
	runner     Runner
	checkpoint model.Checkpoint
	rec        Recorder
	cfg        Config
}

func NewDriver(deps Deps, cfg Config) *Driver {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 3
	}
	if cfg.RunName == "" {
		cfg.RunName = "default"
	}
	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Driver{rewriter: deps.Rewriter, runner: deps.Runner, checkpoint: deps.Checkpoint, rec: rec, cfg: cfg}
}

// Result is what one successful job produced.
type Result struct {
	Records  []model.TrainingRecord
	Fallback bool
}

type job struct {
	key  string
	work func(ctx context.Context) (Result, error)
}

// Transform rewrites every job and writes the rewritten queries to sink.
func (d *Driver) Transform(ctx context.Context, jobs []variants.Job, sink Sink[model.RewrittenQuery]) (*Report, error) {
	work := make([]job, 0, len(jobs))
	for _, j := range jobs {
		work = append(work, job{
			key: JobKey(j.Seed.ID, j.Variant),
			work: func(ctx context.Context) (Result, error) {
				q, err := d.rewrite(ctx, j.Seed, j.Variant)
				if err != nil {
					return Result{}, err
				}
				return Result{Fallback: q.Fallback}, sink.Write(q)
			},
		})
	}
	return d.run(ctx, StageTransform, work, false)
}

// Generate runs one trajectory per rewritten query.
func (d *Driver) Generate(ctx context.Context, queries []model.RewrittenQuery, sink Sink[model.TrainingRecord]) (*Report, error) {
	work := make([]job, 0, len(queries))
	for _, q := range queries {
		work = append(work, job{
			key: JobKey(q.SeedID, q.Variant()),
			work: func(ctx context.Context) (Result, error) {
				return d.trajectory(ctx, q, sink)
			},
		})
	}
	return d.run(ctx, StageGenerate, work, true)
}

// Pipeline rewrites and then runs a trajectory per job. querySink may be nil.
func (d *Driver) Pipeline(ctx context.Context, jobs []variants.Job, querySink Sink[model.RewrittenQuery], sink Sink[model.TrainingRecord]) (*Report, error) {
	work := make([]job, 0, len(jobs))
	for _, j := range jobs {
		work = append(work, job{
			key: JobKey(j.Seed.ID, j.Variant),
			work: func(ctx context.Context) (Result, error) {
				q, err := d.rewrite(ctx, j.Seed, j.Variant)
				if err != nil {
					return Result{}, err
				}
				if querySink != nil {
					if err := querySink.Write(q); err != nil {
						return Result{}, err
					}
				}
				return d.trajectory(ctx, q, sink)
			},
		})
	}
	return d.run(ctx, StagePipeline, work, true)
}

func (d *Driver) rewrite(ctx context.Context, seed model.SeedQuery, v model.Variant) (model.RewrittenQuery, error) {
	q, err := d.rewriter.Rewrite(ctx, seed, v)
	switch {
	case err != nil:
		d.rec.Rewrite("failed")
	case q.Fallback:
		d.rec.Rewrite("fallback")
	default:
		d.rec.Rewrite("ok")
	}
	return q, err
}

func (d *Driver) trajectory(ctx context.Context, q model.RewrittenQuery, sink Sink[model.TrainingRecord]) (Result, error) {
	records, err := d.runner.Run(ctx, q, d.cfg.MaxIterations)
	if err != nil {
		return Result{}, err
	}
	if err := sink.Write(records...); err != nil {
		return Result{}, err
	}
	return Result{Records: records, Fallback: q.Fallback}, nil
}

// run executes jobs on the worker pool. Cancelling ctx stops new jobs from
// starting; jobs already running finish on a context detached from it. A
// fatal error cancels everything and is returned with the partial report.
func (d *Driver) run(ctx context.Context, stage string, jobs []job, trajectories bool) (*Report, error) {
	start := time.Now()
	rep := newReport(stage, d.cfg.RunName, uuid.NewString(), len(jobs))
	log := logx.With().Str("stage", stage).Str("run_name", d.cfg.RunName).Str("run_id", rep.RunID).Logger()

	workCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)

	var (
		mu          sync.Mutex
		consecutive int
	)

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)

	if d.cfg.Resume {
		rep.Checkpointed = d.checkpointed(ctx)
	}
	log.Info().Int("jobs", len(jobs)).Int("workers", d.cfg.Workers).Int64("checkpointed", rep.Checkpointed).Msg("stage started")
	for _, j := range jobs {
		if ctx.Err() != nil || workCtx.Err() != nil {
			break
		}
		if d.cfg.Resume && d.done(ctx, stage, j.key) {
			rep.skip()
			if trajectories {
				d.rec.TrajectorySkipped()
			}
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil || workCtx.Err() != nil {
				return nil
			}
			rep.attempt()
			if trajectories {
				d.rec.TrajectoryAttempted()
			}

			res, err := j.work(workCtx)
			if err == nil {
				mu.Lock()
				consecutive = 0
				mu.Unlock()
				rep.complete(res)
				if trajectories {
					d.rec.TrajectoryCompleted(res.Records)
				}
				d.mark(workCtx, stage, j.key)
				return nil
			}

			reason := DiscardReason(err)
			rep.discard(reason)
			if trajectories {
				d.rec.TrajectoryDiscarded(reason)
			}
			log.Warn().Err(err).Str("job", j.key).Str("reason", reason).Msg("job discarded")

			if textgen.IsUnusable(err) {
				fatal := errx.ServiceUnavailable(err)
				cancel(fatal)
				return fatal
			}
			mu.Lock()
			if textgen.IsExhausted(err) {
				consecutive++
			} else {
				consecutive = 0
			}
			n := consecutive
			mu.Unlock()
			if limit := d.cfg.MaxConsecutiveFailures; limit > 0 && n >= limit {
				fatal := errx.ServiceUnavailable(fmt.Errorf("%d consecutive jobs exhausted the text service: %w", n, err))
				cancel(fatal)
				return fatal
			}
			return nil
		})
	}

	err := g.Wait()
	rep.Duration = time.Since(start)
	if ctx.Err() != nil && rep.Attempted+rep.Skipped < len(jobs) {
		rep.Interrupted = true
	}
	rep.Log()
	if err != nil {
		log.Error().Err(err).Msg("stage aborted")
	}
	return rep, err
}

// ResetCheckpoint forgets every job recorded under the run name.
func (d *Driver) ResetCheckpoint(ctx context.Context) error {
	if d.checkpoint == nil {
		return nil
	}
	if err := d.checkpoint.Reset(ctx, d.cfg.RunName); err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", d.cfg.RunName, err)
	}
	logx.Info().Str("run_name", d.cfg.RunName).Msg("checkpoint reset")
	return nil
}

func (d *Driver) checkpointed(ctx context.Context) int64 {
	if d.checkpoint == nil {
		return 0
	}
	n, err := d.checkpoint.Count(ctx, d.cfg.RunName)
	if err != nil {
		logx.Warn().Err(err).Str("run_name", d.cfg.RunName).Msg("checkpoint count failed")
		return 0
	}
	return n
}

func (d *Driver) done(ctx context.Context, stage, key string) bool {
	if d.checkpoint == nil {
		return false
	}
	ok, err := d.checkpoint.Done(ctx, d.cfg.RunName, stage+":"+key)
	if err != nil {
		logx.Warn().Err(err).Str("job", key).Msg("checkpoint lookup failed, running job")
		return false
	}
	return ok
}

func (d *Driver) mark(ctx context.Context, stage, key string) {
	if d.checkpoint == nil {
		return
	}
	if err := d.checkpoint.Mark(ctx, d.cfg.RunName, stage+":"+key); err != nil {
		logx.Warn().Err(err).Str("job", key).Msg("checkpoint mark failed")
	}
}

// JobKey identifies a (seed, variant) job within a run.
func JobKey(seedID int, v model.Variant) string {
	return fmt.Sprintf("%d|%s", seedID, v.Key())
}

// DiscardReason maps a job error to its report bucket.
func DiscardReason(err error) string {
	if k := errx.KindOf(err); k != "" {
		return string(k)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

// PreflightPrompt is the request sent to check the service before a run starts.
const PreflightPrompt = "Reply with the single word OK."

// Preflight sends one short completion so an unreachable or unauthorized
// service fails the run before any job starts.
func Preflight(ctx context.Context, text textgen.Completer) error {
	if _, err := text.Complete(ctx, PreflightPrompt, 16); err != nil {
		return errx.ServiceUnavailable(err)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) TrajectoryAttempted()                      {}
func (nopRecorder) TrajectorySkipped()                        {}
func (nopRecorder) TrajectoryCompleted([]model.TrainingRecord) {}
func (nopRecorder) TrajectoryDiscarded(string)                {}
func (nopRecorder) Rewrite(string)                            {}
