// Package metrics exposes batch progress and text service latency to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trajgen/server/internal/synth/model"
	logx "github.com/trajgen/server/pkg/logger"
)

const namespace = "trajgen"

// Batch holds the collectors of one generator process on its own registry.
type Batch struct {
	registry *prometheus.Registry

	attempted   prometheus.Counter
	completed   prometheus.Counter
	skipped     prometheus.Counter
	discarded   *prometheus.CounterVec
	records     *prometheus.CounterVec
	rewrites    *prometheus.CounterVec
	completions *prometheus.HistogramVec
}

func New() *Batch {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Batch{
		registry: reg,
		attempted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "trajectories_attempted_total",
			Help:      "Trajectories started",
		}),
		completed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "trajectories_completed_total",
			Help:      "Trajectories written to the sink",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "trajectories_skipped_total",
			Help:      "Jobs skipped because a checkpoint marked them done",
		}),
		// Labels: reason (rewrite_failure, trajectory_aborted, tool_simulation_inconsistency, ...)
		discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "trajectories_discarded_total",
			Help:      "Trajectories discarded by reason",
		}, []string{"reason"}),
		// Labels: decision (CALL, ASK, ANSWER)
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Training records written by decision type",
		}, []string{"decision"}),
		// Labels: outcome (ok, failed, fallback)
		rewrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewrite",
			Name:      "queries_total",
			Help:      "Query rewrites by outcome",
		}, []string{"outcome"}),
		// Labels: outcome (ok, transient, permanent)
		completions: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "textgen",
			Name:      "completion_duration_seconds",
			Help:      "Text service attempt latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"outcome"}),
	}
}

// ObserveCompletion implements textgen.Observer.
func (b *Batch) ObserveCompletion(outcome string, elapsed time.Duration) {
	b.completions.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (b *Batch) TrajectoryAttempted() { b.attempted.Inc() }

func (b *Batch) TrajectorySkipped() { b.skipped.Inc() }

func (b *Batch) TrajectoryCompleted(records []model.TrainingRecord) {
	b.completed.Inc()
	for _, r := range records {
		b.records.WithLabelValues(string(r.Metadata.DecisionType)).Inc()
	}
}

func (b *Batch) TrajectoryDiscarded(reason string) {
	b.discarded.WithLabelValues(reason).Inc()
}

func (b *Batch) Rewrite(outcome string) {
	b.rewrites.WithLabelValues(outcome).Inc()
}

func (b *Batch) Registry() *prometheus.Registry { return b.registry }

func (b *Batch) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{Registry: b.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
