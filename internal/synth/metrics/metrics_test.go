package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajgen/server/internal/synth/model"
)

func counterValue(t *testing.T, b *Batch, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return float64(m.GetHistogram().GetSampleCount())
		}
	}
	return 0
}

func TestBatchCounters(t *testing.T) {
	b := New()
	b.TrajectoryAttempted()
	b.TrajectoryAttempted()
	b.TrajectoryCompleted([]model.TrainingRecord{
		{Metadata: model.RecordMetadata{DecisionType: model.DecisionCall}},
		{Metadata: model.RecordMetadata{DecisionType: model.DecisionAnswer}},
	})
	b.TrajectoryDiscarded("trajectory_aborted")
	b.ObserveCompletion("ok", 300*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, b, "trajgen_batch_trajectories_attempted_total", nil))
	assert.Equal(t, 1.0, counterValue(t, b, "trajgen_batch_trajectories_completed_total", nil))
	assert.Equal(t, 1.0, counterValue(t, b, "trajgen_batch_records_total", map[string]string{"decision": "CALL"}))
	assert.Equal(t, 1.0, counterValue(t, b, "trajgen_batch_trajectories_discarded_total", map[string]string{"reason": "trajectory_aborted"}))
	assert.Equal(t, 1.0, counterValue(t, b, "trajgen_textgen_completion_duration_seconds", map[string]string{"outcome": "ok"}))
}

func TestHandler(t *testing.T) {
	b := New()
	b.Rewrite("ok")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trajgen_rewrite_queries_total{outcome="ok"} 1`)
}
