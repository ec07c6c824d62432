package batch

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/trajgen/server/internal/synth/model"
	logx "github.com/trajgen/server/pkg/logger"
)

// Report is the outcome of one stage. Attempted always equals Completed plus
// Discarded. Checkpointed is the number of jobs of the run, across stages,
// already recorded when a resumed stage started.
type Report struct {
	Stage           string
	RunName         string
	RunID           string
	Seeds           int
	ExpansionFactor int
	Jobs            int
	Attempted       int
	Completed       int
	Discarded       int
	Skipped         int
	Checkpointed    int64
	Records         int
	DiscardReasons  map[string]int
	Decisions       map[model.DecisionType]int
	Fallbacks       int
	Interrupted     bool
	Duration        time.Duration

	mu sync.Mutex
}

func newReport(stage, runName, runID string, jobs int) *Report {
	return &Report{
		Stage:          stage,
		RunName:        runName,
		RunID:          runID,
		Jobs:           jobs,
		DiscardReasons: map[string]int{},
		Decisions:      map[model.DecisionType]int{},
	}
}

func (r *Report) attempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attempted++
}

func (r *Report) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped++
}

func (r *Report) complete(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed++
	r.Records += len(res.Records)
	for _, rec := range res.Records {
		r.Decisions[rec.Metadata.DecisionType]++
	}
	if res.Fallback {
		r.Fallbacks++
	}
}

func (r *Report) discard(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Discarded++
	r.DiscardReasons[reason]++
}

// AvgRecords is the mean number of records per completed trajectory.
func (r *Report) AvgRecords() float64 {
	if r.Completed == 0 {
		return 0
	}
	return float64(r.Records) / float64(r.Completed)
}

// ExitCode is 0 for a clean run and 2 when anything was discarded or the run
// was interrupted. Hard failures are reported by the caller as 1.
func (r *Report) ExitCode() int {
	if r.Discarded > 0 || r.Interrupted {
		return 2
	}
	return 0
}

func (r *Report) Log() {
	ev := logx.Info().
		Str("stage", r.Stage).
		Str("run_name", r.RunName).
		Str("run_id", r.RunID).
		Int("jobs", r.Jobs).
		Int("attempted", r.Attempted).
		Int("completed", r.Completed).
		Int("discarded", r.Discarded).
		Int("skipped", r.Skipped).
		Int64("checkpointed", r.Checkpointed).
		Int("records", r.Records).
		Bool("interrupted", r.Interrupted).
		Dur("duration", r.Duration)
	for reason, n := range r.DiscardReasons {
		ev = ev.Int("discarded_"+reason, n)
	}
	ev.Msg("stage complete")
}

// Print writes the human readable summary.
func (r *Report) Print(w io.Writer) {
	line := "============================================================"
	fmt.Fprintf(w, "\n%s\n%s COMPLETE (run %s)\n%s\n", line, r.Stage, r.RunName, line)
	if r.Seeds > 0 {
		fmt.Fprintf(w, "Seed queries:  %d\n", r.Seeds)
		fmt.Fprintf(w, "Expansion:     %dx per seed\n", r.ExpansionFactor)
	}
	fmt.Fprintf(w, "Attempted:     %d\n", r.Attempted)
	fmt.Fprintf(w, "Completed:     %d\n", r.Completed)
	fmt.Fprintf(w, "Discarded:     %d\n", r.Discarded)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:       %d (already done)\n", r.Skipped)
	}
	if r.Checkpointed > 0 {
		fmt.Fprintf(w, "Checkpointed:  %d jobs done in earlier runs\n", r.Checkpointed)
	}
	if r.Fallbacks > 0 {
		fmt.Fprintf(w, "Fallbacks:     %d (seed text kept)\n", r.Fallbacks)
	}
	if r.Records > 0 {
		fmt.Fprintf(w, "Records:       %d (%.2f per trajectory)\n", r.Records, r.AvgRecords())
		for _, d := range []model.DecisionType{model.DecisionCall, model.DecisionAsk, model.DecisionAnswer} {
			fmt.Fprintf(w, "  %-7s %d\n", d, r.Decisions[d])
		}
	}
	reasons := make([]string, 0, len(r.DiscardReasons))
	for k := range r.DiscardReasons {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	for _, k := range reasons {
		fmt.Fprintf(w, "  discarded %s: %d\n", k, r.DiscardReasons[k])
	}
	if r.Interrupted {
		fmt.Fprintln(w, "Interrupted before all jobs were started")
	}
	fmt.Fprintf(w, "Duration:      %s\n%s\n", r.Duration.Round(time.Millisecond), line)
}
