// Package trajectory runs the decide, act, record loop for one rewritten
// query and turns each step into a training record.
package trajectory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	errx "github.com/trajgen/server/internal/core/error"
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/state"
	"github.com/trajgen/server/internal/synth/tools"
	logx "github.com/trajgen/server/pkg/logger"
)

// State is the trajectory state machine position.
type State int

const (
	StateIterating State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIterating:
		return "ITERATING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Decider chooses the decision for one step.
type Decider interface {
	Decide(ctx context.Context, q model.RewrittenQuery, snap state.Snapshot, iteration, maxIterations int) (model.DecisionStep, error)
}

// Executor runs the tool calls of a CALL decision.
type Executor interface {
	Execute(ctx context.Context, sim tools.Simulation, calls []model.ToolCall) ([]model.ToolInvocation, error)
}

type Generator struct {
	decider  Decider
	executor Executor
	catalog  *tools.Catalog
	newID    func() string
}

func NewGenerator(decider Decider, executor Executor, catalog *tools.Catalog) *Generator {
	return &Generator{decider: decider, executor: executor, catalog: catalog, newID: uuid.NewString}
}

// Run produces between 1 and maxIterations records with iterations 0..n-1.
// Any failure discards the whole trajectory: records are returned only on
// success.
func (g *Generator) Run(ctx context.Context, q model.RewrittenQuery, maxIterations int) ([]model.TrainingRecord, error) {
	if maxIterations < 1 {
		return nil, fmt.Errorf("trajectory: max iterations must be >= 1, got %d", maxIterations)
	}

	id := g.newID()
	log := logx.With().
		Str("trajectory_id", id).
		Int("seed_id", q.SeedID).
		Str("variant", q.Variant().Key()).
		Logger()

	tc := state.New(q)
	defer tc.Release()

	var records []model.TrainingRecord
	current := StateIterating
	for iteration := 0; ; iteration++ {
		switch current {
		case StateTerminated:
			log.Debug().Int("records", len(records)).Msg("trajectory complete")
			return records, nil
		case StateIterating:
		default:
			panic(fmt.Sprintf("trajectory: unknown state %v", current))
		}

		snap := tc.Snapshot()
		step, err := g.decider.Decide(ctx, q, snap, iteration, maxIterations)
		if err != nil {
			log.Warn().Err(err).Int("iteration", iteration).Msg("decision failed, discarding trajectory")
			return nil, errx.TrajectoryAborted(id, iteration, err)
		}
		records = append(records, g.record(id, q, step, snap))

		next, err := g.advance(ctx, tc, q, step, iteration, maxIterations)
		if err != nil {
			if errx.KindOf(err) == errx.KindToolInconsistency {
				log.Error().Err(err).Int("iteration", iteration).Msg("tool simulation inconsistent with data mode")
				return nil, err
			}
			log.Warn().Err(err).Int("iteration", iteration).Msg("tool step failed, discarding trajectory")
			return nil, errx.TrajectoryAborted(id, iteration, err)
		}
		log.Debug().
			Int("iteration", iteration).
			Str("decision", string(step.Decision)).
			Bool("forced", step.Forced).
			Str("next", next.String()).
			Msg("step recorded")
		current = next
	}
}

// advance applies the transition for step: CALL stays in ITERATING, ASK and
// ANSWER terminate.
func (g *Generator) advance(ctx context.Context, tc *state.Context, q model.RewrittenQuery, step model.DecisionStep, iteration, maxIterations int) (State, error) {
	switch step.Decision {
	case model.DecisionCall:
		if iteration >= maxIterations-1 {
			return StateTerminated, fmt.Errorf("CALL at final iteration %d", iteration)
		}
		if len(step.ToolCalls) == 0 {
			return StateTerminated, fmt.Errorf("CALL without tool calls at iteration %d", iteration)
		}
		invs, err := g.executor.Execute(ctx, tools.Simulation{
			Mode:      q.ToolDataMode,
			Query:     q.Text,
			Iteration: iteration,
		}, step.ToolCalls)
		if err != nil {
			return StateTerminated, err
		}
		if err := CheckMode(q.ToolDataMode, invs); err != nil {
			return StateTerminated, err
		}
		tc.Record(invs...)
		return StateIterating, nil
	case model.DecisionAsk, model.DecisionAnswer:
		return StateTerminated, nil
	default:
		return StateTerminated, fmt.Errorf("unknown decision %q", step.Decision)
	}
}

func (g *Generator) record(id string, q model.RewrittenQuery, step model.DecisionStep, snap state.Snapshot) model.TrainingRecord {
	toolSet := make([]model.ToolSetEntry, 0, len(step.ToolCalls))
	for _, c := range step.ToolCalls {
		toolSet = append(toolSet, g.catalog.Entry(c))
	}
	rec := model.TrainingRecord{
		Q:        q.Text,
		COT:      step.Rationale,
		ToolSet:  toolSet,
		Decision: step.Label(),
		Metadata: model.RecordMetadata{
			Iteration:       step.Iteration,
			DecisionType:    step.Decision,
			Persona:         q.Persona,
			Complexity:      q.Complexity,
			ToolDataMode:    q.ToolDataMode,
			SeedID:          q.SeedID,
			TrajectoryID:    id,
			RewriteFallback: q.Fallback,
			ForcedTerminal:  step.Forced,
		},
	}
	if step.Iteration > 0 {
		rec.Context = snap.Invocations()
	}
	return rec
}

// CheckMode verifies every outcome agrees with the data mode: valid yields
// only successes, invalid only simulated errors.
func CheckMode(mode model.ToolDataMode, invs []model.ToolInvocation) error {
	for _, inv := range invs {
		switch mode {
		case model.ValidData:
			if inv.Failed() {
				return errx.ToolInconsistency("tool %s returned %s (%s) under %s data", inv.Tool, inv.Outcome, inv.ErrorKind, mode)
			}
		case model.InvalidData:
			if !inv.Failed() {
				return errx.ToolInconsistency("tool %s returned %s under %s data", inv.Tool, inv.Outcome, mode)
			}
		default:
			return errx.ToolInconsistency("unknown tool data mode %q", mode)
		}
	}
	return nil
}
