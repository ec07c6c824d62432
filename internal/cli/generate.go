package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trajgen/server/internal/synth/batch"
	"github.com/trajgen/server/internal/synth/model"
	"github.com/trajgen/server/internal/synth/variants"
)

const (
	transformedFile  = "transformed_queries.jsonl"
	trajectoriesFile = "trajectories.jsonl"
)

type batchFlags struct {
	workers       int
	resume        bool
	reset         bool
	runName       string
	metricsAddr   string
	allowFallback bool
	maxIterations int
	toolsFile     string
	persona       string
	complexity    string
}

func (f *batchFlags) bindCommon(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.workers, "workers", 4, "Trajectories processed in parallel")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "Skip jobs already completed under --run-name and append to outputs")
	cmd.Flags().BoolVar(&f.reset, "reset-checkpoint", false, "Forget jobs completed under --run-name before starting")
	cmd.Flags().StringVar(&f.runName, "run-name", "default", "Checkpoint namespace for --resume")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&f.allowFallback, "allow-fallback", false, "Keep the seed text, flagged, when a rewrite fails")
	cmd.Flags().StringVar(&f.toolsFile, "tools-file", "", "Tool definitions file (YAML or JSON)")
}

func (f *batchFlags) bindFilters(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.persona, "persona", variants.All, "Persona P1-P5 or all")
	cmd.Flags().StringVar(&f.complexity, "complexity", variants.All, "Complexity Q-, Q, Q+ or all")
}

func (f *batchFlags) bindIterations(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 3, "Maximum iterations per trajectory")
}

// apply overrides configuration with the flags set on the command line.
func (f *batchFlags) apply(cmd *cobra.Command, cfg AppConfig) AppConfig {
	changed := cmd.Flags().Changed
	if changed("workers") {
		cfg.Batch.Workers = f.workers
	}
	if changed("run-name") {
		cfg.Batch.RunName = f.runName
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("allow-fallback") {
		cfg.Rewrite.AllowFallback = f.allowFallback
	}
	if changed("max-iterations") {
		cfg.Trajectory.MaxIterations = f.maxIterations
	}
	if changed("tools-file") {
		cfg.Trajectory.ToolsFile = f.toolsFile
	}
	return cfg
}

func (f *batchFlags) batchConfig(cfg AppConfig) batch.Config {
	return batch.Config{
		Workers:                cfg.Batch.Workers,
		MaxConsecutiveFailures: cfg.Batch.MaxConsecutiveFailures,
		MaxIterations:          cfg.Trajectory.MaxIterations,
		RunName:                cfg.Batch.RunName,
		Resume:                 f.resume,
	}
}

var errResetWithResume = errors.New("--reset-checkpoint cannot be combined with --resume")

func (f *batchFlags) validate() error {
	if f.reset && f.resume {
		return errResetWithResume
	}
	return nil
}

// driver builds the batch driver, clearing the run's checkpoint first when
// --reset-checkpoint is set.
func (f *batchFlags) driver(ctx context.Context, a *app, cfg AppConfig) (*batch.Driver, error) {
	d := a.driver(f.batchConfig(cfg))
	if f.reset {
		if err := d.ResetCheckpoint(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (f *batchFlags) filters() variants.Filters {
	return variants.Filters{Persona: f.persona, Complexity: f.complexity}
}

func newTransformCmd(s *session, opts Options) *cobra.Command {
	f := &batchFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "transform <seeds-file>",
		Short: "Expand seed queries into persona x complexity x tool data variants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := f.apply(cmd, s.cfg)

			seeds, jobs, factor, err := expand(args[0], f.filters())
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := batch.Preflight(ctx, a.text); err != nil {
				return err
			}

			out, err := batch.CreateJSONL[model.RewrittenQuery](output, f.resume)
			if err != nil {
				return err
			}
			defer out.Close()
			stop := a.serveMetrics(ctx, cfg.MetricsAddr)
			defer stop()

			d, err := f.driver(ctx, a, cfg)
			if err != nil {
				return err
			}
			rep, err := d.Transform(ctx, jobs, out)
			return finish(cmd, a, rep, len(seeds), factor, err, output)
		},
	}
	f.bindCommon(cmd)
	f.bindFilters(cmd)
	cmd.Flags().StringVar(&output, "output", filepath.Join("samples", transformedFile), "Output JSONL path")
	return cmd
}

func newGenerateCmd(s *session, opts Options) *cobra.Command {
	f := &batchFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "generate <transformed-queries-file>",
		Short: "Generate decision trajectories from transformed queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := f.apply(cmd, s.cfg)

			queries, err := batch.LoadRewritten(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := batch.Preflight(ctx, a.text); err != nil {
				return err
			}

			out, err := batch.CreateJSONL[model.TrainingRecord](output, f.resume)
			if err != nil {
				return err
			}
			defer out.Close()
			stop := a.serveMetrics(ctx, cfg.MetricsAddr)
			defer stop()

			d, err := f.driver(ctx, a, cfg)
			if err != nil {
				return err
			}
			rep, err := d.Generate(ctx, queries, out)
			return finish(cmd, a, rep, 0, 0, err, output)
		},
	}
	f.bindCommon(cmd)
	f.bindIterations(cmd)
	cmd.Flags().StringVar(&output, "output", filepath.Join("samples", trajectoriesFile), "Output JSONL path")
	return cmd
}

func newPipelineCmd(s *session, opts Options) *cobra.Command {
	f := &batchFlags{}
	var outputDir string
	cmd := &cobra.Command{
		Use:   "pipeline <seeds-file>",
		Short: "Transform seeds and generate trajectories in one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := f.apply(cmd, s.cfg)

			seeds, jobs, factor, err := expand(args[0], f.filters())
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := batch.Preflight(ctx, a.text); err != nil {
				return err
			}

			queries, err := batch.CreateJSONL[model.RewrittenQuery](filepath.Join(outputDir, transformedFile), f.resume)
			if err != nil {
				return err
			}
			defer queries.Close()
			records, err := batch.CreateJSONL[model.TrainingRecord](filepath.Join(outputDir, trajectoriesFile), f.resume)
			if err != nil {
				return err
			}
			defer records.Close()
			stop := a.serveMetrics(ctx, cfg.MetricsAddr)
			defer stop()

			d, err := f.driver(ctx, a, cfg)
			if err != nil {
				return err
			}
			rep, err := d.Pipeline(ctx, jobs, queries, records)
			return finish(cmd, a, rep, len(seeds), factor, err, outputDir)
		},
	}
	f.bindCommon(cmd)
	f.bindFilters(cmd)
	f.bindIterations(cmd)
	cmd.Flags().StringVar(&outputDir, "output-dir", "samples", "Directory for transformed_queries.jsonl and trajectories.jsonl")
	return cmd
}

func expand(path string, filters variants.Filters) ([]model.SeedQuery, []variants.Job, int, error) {
	factor, err := variants.ExpansionFactor(filters)
	if err != nil {
		return nil, nil, 0, err
	}
	seeds, err := batch.LoadSeeds(path)
	if err != nil {
		return nil, nil, 0, err
	}
	jobs, err := variants.Expand(seeds, filters)
	if err != nil {
		return nil, nil, 0, err
	}
	return seeds, jobs, factor, nil
}

// finish prints the report and maps the outcome to an exit code.
func finish(cmd *cobra.Command, a *app, rep *batch.Report, seeds, factor int, runErr error, output string) error {
	if rep != nil {
		rep.Seeds = seeds
		rep.ExpansionFactor = factor
		rep.Print(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n\n", output)
	}
	a.logUsage()
	if runErr != nil {
		return &ExitError{Code: 1, Err: runErr}
	}
	if code := rep.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
