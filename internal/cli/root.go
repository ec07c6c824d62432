// Package cli wires configuration, the text service and the batch driver
// into the trajgen commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/trajgen/server/internal/synth/textgen"
	logx "github.com/trajgen/server/pkg/logger"
)

// Options injects dependencies that are otherwise built from configuration.
type Options struct {
	// Backend replaces the Gemini chat backend (single attempt, no retry).
	Backend textgen.Completer
}

// ExitError carries a process exit code. A nil Err means the command already
// reported its outcome.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// session carries per-invocation state from PersistentPreRunE to commands.
type session struct {
	envFile  string
	logLevel string
	logFile  string

	cfg       AppConfig
	logCloser io.Closer
}

func newRootCmd(opts Options) (*cobra.Command, *session) {
	s := &session{}

	cmd := &cobra.Command{
		Use:   "trajgen",
		Short: "Synthetic decision trajectory generator",
		Long: `trajgen expands seed queries into persona and complexity variants,
rewrites them with a text model and generates multi-step CALL/ASK/ANSWER
decision trajectories as JSONL training records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.init()
		},
	}

	cmd.PersistentFlags().StringVar(&s.envFile, "env-file", ".env", "Environment file to load before reading config")
	cmd.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.logFile, "log-file", "", "Also write JSON logs to this file")

	cmd.AddCommand(
		newTransformCmd(s, opts),
		newGenerateCmd(s, opts),
		newPipelineCmd(s, opts),
		newValidateCmd(),
		newStatsCmd(),
	)
	return cmd, s
}

func (s *session) init() error {
	cfg, err := LoadConfig(s.envFile)
	if err != nil {
		return err
	}
	env, err := cfg.environment()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if s.logLevel != "" {
		level = s.logLevel
	}
	file := cfg.LogFile
	if s.logFile != "" {
		file = s.logFile
	}
	closer, err := logx.Init(logx.LoggerOpts{Environment: env, Level: level, File: file})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	s.cfg = cfg
	s.logCloser = closer
	return nil
}

func (s *session) close() {
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	cmd, s := newRootCmd(opts)
	defer s.close()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return 1
}
