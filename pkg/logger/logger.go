package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/trajgen/server/internal/core"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// Level overrides the environment default when non-empty (debug, info, warn, error).
	Level string
	// File, when set, receives a JSON copy of every log line.
	File string
}

func safe(otps ...LoggerOpts) *LoggerOpts {
	if len(otps) == 0 {
		return DefaultLoggerOpts
	}
	return &otps[0]
}

// Init configures the global logger. The returned closer releases the log
// file, if any; it is never nil.
func Init(otps ...LoggerOpts) (io.Closer, error) {
	opts := safe(otps...)

	var out io.Writer = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr })
	level := zerolog.DebugLevel
	if opts.Environment.IsProduction() {
		out = os.Stderr
		level = zerolog.InfoLevel
	}
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nopCloser{}, err
		}
		level = l
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return closer, err
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	ctx := zerolog.New(out).With().Timestamp()
	if !opts.Environment.IsProduction() {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger().Level(level)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// With returns a child logger of the global one, for components that attach
// the same fields to every event.
func With() zerolog.Context {
	return log.Logger.With()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}
