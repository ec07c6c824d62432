package errx

import (
	"errors"
	"fmt"
)

// Kind classifies failures by how the batch driver must react to them.
type Kind string

const (
	// KindInvalidFilter rejects a persona or complexity filter; fatal to the
	// enumeration call only.
	KindInvalidFilter Kind = "invalid_filter"
	// KindRewriteFailure means the text service was exhausted while rewriting;
	// the variant is skipped and the batch continues.
	KindRewriteFailure Kind = "rewrite_failure"
	// KindTrajectoryAborted means rationale generation failed mid-trajectory;
	// the whole trajectory is discarded.
	KindTrajectoryAborted Kind = "trajectory_aborted"
	// KindToolInconsistency is a logic defect: a synthetic tool outcome that
	// contradicts the variant's tool data mode.
	KindToolInconsistency Kind = "tool_simulation_inconsistency"
	// KindServiceUnavailable is fatal to the whole run.
	KindServiceUnavailable Kind = "service_unavailable"
	// KindStorage wraps cache/checkpoint backend failures.
	KindStorage Kind = "storage"
)

const (
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
)

// Sentinels for errors.Is matching on Kind alone.
var (
	ErrInvalidFilter      = &Error{Kind: KindInvalidFilter}
	ErrRewriteFailure     = &Error{Kind: KindRewriteFailure}
	ErrTrajectoryAborted  = &Error{Kind: KindTrajectoryAborted}
	ErrToolInconsistency  = &Error{Kind: KindToolInconsistency}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
	ErrStorage            = &Error{Kind: KindStorage}
)

// Error wraps an underlying error with a Kind and a safe message.
type Error struct {
	Kind    Kind
	Err     error
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same Kind, or matches
// the underlying error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok && t.Err == nil && t.Message == "" {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

// New creates a new Error with the provided information.
func New(kind Kind, err error, message string) *Error {
	return &Error{
		Kind:    kind,
		Err:     err,
		Message: message,
	}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// InvalidFilter reports an enumeration filter value outside its enum.
func InvalidFilter(field, value string) error {
	return New(KindInvalidFilter, nil, fmt.Sprintf("invalid %s filter %q", field, value))
}

// RewriteFailure reports an exhausted rewrite for one variant.
func RewriteFailure(variant string, err error) error {
	return New(KindRewriteFailure, err, "rewrite failed for variant "+variant)
}

// TrajectoryAborted reports a trajectory discarded before completion.
func TrajectoryAborted(trajectoryID string, iteration int, err error) error {
	return New(KindTrajectoryAborted, err, fmt.Sprintf("trajectory %s aborted at iteration %d", trajectoryID, iteration))
}

// ToolInconsistency reports a synthetic outcome that contradicts its mode.
func ToolInconsistency(format string, args ...any) error {
	return New(KindToolInconsistency, nil, fmt.Sprintf(format, args...))
}

// ServiceUnavailable reports that the text service cannot be used at all.
func ServiceUnavailable(err error) error {
	return New(KindServiceUnavailable, err, "text service unavailable")
}
