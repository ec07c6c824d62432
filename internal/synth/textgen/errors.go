package textgen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/genai"
)

// ErrEmptyCompletion is returned when the service answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// classified tags a backend error with whether another attempt can help.
type classified struct {
	err   error
	retry bool
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// NewTransientError marks err as worth another attempt.
func NewTransientError(err error) error {
	return &classified{err: err, retry: true}
}

// NewPermanentError marks err as final for this request.
func NewPermanentError(err error) error {
	return &classified{err: err}
}

// ExhaustedError reports a request whose every attempt failed transiently.
// Err is the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("text service exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func classOf(err error) (*classified, bool) {
	var c *classified
	ok := errors.As(err, &c)
	return c, ok
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	c, ok := classOf(err)
	return ok && c.retry
}

// IsPermanent reports whether err was marked final.
func IsPermanent(err error) bool {
	c, ok := classOf(err)
	return ok && !c.retry
}

// IsExhausted reports whether retries ran out.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// IsUnusable reports errors that no amount of retrying will fix for the whole
// run: bad credentials or an unknown model.
func IsUnusable(err error) bool {
	code, ok := StatusCode(err)
	if !ok {
		return false
	}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// StatusCode extracts the HTTP status carried by a Gemini API error.
func StatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

// Classify wraps err as transient or permanent. Already classified errors and
// cancellation of the parent context are returned unchanged.
func Classify(err error) error {
	if err == nil || IsTransient(err) || IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyCompletion) {
		return NewTransientError(err)
	}
	if code, ok := StatusCode(err); ok {
		return classifyStatus(code, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(err)
	}
	return NewPermanentError(err)
}

func classifyStatus(code int, err error) error {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return NewTransientError(err)
	case code >= 500:
		return NewTransientError(err)
	default:
		return NewPermanentError(err)
	}
}
