package compliance

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind string

const (
	KindInvalidMetricInput   Kind = "InvalidMetricInput"
	KindOrphanRecord         Kind = "OrphanRecord"
	KindWeatherUnavailable   Kind = "WeatherUnavailable"
	KindNarrativeUnavailable Kind = "NarrativeUnavailable"
	KindScoreBoundsViolation Kind = "ScoreBoundsViolation"
	KindTimeout              Kind = "Timeout"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrInvalidMetricInput   = &Error{Kind: KindInvalidMetricInput}
	ErrOrphanRecord         = &Error{Kind: KindOrphanRecord}
	ErrWeatherUnavailable   = &Error{Kind: KindWeatherUnavailable}
	ErrNarrativeUnavailable = &Error{Kind: KindNarrativeUnavailable}
	ErrScoreBoundsViolation = &Error{Kind: KindScoreBoundsViolation}
	ErrTimeout              = &Error{Kind: KindTimeout}
)

// Error is an engine failure tagged with its kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewError tags err with kind for callers outside the engine.
func NewError(kind Kind, op string, err error) error {
	return newError(kind, op, err)
}

// KindOf returns the kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// collaboratorError maps a failed external call to a kind. Deadline overruns
// get their own kind; everything else becomes fallback.
func collaboratorError(ctx context.Context, op string, fallback Kind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, op, err)
	}
	return newError(fallback, op, err)
}
