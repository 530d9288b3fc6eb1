package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure a component reports wraps exactly one of these.
var (
	ErrInput      = errors.New("input validation error")
	ErrReference  = errors.New("reference resolution error")
	ErrCheckpoint = errors.New("checkpoint error")
	ErrSynthesis  = errors.New("synthesis error")
	ErrPublish    = errors.New("publish error")
)

// Stage labels used for metrics and logs.
const (
	StageInput      = "input"
	StageReference  = "reference"
	StageCheckpoint = "checkpoint"
	StageSynthesis  = "synthesis"
	StagePublish    = "publish"
	StageUnexpected = "unexpected"
)

// Failure is an error whose Error text is the message reported back to the job caller.
type Failure struct {
	Kind    error
	Message string
	Err     error
}

// Fail builds a Failure of the given kind with a formatted caller-facing message.
// cause may be nil.
func Fail(kind, cause error, format string, args ...any) *Failure {
	return &Failure{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

func (f *Failure) Error() string {
	return f.Message
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause to errors.Is/As.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}

	return []error{f.Kind, f.Err}
}

// Stage maps an error to its stage label.
func Stage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return StageInput
	case errors.Is(err, ErrReference):
		return StageReference
	case errors.Is(err, ErrCheckpoint):
		return StageCheckpoint
	case errors.Is(err, ErrSynthesis):
		return StageSynthesis
	case errors.Is(err, ErrPublish):
		return StagePublish
	default:
		return StageUnexpected
	}
}
