package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned for absent or whitespace-only text, before any
// synthesis is attempted.
var ErrEmptyInput = errors.New("input text is empty")

// Stage names a step of the pipeline.
type Stage string

// Pipeline stages, in order.
const (
	StageInput      Stage = "input"
	StageSynthesize Stage = "synthesize"
	StageProbe      Stage = "probe"
	StageAssemble   Stage = "assemble"
	StageTOC        Stage = "toc"
)

// StageError identifies the stage that failed a run.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
