package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the part of a cycle an error came from.
type Stage string

const (
	StageProgress Stage = "progress"
	StageFetch    Stage = "fetch"
	StageJoin     Stage = "join"
	StageCompute  Stage = "compute"
	StageWrite    Stage = "write"
)

// ErrFetchTimeout matches fetches that ran past their per-call timeout.
var ErrFetchTimeout = errors.New("fetch timed out")

// ErrPanic wraps a panic recovered inside a cycle.
var ErrPanic = errors.New("cycle panicked")

// StageError is a cycle failure tagged with its pipeline and stage.
type StageError struct {
	Pipeline string
	Stage    Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(pipeline string, stage Stage, err error) error {
	return &StageError{Pipeline: pipeline, Stage: stage, Err: err}
}

// stageOf maps the state a cycle was in to the stage label of its failure.
func stageOf(s State) Stage {
	switch s {
	case StateJoining:
		return StageJoin
	case StateComputing:
		return StageCompute
	case StateWriting:
		return StageWrite
	case StateIdle:
		return StageProgress
	default:
		return StageFetch
	}
}
