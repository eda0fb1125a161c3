package pipeline

import "fmt"

// Stage names the step of per-image processing that failed
type Stage string

const (
	StageLoad  Stage = "load"
	StageInfer Stage = "infer"
	StageCrop  Stage = "crop"
	StageWrite Stage = "write"
	StageCopy  Stage = "copy"
)

// StageError is a per-image failure tagged with its stage and source file
type StageError struct {
	Stage Stage
	Image string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Image, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Failure records one failed image, or one detection that could not be
// cropped, in the run counters
type Failure struct {
	Image string
	Stage Stage
	Err   error
}
