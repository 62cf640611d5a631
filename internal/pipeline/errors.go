package pipeline

import "fmt"

// MissingPrerequisiteError means a skipped or carried-over stage's artifact
// is not present, so a requested start point cannot be honored. It is fatal
// and raised before any in-range stage runs.
type MissingPrerequisiteError struct {
	Stage    string
	Artifact string
}

func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("missing prerequisite artifact %q for stage %q", e.Artifact, e.Stage)
}

// StageError wraps the failure of a single stage with its name, so the CLI
// can surface which stage halted the run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
