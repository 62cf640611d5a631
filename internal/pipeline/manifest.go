package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus is the lifecycle state of one stage within a run.
type StageStatus string

// Stage statuses.
const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// StageExecution records one stage's progress within a run.
type StageExecution struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// RunManifest is the persisted record of a pipeline run. It is an explicit
// value passed into and returned from every orchestrator step — never
// process-global state — so any process can resume a run started by another.
// Stages appear in registry order.
type RunManifest struct {
	GuidelineID string           `json:"guideline_id"`
	RunID       string           `json:"run_id"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	Stages      []StageExecution `json:"stages"`
}

// NewRunManifest builds a fresh manifest with every stage pending. version
// increments across runs of the same guideline.
func NewRunManifest(guidelineID string, version int, stageNames []string) *RunManifest {
	stages := make([]StageExecution, len(stageNames))
	for i, name := range stageNames {
		stages[i] = StageExecution{Stage: name, Status: StatusPending}
	}
	return &RunManifest{
		GuidelineID: guidelineID,
		RunID:       uuid.NewString(),
		Version:     version,
		CreatedAt:   time.Now().UTC(),
		Stages:      stages,
	}
}

// Execution returns the entry for a stage, or nil if the manifest predates
// the stage's registration.
func (m *RunManifest) Execution(stage string) *StageExecution {
	for i := range m.Stages {
		if m.Stages[i].Stage == stage {
			return &m.Stages[i]
		}
	}
	return nil
}

// Satisfied reports whether a stage counts as complete for dependency
// purposes: it either succeeded in this run or was skipped over a prior
// run's artifacts.
func (m *RunManifest) Satisfied(stage string) bool {
	exec := m.Execution(stage)
	if exec == nil {
		return false
	}
	return exec.Status == StatusSucceeded || exec.Status == StatusSkipped
}
