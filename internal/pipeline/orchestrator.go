package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ManifestStore persists run manifests and answers artifact-existence
// checks for resume decisions.
type ManifestStore interface {
	LoadManifest(ctx context.Context, guidelineID string) (*RunManifest, error)
	SaveManifest(ctx context.Context, m *RunManifest) error
	StageArtifactExists(ctx context.Context, guidelineID, stage string) (bool, error)
}

// RunRequest bounds one pipeline invocation. StartFrom and StopAfter are
// inclusive and optional; empty means the full registered sequence.
type RunRequest struct {
	GuidelineID string
	StartFrom   string
	StopAfter   string
}

// Orchestrator walks the stage registry in order, executing each in-range
// stage exactly once and persisting the manifest on every transition.
type Orchestrator struct {
	registry *Registry
	store    ManifestStore
	out      io.Writer
}

// NewOrchestrator builds an orchestrator writing progress to out.
func NewOrchestrator(registry *Registry, store ManifestStore, out io.Writer) *Orchestrator {
	return &Orchestrator{registry: registry, store: store, out: out}
}

// Run executes the requested stage range for one guideline, short-circuiting
// on the first failure. On invocation the prior manifest (if any) is loaded:
// a stage that succeeded in the prior run and is not explicitly re-requested
// is carried over as satisfied. Carried and skipped stages only have their
// artifact's existence asserted — content is trusted as-is, so a manually
// edited artifact is knowingly reused without re-validation.
//
// The returned manifest reflects progress at least as current as the last
// completed stage even when an error is returned.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunManifest, error) {
	stages := o.registry.Stages()
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stages registered")
	}

	startIdx, stopIdx := 0, len(stages)-1
	explicitStart := req.StartFrom != ""
	if explicitStart {
		i, err := o.registry.Index(req.StartFrom)
		if err != nil {
			return nil, fmt.Errorf("invalid --start-from: %w", err)
		}
		startIdx = i
	}
	if req.StopAfter != "" {
		i, err := o.registry.Index(req.StopAfter)
		if err != nil {
			return nil, fmt.Errorf("invalid --stop-after: %w", err)
		}
		stopIdx = i
	}
	if startIdx > stopIdx {
		return nil, fmt.Errorf("--start-from %q comes after --stop-after %q", req.StartFrom, req.StopAfter)
	}

	prior, err := o.store.LoadManifest(ctx, req.GuidelineID)
	if err != nil {
		return nil, err
	}
	version := 1
	if prior != nil {
		version = prior.Version + 1
	}
	m := NewRunManifest(req.GuidelineID, version, o.registry.Names())

	// Mark everything satisfied without running: stages before the start
	// bound, and prior successes that were not explicitly re-requested.
	for i := 0; i <= stopIdx; i++ {
		exec := &m.Stages[i]
		if i < startIdx {
			exec.Status = StatusSkipped
			continue
		}
		if !explicitStart && prior != nil {
			if p := prior.Execution(exec.Stage); p != nil && p.Status == StatusSucceeded {
				*exec = *p
			}
		}
	}

	// Assert the artifacts behind every satisfied stage before running
	// anything, so a bad start point aborts with no side effects. The prior
	// manifest on disk is left untouched in that case.
	for i := 0; i <= stopIdx; i++ {
		exec := m.Stages[i]
		if exec.Status != StatusSkipped && exec.Status != StatusSucceeded {
			continue
		}
		def := stages[i]
		if def.Produces == "" {
			continue
		}
		exists, err := o.store.StageArtifactExists(ctx, req.GuidelineID, def.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, &MissingPrerequisiteError{Stage: def.Name, Artifact: def.Produces}
		}
	}

	if err := o.store.SaveManifest(ctx, m); err != nil {
		return m, err
	}

	total := stopIdx + 1
	for i := 0; i <= stopIdx; i++ {
		def := stages[i]
		exec := &m.Stages[i]

		switch exec.Status {
		case StatusSkipped:
			fmt.Fprintf(o.out, "Stage %d/%d: %s (skipped)\n", i+1, total, def.Name)
			continue
		case StatusSucceeded:
			fmt.Fprintf(o.out, "Stage %d/%d: %s (satisfied by prior run)\n", i+1, total, def.Name)
			continue
		}

		for _, reqStage := range def.Requires {
			if !m.Satisfied(reqStage) {
				exec.Status = StatusFailed
				exec.Error = fmt.Sprintf("requirement %q not satisfied", reqStage)
				if serr := o.store.SaveManifest(ctx, m); serr != nil {
					return m, serr
				}
				return m, &StageError{Stage: def.Name, Err: fmt.Errorf("requirement %q not satisfied", reqStage)}
			}
		}

		started := time.Now().UTC()
		exec.Status = StatusRunning
		exec.StartedAt = &started
		if err := o.store.SaveManifest(ctx, m); err != nil {
			return m, err
		}

		fmt.Fprintf(o.out, "Stage %d/%d: %s...\n", i+1, total, def.Name)
		runErr := def.Run(ctx)
		finished := time.Now().UTC()
		exec.FinishedAt = &finished

		if runErr != nil {
			exec.Status = StatusFailed
			exec.Error = runErr.Error()
			if serr := o.store.SaveManifest(ctx, m); serr != nil {
				return m, serr
			}
			return m, &StageError{Stage: def.Name, Err: runErr}
		}

		exec.Status = StatusSucceeded
		if err := o.store.SaveManifest(ctx, m); err != nil {
			return m, err
		}
	}

	return m, nil
}
