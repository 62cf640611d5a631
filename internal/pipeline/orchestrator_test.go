package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ManifestStore. Artifacts are recorded per stage
// name; saves keep a copy of every manifest version for transition checks.
type memStore struct {
	manifest  *RunManifest
	saves     []RunManifest
	artifacts map[string]bool
}

func newMemStore() *memStore {
	return &memStore{artifacts: make(map[string]bool)}
}

func (s *memStore) LoadManifest(_ context.Context, _ string) (*RunManifest, error) {
	if s.manifest == nil {
		return nil, nil
	}
	cp := *s.manifest
	cp.Stages = append([]StageExecution(nil), s.manifest.Stages...)
	return &cp, nil
}

func (s *memStore) SaveManifest(_ context.Context, m *RunManifest) error {
	cp := *m
	cp.Stages = append([]StageExecution(nil), m.Stages...)
	s.manifest = &cp
	s.saves = append(s.saves, cp)
	return nil
}

func (s *memStore) StageArtifactExists(_ context.Context, _, stage string) (bool, error) {
	return s.artifacts[stage], nil
}

// buildRegistry wires a linear a -> b -> c pipeline whose stages record
// their execution order and mark their artifact in the store.
func buildRegistry(t *testing.T, store *memStore, ran *[]string, failAt string) *Registry {
	t.Helper()
	reg := NewRegistry()
	names := []string{"a", "b", "c"}
	for i, name := range names {
		def := StageDefinition{
			Name:     name,
			Produces: name + "_artifact",
			Run: func(name string) func(context.Context) error {
				return func(context.Context) error {
					*ran = append(*ran, name)
					if name == failAt {
						return fmt.Errorf("boom")
					}
					store.artifacts[name] = true
					return nil
				}
			}(name),
		}
		if i > 0 {
			def.Requires = []string{names[i-1]}
		}
		require.NoError(t, reg.Register(def))
	}
	return reg
}

func TestRegistry_RejectsUnregisteredRequirement(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(StageDefinition{Name: "b", Requires: []string{"a"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `requires unregistered stage "a"`)
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(StageDefinition{Name: "a"}))
	err := reg.Register(StageDefinition{Name: "a"})
	assert.Error(t, err)
}

func TestRun_ExecutesStagesInOrder(t *testing.T) {
	store := newMemStore()
	var ran []string
	reg := buildRegistry(t, store, &ran, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	m, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, 1, m.Version)
	for _, exec := range m.Stages {
		assert.Equal(t, StatusSucceeded, exec.Status)
		assert.NotNil(t, exec.StartedAt)
		assert.NotNil(t, exec.FinishedAt)
	}
}

func TestRun_PersistsManifestOnEveryTransition(t *testing.T) {
	store := newMemStore()
	var ran []string
	reg := buildRegistry(t, store, &ran, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	_, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.NoError(t, err)

	// Initial save, then running + succeeded per stage.
	require.Len(t, store.saves, 7)
	assert.Equal(t, StatusPending, store.saves[0].Stages[0].Status)
	assert.Equal(t, StatusRunning, store.saves[1].Stages[0].Status)
	assert.Equal(t, StatusSucceeded, store.saves[2].Stages[0].Status)
	assert.Equal(t, StatusRunning, store.saves[3].Stages[1].Status)
}

func TestRun_FailureHaltsAndRecordsError(t *testing.T) {
	store := newMemStore()
	var ran []string
	reg := buildRegistry(t, store, &ran, "b")
	orch := NewOrchestrator(reg, store, io.Discard)

	m, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "b", stageErr.Stage)

	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, StatusSucceeded, m.Stages[0].Status)
	assert.Equal(t, StatusFailed, m.Stages[1].Status)
	assert.Equal(t, "boom", m.Stages[1].Error)
	// The stage after the failure never starts.
	assert.Equal(t, StatusPending, m.Stages[2].Status)
	// The failed manifest is what was last persisted.
	assert.Equal(t, StatusFailed, store.manifest.Stages[1].Status)
}

func TestRun_StopAfterBoundsTheRun(t *testing.T) {
	store := newMemStore()
	var ran []string
	reg := buildRegistry(t, store, &ran, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	m, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1", StopAfter: "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, StatusPending, m.Execution("c").Status)
}

func TestRun_StartFromSkipsEarlierStages(t *testing.T) {
	store := newMemStore()
	store.artifacts["a"] = true
	store.artifacts["b"] = true
	var ran []string
	reg := buildRegistry(t, store, &ran, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	m, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1", StartFrom: "c"})
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, ran)
	assert.Equal(t, StatusSkipped, m.Execution("a").Status)
	assert.Equal(t, StatusSkipped, m.Execution("b").Status)
	assert.Equal(t, StatusSucceeded, m.Execution("c").Status)
}

func TestRun_StartFromWithoutPriorArtifactFails(t *testing.T) {
	store := newMemStore()
	store.artifacts["a"] = true
	// b's artifact was never produced.
	var ran []string
	reg := buildRegistry(t, store, &ran, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	prior := NewRunManifest("g1", 1, reg.Names())
	require.NoError(t, store.SaveManifest(context.Background(), prior))
	priorSaves := len(store.saves)

	_, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1", StartFrom: "c"})
	require.Error(t, err)

	var missing *MissingPrerequisiteError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "b", missing.Stage)
	assert.Equal(t, "b_artifact", missing.Artifact)

	assert.Empty(t, ran)
	// The prior manifest was not overwritten.
	assert.Len(t, store.saves, priorSaves)
	assert.Equal(t, 1, store.manifest.Version)
}

func TestRun_ResumeCarriesOverPriorSuccesses(t *testing.T) {
	store := newMemStore()
	var firstRan []string
	reg := buildRegistry(t, store, &firstRan, "b")
	orch := NewOrchestrator(reg, store, io.Discard)

	_, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.Error(t, err)
	require.Equal(t, []string{"a", "b"}, firstRan)

	// Second run: a is carried over, b and c run.
	var secondRan []string
	reg2 := buildRegistry(t, store, &secondRan, "")
	orch2 := NewOrchestrator(reg2, store, io.Discard)

	m, err := orch2.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, secondRan)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, StatusSucceeded, m.Execution("a").Status)
}

func TestRun_FullyCompleteRunIsIdempotent(t *testing.T) {
	store := newMemStore()
	var firstRan []string
	reg := buildRegistry(t, store, &firstRan, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	first, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.NoError(t, err)

	var secondRan []string
	reg2 := buildRegistry(t, store, &secondRan, "")
	orch2 := NewOrchestrator(reg2, store, io.Discard)

	second, err := orch2.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.NoError(t, err)

	assert.Empty(t, secondRan)
	// Carried stages keep their original execution records.
	for i := range first.Stages {
		assert.Equal(t, first.Stages[i].Status, second.Stages[i].Status)
		assert.Equal(t, first.Stages[i].StartedAt, second.Stages[i].StartedAt)
		assert.Equal(t, first.Stages[i].FinishedAt, second.Stages[i].FinishedAt)
	}
}

func TestRun_ExplicitStartFromReRunsSucceededStage(t *testing.T) {
	store := newMemStore()
	var firstRan []string
	reg := buildRegistry(t, store, &firstRan, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	_, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1"})
	require.NoError(t, err)

	var secondRan []string
	reg2 := buildRegistry(t, store, &secondRan, "")
	orch2 := NewOrchestrator(reg2, store, io.Discard)

	m, err := orch2.Run(context.Background(), RunRequest{GuidelineID: "g1", StartFrom: "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, secondRan)
	assert.Equal(t, StatusSkipped, m.Execution("a").Status)
}

func TestRun_InvalidBounds(t *testing.T) {
	store := newMemStore()
	var ran []string
	reg := buildRegistry(t, store, &ran, "")
	orch := NewOrchestrator(reg, store, io.Discard)

	_, err := orch.Run(context.Background(), RunRequest{GuidelineID: "g1", StartFrom: "nope"})
	assert.Error(t, err)

	_, err = orch.Run(context.Background(), RunRequest{GuidelineID: "g1", StartFrom: "c", StopAfter: "a"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "comes after")

	assert.Empty(t, ran)
}

func TestManifest_Satisfied(t *testing.T) {
	m := NewRunManifest("g1", 1, []string{"a", "b"})
	assert.False(t, m.Satisfied("a"))

	m.Stages[0].Status = StatusSucceeded
	assert.True(t, m.Satisfied("a"))

	m.Stages[1].Status = StatusSkipped
	assert.True(t, m.Satisfied("b"))

	assert.False(t, m.Satisfied("unknown"))
}
