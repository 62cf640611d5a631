// Package pipeline provides the stage registry, the persisted run manifest,
// and the orchestrator that drives a guideline through the extraction
// pipeline in dependency order.
package pipeline

import (
	"context"
	"fmt"
)

// StageDefinition declares one pipeline stage: its unique name, the stages
// that must have completed before it, the artifact kind it produces, and the
// function that drives its external capability. Definitions are registered
// once at process start and never mutated.
type StageDefinition struct {
	Name     string
	Requires []string
	Produces string
	Run      func(ctx context.Context) error
}

// Registry holds stage definitions in registration order. Registration
// order is execution order; Register rejects a stage whose requirements are
// not already registered, so the order is always a valid topological one.
type Registry struct {
	stages []StageDefinition
	byName map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Register appends a stage definition.
func (r *Registry) Register(def StageDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("stage name is empty")
	}
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("stage %q already registered", def.Name)
	}
	for _, req := range def.Requires {
		if _, ok := r.byName[req]; !ok {
			return fmt.Errorf("stage %q requires unregistered stage %q", def.Name, req)
		}
	}
	r.byName[def.Name] = len(r.stages)
	r.stages = append(r.stages, def)
	return nil
}

// MustRegister is Register for static stage sets, panicking on a bad
// definition.
func (r *Registry) MustRegister(def StageDefinition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Stages returns the definitions in registration order.
func (r *Registry) Stages() []StageDefinition {
	return r.stages
}

// Names returns the stage names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Name
	}
	return names
}

// Index returns the position of a stage, or an error if it is unknown.
func (r *Registry) Index(name string) (int, error) {
	i, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown stage %q (known stages: %v)", name, r.Names())
	}
	return i, nil
}
