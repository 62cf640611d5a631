// Package report writes the manual-review artifacts: permanently failed
// work items, unresolved citations, and links held below the acceptance
// threshold. The report is an output contract — it is produced on every
// run, including fully successful ones.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"guidegraph/internal/embedding"
	"guidegraph/internal/enrich"
	"guidegraph/internal/state"
	"guidegraph/internal/types"
)

// FailedItem is one permanently failed work item awaiting human attention.
type FailedItem struct {
	ItemID   string `json:"item_id"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// ReviewLink is a needs_review link annotated with the sections most
// similar to its evidence, so a reviewer can find the source text quickly.
type ReviewLink struct {
	types.InferredLink
	NearestSections []state.SectionHint `json:"nearest_sections,omitempty"`
}

// ReviewReport is the JSON document written for the operator.
type ReviewReport struct {
	GuidelineID         string       `json:"guideline_id"`
	RunID               string       `json:"run_id"`
	GeneratedAt         time.Time    `json:"generated_at"`
	FailedItems         []FailedItem `json:"failed_items"`
	UnresolvedCitations []string     `json:"unresolved_citations"`
	LinksForReview      []ReviewLink `json:"links_for_review"`
}

// Generator assembles review reports from the workspace state.
type Generator struct {
	store    *state.Store
	embedder embedding.Provider
}

// NewGenerator builds a Generator. embedder may be nil to skip section
// hints.
func NewGenerator(store *state.Store, embedder embedding.Provider) *Generator {
	return &Generator{store: store, embedder: embedder}
}

// Generate builds the report for one run.
func (g *Generator) Generate(ctx context.Context, guidelineID, runID string, links types.LinkSet, resolutions []enrich.Resolution) (*ReviewReport, error) {
	r := &ReviewReport{
		GuidelineID:         guidelineID,
		RunID:               runID,
		GeneratedAt:         time.Now().UTC(),
		FailedItems:         []FailedItem{},
		UnresolvedCitations: []string{},
		LinksForReview:      []ReviewLink{},
	}

	failed, err := g.store.FailedCheckpoints(ctx, guidelineID)
	if err != nil {
		return nil, err
	}
	for _, cp := range failed {
		r.FailedItems = append(r.FailedItems, FailedItem{
			ItemID:   cp.ItemID,
			Stage:    cp.Stage,
			Error:    cp.Error,
			Attempts: cp.Attempts,
		})
	}

	for _, res := range resolutions {
		if res.Status == enrich.StatusUnresolved {
			r.UnresolvedCitations = append(r.UnresolvedCitations, res.Citation)
		}
	}

	for _, link := range links.NeedsReview {
		rl := ReviewLink{InferredLink: link}
		if g.embedder != nil {
			if vec, err := g.embedder.Embed(ctx, link.Evidence); err == nil {
				if hints, err := g.store.SimilarSections(ctx, guidelineID, vec, 3); err == nil {
					rl.NearestSections = hints
				}
			}
		}
		r.LinksForReview = append(r.LinksForReview, rl)
	}

	return r, nil
}

// Write persists the report as JSON plus a short text summary, returning
// the JSON path.
func Write(dir string, r *ReviewReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	jsonPath := filepath.Join(dir, fmt.Sprintf("review_%s.json", r.RunID))
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding review report: %w", err)
	}
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return "", fmt.Errorf("writing review report: %w", err)
	}

	summary := fmt.Sprintf(
		"Review report for %s (run %s)\n\nFailed items:        %d\nUnresolved citations: %d\nLinks needing review: %d\n\nDetails: %s\n",
		r.GuidelineID, r.RunID, len(r.FailedItems), len(r.UnresolvedCitations), len(r.LinksForReview), jsonPath)
	summaryPath := filepath.Join(dir, fmt.Sprintf("review_%s.txt", r.RunID))
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("writing review summary: %w", err)
	}
	return jsonPath, nil
}
