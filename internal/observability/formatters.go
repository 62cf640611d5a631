// Package observability provides formatted output utilities for verbose
// CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"guidegraph/internal/batch"
	"guidegraph/internal/pipeline"
	"guidegraph/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintManifest outputs the per-stage status of a run manifest.
func (p *Printer) PrintManifest(m *pipeline.RunManifest) {
	var sb strings.Builder
	for _, exec := range m.Stages {
		line := fmt.Sprintf("%-18s %s", exec.Stage, exec.Status)
		if exec.Error != "" {
			line += " (" + exec.Error + ")"
		}
		sb.WriteString(line + "\n")
	}
	p.printBox(fmt.Sprintf("Run %s (v%d)", m.RunID, m.Version), strings.TrimRight(sb.String(), "\n"))
}

// PrintBatchSummary outputs the outcome counts for one batched stage.
func (p *Printer) PrintBatchSummary(stage string, s *batch.Summary) {
	content := fmt.Sprintf("done: %d\nfailed: %d\nskipped from checkpoint: %d",
		s.Done, s.Failed, s.SkippedFromCheckpoint)
	if len(s.FailedItemIDs) > 0 {
		shown := s.FailedItemIDs
		if len(shown) > maxItemsToShow {
			shown = shown[:maxItemsToShow]
		}
		content += "\nfailed items: " + strings.Join(shown, ", ")
		if len(s.FailedItemIDs) > maxItemsToShow {
			content += fmt.Sprintf(" (+%d more)", len(s.FailedItemIDs)-maxItemsToShow)
		}
	}
	p.printBox(fmt.Sprintf("Batch: %s", stage), content)
}

// PrintLinkSet outputs accepted and needs_review link counts with a sample.
func (p *Printer) PrintLinkSet(set types.LinkSet) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("accepted: %d\nneeds review: %d", len(set.Accepted), len(set.NeedsReview)))
	for i, link := range set.Accepted {
		if i >= maxItemsToShow {
			sb.WriteString(fmt.Sprintf("\n(+%d more)", len(set.Accepted)-maxItemsToShow))
			break
		}
		sb.WriteString(fmt.Sprintf("\n%s -[%s]-> %s (%.2f)",
			link.FromID, link.RelationType, link.ToID, link.Confidence))
	}
	p.printBox("Inferred links", sb.String())
}
