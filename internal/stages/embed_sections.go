package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"guidegraph/internal/batch"
	"guidegraph/internal/types"
)

// embedMarker is the checkpoint result for an embedded section. The vector
// itself lives in the vec table; the checkpoint only records completion.
type embedMarker struct {
	Seq int `json:"seq"`
}

// runEmbedSections builds the semantic section index. Each section is
// embedded and stored once; checkpoint hits skip both the provider call and
// the vector write, which the state store already holds.
func (d *Deps) runEmbedSections(ctx context.Context) error {
	var doc types.Document
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageStructurePDF, &doc); err != nil {
		return err
	}

	inputs := make([]string, len(doc.Sections))
	for i, sec := range doc.Sections {
		payload, err := json.Marshal(sectionInput{
			Seq:  sec.Seq,
			Page: sec.Page,
			Hash: sec.ContentHash,
			Text: sec.Content,
		})
		if err != nil {
			return fmt.Errorf("encoding section %d: %w", sec.Seq, err)
		}
		inputs[i] = string(payload)
	}

	fn := func(ctx context.Context, input string) batch.Outcome {
		var in sectionInput
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return batch.Permanent(fmt.Sprintf("malformed work item: %v", err))
		}
		vec, err := d.Embedder.Embed(ctx, in.Text)
		if err != nil {
			return batch.Retryable(err.Error())
		}
		if err := d.Store.SaveSectionEmbedding(ctx, d.Config.GuidelineID, in.Seq, vec); err != nil {
			return batch.Retryable(err.Error())
		}
		marker, _ := json.Marshal(embedMarker{Seq: in.Seq})
		return batch.Done(string(marker))
	}

	summary, batchErr := d.processor(StageEmbedSections).Run(ctx, inputs, fn)
	if summary == nil {
		return batchErr
	}

	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageEmbedSections,
		map[string]int{"sections_embedded": summary.Done}); err != nil {
		return err
	}
	if d.Config.Verbose && d.Printer != nil {
		d.Printer.PrintBatchSummary(StageEmbedSections, summary)
	}

	fmt.Printf("  embedded %d sections (%d from checkpoint)\n",
		summary.Done, summary.SkippedFromCheckpoint)
	return batchErr
}
