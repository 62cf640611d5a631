package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"guidegraph/internal/batch"
	"guidegraph/internal/llm"
	"guidegraph/internal/types"
)

// sectionInput is the serialized work-item input for one section. Item ids
// are derived from this serialization, so its field set is part of the
// checkpoint contract.
type sectionInput struct {
	Seq  int    `json:"seq"`
	Page int    `json:"page"`
	Hash string `json:"hash"`
	Text string `json:"text"`
}

// Identifier patterns lifted verbatim from guideline text so exact-key
// matching has something to key on.
var (
	reDOI  = regexp.MustCompile(`\b10\.\d{4,9}/[^\s"<>]+`)
	rePMID = regexp.MustCompile(`(?i)\bPMID:?\s*(\d{6,9})\b`)
)

// identifierAttrs adds doi/pmid attributes when the identifiers literally
// appear in the text.
func identifierAttrs(text string, attrs map[string]string) {
	if doi := reDOI.FindString(text); doi != "" && attrs["doi"] == "" {
		attrs["doi"] = strings.TrimRight(doi, ".,;")
	}
	if m := rePMID.FindStringSubmatch(text); m != nil && attrs["pmid"] == "" {
		attrs["pmid"] = m[1]
	}
}

// extractFromSections runs one LLM extraction schema over a set of sections
// through the checkpointed batch processor. It returns the validated
// payload per section seq for every done item, alongside the batch summary.
// The returned error is the batch-level verdict (failure rate, checkpoint
// I/O, cancellation); individual item failures are absorbed into the
// summary.
func (d *Deps) extractFromSections(ctx context.Context, stage string, schema llm.ExtractionSchema, sections []types.Section) (map[int]string, *batch.Summary, error) {
	inputs := make([]string, len(sections))
	for i, sec := range sections {
		payload, err := json.Marshal(sectionInput{
			Seq:  sec.Seq,
			Page: sec.Page,
			Hash: sec.ContentHash,
			Text: sec.Content,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("encoding section %d: %w", sec.Seq, err)
		}
		inputs[i] = string(payload)
	}

	fn := func(ctx context.Context, input string) batch.Outcome {
		var in sectionInput
		if err := json.Unmarshal([]byte(input), &in); err != nil {
			return batch.Permanent(fmt.Sprintf("malformed work item: %v", err))
		}
		out, err := d.LLM.GenerateJSON(ctx, schema.BuildPrompt(in.Text), llm.TierLite)
		if err != nil {
			if llm.Transient(err) {
				return batch.Retryable(err.Error())
			}
			return batch.Permanent(err.Error())
		}
		if err := schema.Validate(out); err != nil {
			return batch.Permanent(err.Error())
		}
		return batch.Done(out)
	}

	summary, err := d.processor(stage).Run(ctx, inputs, fn)
	if summary == nil {
		return nil, nil, err
	}

	bySeq := make(map[int]string, len(summary.Results))
	for i, sec := range sections {
		if payload, ok := summary.Results[batch.ItemID(stage, inputs[i])]; ok {
			bySeq[sec.Seq] = payload
		}
	}
	if d.Config.Verbose && d.Printer != nil {
		d.Printer.PrintBatchSummary(stage, summary)
	}
	return bySeq, summary, err
}
