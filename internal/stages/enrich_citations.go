package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"guidegraph/internal/batch"
	"guidegraph/internal/enrich"
	"guidegraph/internal/types"
)

// runEnrichCitations resolves each extracted study against the
// bibliographic service. An unmatched citation is a recorded "unresolved"
// resolution, not a failure; only transport errors count against the batch.
func (d *Deps) runEnrichCitations(ctx context.Context) error {
	var studies []types.ExtractedEntity
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageExtractStudies, &studies); err != nil {
		return err
	}
	if len(studies) == 0 {
		return d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageEnrichCitations, []enrich.Resolution{})
	}

	inputs := make([]string, len(studies))
	for i, study := range studies {
		inputs[i] = study.Attr("citation")
	}

	summary, batchErr := d.processor(StageEnrichCitations).Run(ctx, inputs, d.resolveCitation)
	if summary == nil {
		return batchErr
	}

	resolutions := make([]enrich.Resolution, 0, len(studies))
	resolved := 0
	for i := range studies {
		itemID := batch.ItemID(StageEnrichCitations, inputs[i])
		payload, ok := summary.Results[itemID]
		if !ok {
			// Permanently failed item; surfaced via the review report.
			continue
		}
		var res enrich.Resolution
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			continue
		}
		if res.Status == enrich.StatusResolved {
			resolved++
		}
		resolutions = append(resolutions, res)
	}

	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageEnrichCitations, resolutions); err != nil {
		return err
	}
	if d.Config.Verbose && d.Printer != nil {
		d.Printer.PrintBatchSummary(StageEnrichCitations, summary)
	}

	fmt.Printf("  resolved %d of %d citations (%d unresolved, %d item failures)\n",
		resolved, len(studies), len(resolutions)-resolved, summary.Failed)
	return batchErr
}

// resolveCitation is the per-item work function: works-API lookup with a
// landing-page meta-tag fallback.
func (d *Deps) resolveCitation(ctx context.Context, citation string) batch.Outcome {
	res := enrich.Resolution{Citation: citation, Status: enrich.StatusUnresolved}

	doi, err := d.Resolver.Resolve(ctx, citation)
	switch {
	case err == nil:
		md, ferr := d.Resolver.Fetch(ctx, doi)
		if ferr != nil {
			if enrich.Transient(ferr) {
				return batch.Retryable(ferr.Error())
			}
			// A DOI that resolves but has no record stays unresolved.
		} else {
			res.Status = enrich.StatusResolved
			res.DOI = doi
			res.Metadata = md
		}
	case errors.Is(err, enrich.ErrNotFound):
		if pageURL := enrich.CitationURL(citation); pageURL != "" {
			md, ferr := enrich.FetchLandingMeta(ctx, pageURL)
			if ferr == nil {
				res.Status = enrich.StatusResolved
				res.DOI = md.DOI
				res.Metadata = md
			} else if enrich.Transient(ferr) {
				return batch.Retryable(ferr.Error())
			}
		}
	case enrich.Transient(err):
		return batch.Retryable(err.Error())
	default:
		return batch.Permanent(err.Error())
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return batch.Permanent(fmt.Sprintf("encoding resolution: %v", err))
	}
	return batch.Done(string(payload))
}
