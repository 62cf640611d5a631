package stages

import (
	"context"
	"fmt"

	"guidegraph/internal/enrich"
	"guidegraph/internal/infer"
	"guidegraph/internal/types"
)

// structuralWindow caps how many sections apart two entities may be for the
// proximity strategy to propose a link.
const structuralWindow = 2

// runInferLinks links the extracted entity sets per configured relation
// type and partitions the output into accepted and needs_review links.
func (d *Deps) runInferLinks(ctx context.Context) error {
	var entities, studies []types.ExtractedEntity
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageExtractEntities, &entities); err != nil {
		return err
	}
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageExtractStudies, &studies); err != nil {
		return err
	}
	var resolutions []enrich.Resolution
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageEnrichCitations, &resolutions); err != nil {
		return err
	}

	byType := map[string][]types.ExtractedEntity{}
	for _, e := range entities {
		byType[e.Type] = append(byType[e.Type], e)
	}
	// Matching views only: the persisted study entities stay immutable, but
	// the matcher sees resolved titles and canonical DOIs.
	studyViews := enrichedStudyViews(studies, resolutions)

	var links []types.InferredLink
	for _, relation := range d.Config.Inference.Relations {
		var from, to []types.ExtractedEntity
		var fromAttrs, toAttrs []string

		switch relation {
		case types.RelRecommends:
			from, to = byType[types.EntityRecommendation], byType[types.EntityIntervention]
			fromAttrs, toAttrs = []string{"text"}, []string{"name"}
		case types.RelTreats:
			from, to = byType[types.EntityIntervention], byType[types.EntityCondition]
			fromAttrs, toAttrs = []string{"name"}, []string{"name"}
		case types.RelCites:
			from, to = byType[types.EntityRecommendation], studyViews
			fromAttrs, toAttrs = []string{"text"}, []string{"title", "citation"}
		case types.RelSupportedBy:
			from, to = byType[types.EntityIntervention], studyViews
			fromAttrs, toAttrs = []string{"name"}, []string{"title", "citation"}
		default:
			return fmt.Errorf("unknown relation type %q", relation)
		}

		engine := infer.NewEngine(
			[]infer.Strategy{
				infer.ExactKey{Keys: []string{"doi", "pmid"}},
				infer.TokenOverlap{
					Threshold: d.Config.Inference.FuzzyThreshold,
					FromAttrs: fromAttrs,
					ToAttrs:   toAttrs,
				},
				infer.StructuralProximity{MaxDistance: structuralWindow},
			},
			d.Config.Inference.AcceptThreshold,
			d.Config.Inference.ReviewFloor,
		)
		links = append(links, engine.Infer(relation, from, to)...)
	}

	set := infer.Partition(d.Config.GuidelineID, links)
	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageInferLinks, set); err != nil {
		return err
	}
	if d.Config.Verbose && d.Printer != nil {
		d.Printer.PrintLinkSet(set)
	}

	fmt.Printf("  inferred %d links (%d accepted, %d needing review)\n",
		len(links), len(set.Accepted), len(set.NeedsReview))
	return nil
}

// enrichedStudyViews copies study entities, layering resolved metadata over
// the extracted attributes for matching purposes.
func enrichedStudyViews(studies []types.ExtractedEntity, resolutions []enrich.Resolution) []types.ExtractedEntity {
	byCitation := map[string]enrich.Resolution{}
	for _, res := range resolutions {
		byCitation[res.Citation] = res
	}

	views := make([]types.ExtractedEntity, 0, len(studies))
	for _, study := range studies {
		view := study
		view.Attributes = make(map[string]string, len(study.Attributes)+2)
		for k, v := range study.Attributes {
			view.Attributes[k] = v
		}
		if res, ok := byCitation[study.Attr("citation")]; ok && res.Status == enrich.StatusResolved {
			if res.DOI != "" {
				view.Attributes["doi"] = res.DOI
			}
			if res.Metadata != nil && res.Metadata.Title != "" {
				view.Attributes["title"] = res.Metadata.Title
			}
		}
		views = append(views, view)
	}
	return views
}
