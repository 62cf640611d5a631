package stages

import (
	"context"
	"fmt"

	"guidegraph/internal/types"
)

// runPopulateGraph loads every extracted entity and every accepted link into
// the graph store. Needs-review links stay out of the graph until a human
// promotes them.
func (d *Deps) runPopulateGraph(ctx context.Context) error {
	var entities, studies []types.ExtractedEntity
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageExtractEntities, &entities); err != nil {
		return err
	}
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageExtractStudies, &studies); err != nil {
		return err
	}
	var links types.LinkSet
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageInferLinks, &links); err != nil {
		return err
	}

	nodes := 0
	for _, list := range [][]types.ExtractedEntity{entities, studies} {
		for _, entity := range list {
			if err := d.Graph.UpsertEntity(ctx, entity); err != nil {
				return err
			}
			nodes++
		}
	}
	// Nodes go in first so relationship foreign keys resolve.
	for _, link := range links.Accepted {
		if err := d.Graph.UpsertLink(ctx, link); err != nil {
			return err
		}
	}

	load := map[string]int{
		"nodes":          nodes,
		"links":          len(links.Accepted),
		"links_held_out": len(links.NeedsReview),
	}
	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StagePopulateGraph, load); err != nil {
		return err
	}

	fmt.Printf("  loaded %d nodes and %d links into the graph (%d held for review)\n",
		nodes, len(links.Accepted), len(links.NeedsReview))
	return nil
}
