// Package stages defines the concrete pipeline stages and wires them into
// the stage registry in dependency order.
package stages

import (
	"time"

	"guidegraph/internal/batch"
	"guidegraph/internal/config"
	"guidegraph/internal/embedding"
	"guidegraph/internal/enrich"
	"guidegraph/internal/graphstore"
	"guidegraph/internal/llm"
	"guidegraph/internal/observability"
	"guidegraph/internal/pipeline"
	"guidegraph/internal/state"
)

// Stage names, in execution order.
const (
	StageStructurePDF    = "structure_pdf"
	StageExtractEntities = "extract_entities"
	StageExtractStudies  = "extract_studies"
	StageEnrichCitations = "enrich_citations"
	StageEmbedSections   = "embed_sections"
	StageInferLinks      = "infer_links"
	StagePopulateGraph   = "populate_graph"
)

// Artifact kinds produced by the stages.
const (
	ArtifactDocumentStructure = "document_structure"
	ArtifactEntities          = "entities"
	ArtifactStudies           = "studies"
	ArtifactCitationMetadata  = "citation_metadata"
	ArtifactSectionEmbeddings = "section_embeddings"
	ArtifactLinks             = "links"
	ArtifactGraphLoad         = "graph_load"
)

// Deps bundles the external collaborators the stages drive.
type Deps struct {
	Config   *config.Config
	Store    *state.Store
	LLM      llm.Client
	Resolver enrich.Resolver
	Embedder embedding.Provider
	Graph    graphstore.Store
	Printer  *observability.Printer
}

// Register adds every stage to the registry in dependency order.
func Register(reg *pipeline.Registry, d *Deps) error {
	defs := []pipeline.StageDefinition{
		{
			Name:     StageStructurePDF,
			Produces: ArtifactDocumentStructure,
			Run:      d.runStructurePDF,
		},
		{
			Name:     StageExtractEntities,
			Requires: []string{StageStructurePDF},
			Produces: ArtifactEntities,
			Run:      d.runExtractEntities,
		},
		{
			Name:     StageExtractStudies,
			Requires: []string{StageStructurePDF},
			Produces: ArtifactStudies,
			Run:      d.runExtractStudies,
		},
		{
			Name:     StageEnrichCitations,
			Requires: []string{StageExtractStudies},
			Produces: ArtifactCitationMetadata,
			Run:      d.runEnrichCitations,
		},
		{
			Name:     StageEmbedSections,
			Requires: []string{StageStructurePDF},
			Produces: ArtifactSectionEmbeddings,
			Run:      d.runEmbedSections,
		},
		{
			Name:     StageInferLinks,
			Requires: []string{StageExtractEntities, StageExtractStudies, StageEnrichCitations},
			Produces: ArtifactLinks,
			Run:      d.runInferLinks,
		},
		{
			Name:     StagePopulateGraph,
			Requires: []string{StageInferLinks},
			Produces: ArtifactGraphLoad,
			Run:      d.runPopulateGraph,
		},
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// processor builds the checkpointed batch processor for one stage using the
// configured tuning.
func (d *Deps) processor(stage string) *batch.Processor {
	return batch.NewProcessor(d.Store, batch.Options{
		GuidelineID:     d.Config.GuidelineID,
		Stage:           stage,
		Workers:         d.Config.Batch.Concurrency,
		MaxAttempts:     d.Config.Batch.MaxAttempts,
		BackoffBase:     time.Duration(d.Config.Batch.BackoffBaseMillis) * time.Millisecond,
		MaxFailureRatio: d.Config.Batch.MaxItemFailureRatio,
	})
}
