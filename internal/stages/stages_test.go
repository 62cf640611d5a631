package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidegraph/internal/config"
	"guidegraph/internal/enrich"
	"guidegraph/internal/pipeline"
	"guidegraph/internal/types"
)

func testDeps() *Deps {
	return &Deps{Config: &config.Config{GuidelineID: "ng28", GuidelinePrefix: "NG28"}}
}

func newTestRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg, testDeps()))
	return reg
}

func TestIdentifierAttrs(t *testing.T) {
	attrs := map[string]string{}
	identifierAttrs("See doi:10.1056/NEJMoa1504720. PMID: 26378978.", attrs)
	assert.Equal(t, "10.1056/NEJMoa1504720", attrs["doi"])
	assert.Equal(t, "26378978", attrs["pmid"])

	// Existing values are never overwritten.
	attrs = map[string]string{"doi": "10.1000/existing"}
	identifierAttrs("another doi 10.9999/other here", attrs)
	assert.Equal(t, "10.1000/existing", attrs["doi"])

	attrs = map[string]string{}
	identifierAttrs("no identifiers in this text", attrs)
	assert.Empty(t, attrs)
}

func TestAssembleEntities_DeterministicIDs(t *testing.T) {
	d := testDeps()
	sections := []types.Section{
		{Seq: 0, Page: 10, ContentHash: "h0"},
		{Seq: 1, Page: 11, ContentHash: "h1"},
	}
	bySeq := map[int]string{
		0: `{"entities": [
			{"type": "recommendation", "text": "Offer metformin.", "strength": "strong"},
			{"type": "intervention", "name": "Metformin"}
		]}`,
		1: `{"entities": [
			{"type": "recommendation", "text": "Consider insulin."},
			{"type": "condition", "name": "type 2 diabetes"}
		]}`,
	}

	entities := d.assembleEntities(sections, bySeq)
	require.Len(t, entities, 4)

	assert.Equal(t, "NG28_RECOMMENDATION_0001", entities[0].EntityID)
	assert.Equal(t, "Offer metformin.", entities[0].Attr("text"))
	assert.Equal(t, "strong", entities[0].Attr("strength"))
	assert.Equal(t, 10, entities[0].SourceSpan.Page)
	assert.Equal(t, "h0", entities[0].SourceSpan.SectionHash)

	// Intervention names are normalised to lowercase.
	assert.Equal(t, "NG28_INTERVENTION_0001", entities[1].EntityID)
	assert.Equal(t, "metformin", entities[1].Attr("name"))

	// Counters are per entity type.
	assert.Equal(t, "NG28_RECOMMENDATION_0002", entities[2].EntityID)
	assert.Equal(t, "NG28_CONDITION_0001", entities[3].EntityID)

	// Same inputs, same ids.
	again := d.assembleEntities(sections, bySeq)
	assert.Equal(t, entities, again)
}

func TestAssembleEntities_DedupesByName(t *testing.T) {
	d := testDeps()
	sections := []types.Section{{Seq: 0}, {Seq: 1}}
	bySeq := map[int]string{
		0: `{"entities": [{"type": "intervention", "name": "metformin"}]}`,
		1: `{"entities": [
			{"type": "intervention", "name": "METFORMIN"},
			{"type": "condition", "name": "metformin"}
		]}`,
	}

	entities := d.assembleEntities(sections, bySeq)
	require.Len(t, entities, 2)
	// Duplicate intervention dropped; the condition with the same name is a
	// different entity type and survives.
	assert.Equal(t, types.EntityIntervention, entities[0].Type)
	assert.Equal(t, types.EntityCondition, entities[1].Type)
}

func TestAssembleEntities_SkipsEmptyAndUnknown(t *testing.T) {
	d := testDeps()
	sections := []types.Section{{Seq: 0}}
	bySeq := map[int]string{
		0: `{"entities": [
			{"type": "recommendation", "text": "   "},
			{"type": "intervention", "name": ""},
			{"type": "mystery", "name": "x"}
		]}`,
	}

	assert.Empty(t, d.assembleEntities(sections, bySeq))
}

func TestAssembleEntities_MissingSectionPayload(t *testing.T) {
	d := testDeps()
	sections := []types.Section{{Seq: 0}, {Seq: 1}}
	bySeq := map[int]string{
		1: `{"entities": [{"type": "intervention", "name": "insulin"}]}`,
	}

	entities := d.assembleEntities(sections, bySeq)
	require.Len(t, entities, 1)
	assert.Equal(t, "insulin", entities[0].Attr("name"))
}

func TestAssembleStudies_DedupesByCitation(t *testing.T) {
	d := testDeps()
	sections := []types.Section{{Seq: 5, Page: 90, ContentHash: "h5"}, {Seq: 6, Page: 91}}
	bySeq := map[int]string{
		5: `{"studies": [
			{"citation": "Zinman B et al. NEJM 2015. doi:10.1056/NEJMoa1504720", "year": "2015"},
			{"citation": "Holman R et al. UKPDS. 1998.", "title": "UKPDS 33"}
		]}`,
		6: `{"studies": [
			{"citation": "zinman b et al. nejm 2015. doi:10.1056/NEJMoa1504720"}
		]}`,
	}

	studies := d.assembleStudies(sections, bySeq)
	require.Len(t, studies, 2)

	assert.Equal(t, "NG28_STUDY_0001", studies[0].EntityID)
	assert.Equal(t, types.EntityStudy, studies[0].Type)
	assert.Equal(t, "2015", studies[0].Attr("year"))
	// The DOI embedded in the citation text is pulled into attributes.
	assert.Equal(t, "10.1056/NEJMoa1504720", studies[0].Attr("doi"))
	assert.Equal(t, 90, studies[0].SourceSpan.Page)

	assert.Equal(t, "NG28_STUDY_0002", studies[1].EntityID)
	assert.Equal(t, "UKPDS 33", studies[1].Attr("title"))
}

func TestEnrichedStudyViews_LayersResolutionWithoutMutating(t *testing.T) {
	studies := []types.ExtractedEntity{
		{
			EntityID:   "NG28_STUDY_0001",
			Type:       types.EntityStudy,
			Attributes: map[string]string{"citation": "Zinman B et al. NEJM 2015."},
		},
		{
			EntityID:   "NG28_STUDY_0002",
			Type:       types.EntityStudy,
			Attributes: map[string]string{"citation": "Unmatched reference."},
		},
	}
	resolutions := []enrich.Resolution{
		{
			Citation: "Zinman B et al. NEJM 2015.",
			Status:   enrich.StatusResolved,
			DOI:      "10.1056/nejmoa1504720",
			Metadata: &enrich.Metadata{Title: "Empagliflozin and Cardiovascular Outcomes"},
		},
		{Citation: "Unmatched reference.", Status: enrich.StatusUnresolved},
	}

	views := enrichedStudyViews(studies, resolutions)
	require.Len(t, views, 2)

	assert.Equal(t, "10.1056/nejmoa1504720", views[0].Attr("doi"))
	assert.Equal(t, "Empagliflozin and Cardiovascular Outcomes", views[0].Attr("title"))
	assert.Empty(t, views[1].Attr("doi"))

	// The persisted study records stay untouched.
	assert.Empty(t, studies[0].Attr("doi"))
	assert.Empty(t, studies[0].Attr("title"))
}

func TestRegister_StageOrderAndDependencies(t *testing.T) {
	// Registration doubles as the dependency-order check: Register rejects a
	// stage whose requirement is not already present.
	reg := newTestRegistry(t)

	names := reg.Names()
	assert.Equal(t, []string{
		StageStructurePDF,
		StageExtractEntities,
		StageExtractStudies,
		StageEnrichCitations,
		StageEmbedSections,
		StageInferLinks,
		StagePopulateGraph,
	}, names)

	stages := reg.Stages()
	last := stages[len(stages)-1]
	assert.Equal(t, StagePopulateGraph, last.Name)
	assert.Equal(t, []string{StageInferLinks}, last.Requires)
	assert.Equal(t, ArtifactGraphLoad, last.Produces)
}
