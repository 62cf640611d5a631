package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"guidegraph/internal/ingestion"
	"guidegraph/internal/llm"
	"guidegraph/internal/types"
)

// studyPayload mirrors the Studies extraction schema output.
type studyPayload struct {
	Studies []struct {
		Citation string `json:"citation"`
		Title    string `json:"title"`
		Year     string `json:"year"`
		DOI      string `json:"doi"`
		PMID     string `json:"pmid"`
	} `json:"studies"`
}

// runExtractStudies extracts cited studies from reference-style sections.
// A guideline without a reference section yields an empty study set, which
// is a successful outcome.
func (d *Deps) runExtractStudies(ctx context.Context) error {
	var doc types.Document
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageStructurePDF, &doc); err != nil {
		return err
	}

	var sections []types.Section
	for _, sec := range doc.Sections {
		if ingestion.IsReferenceSection(sec) {
			sections = append(sections, sec)
		}
	}
	if len(sections) == 0 {
		fmt.Printf("  no reference sections found; recording empty study set\n")
		return d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageExtractStudies, []types.ExtractedEntity{})
	}

	bySeq, summary, batchErr := d.extractFromSections(ctx, StageExtractStudies, llm.StudySchema(), sections)
	if summary == nil {
		return batchErr
	}

	studies := d.assembleStudies(sections, bySeq)
	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageExtractStudies, studies); err != nil {
		return err
	}

	fmt.Printf("  extracted %d studies from %d reference sections (%d item failures)\n",
		len(studies), len(sections), summary.Failed)
	return batchErr
}

// assembleStudies builds study entities with deterministic ids,
// deduplicated by citation content.
func (d *Deps) assembleStudies(sections []types.Section, bySeq map[int]string) []types.ExtractedEntity {
	var studies []types.ExtractedEntity
	seen := map[string]bool{}
	seq := 0

	for _, sec := range sections {
		payload, ok := bySeq[sec.Seq]
		if !ok {
			continue
		}
		var parsed studyPayload
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			continue
		}

		for _, raw := range parsed.Studies {
			citation := strings.TrimSpace(raw.Citation)
			if citation == "" {
				continue
			}
			dedupeKey := types.HashContent(strings.ToLower(citation))
			if seen[dedupeKey] {
				continue
			}
			seen[dedupeKey] = true

			attrs := map[string]string{"citation": citation}
			if raw.Title != "" {
				attrs["title"] = raw.Title
			}
			if raw.Year != "" {
				attrs["year"] = raw.Year
			}
			if raw.DOI != "" {
				attrs["doi"] = raw.DOI
			}
			if raw.PMID != "" {
				attrs["pmid"] = raw.PMID
			}
			identifierAttrs(citation, attrs)

			seq++
			studies = append(studies, types.ExtractedEntity{
				EntityID:   types.EntityID(d.Config.GuidelinePrefix, types.EntityStudy, seq),
				Type:       types.EntityStudy,
				Attributes: attrs,
				SourceSpan: types.SourceSpan{
					Page:        sec.Page,
					SectionSeq:  sec.Seq,
					SectionHash: sec.ContentHash,
				},
			})
		}
	}
	return studies
}
