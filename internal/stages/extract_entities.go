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

// entityPayload mirrors the GuidelineEntities extraction schema output.
type entityPayload struct {
	Entities []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Name     string `json:"name"`
		Strength string `json:"strength"`
	} `json:"entities"`
}

// runExtractEntities extracts recommendations, interventions, and
// conditions from content sections. Entity ids are assigned in section
// order of first appearance, so a checkpoint-resolved re-run assigns the
// same ids.
func (d *Deps) runExtractEntities(ctx context.Context) error {
	var doc types.Document
	if err := d.Store.LoadArtifact(ctx, d.Config.GuidelineID, StageStructurePDF, &doc); err != nil {
		return err
	}

	var sections []types.Section
	for _, sec := range doc.Sections {
		if !ingestion.IsReferenceSection(sec) {
			sections = append(sections, sec)
		}
	}

	bySeq, summary, batchErr := d.extractFromSections(ctx, StageExtractEntities, llm.GuidelineEntitySchema(), sections)
	if summary == nil {
		return batchErr
	}

	entities := d.assembleEntities(sections, bySeq)
	if err := d.Store.SaveArtifact(ctx, d.Config.GuidelineID, StageExtractEntities, entities); err != nil {
		return err
	}

	fmt.Printf("  extracted %d entities from %d sections (%d item failures)\n",
		len(entities), len(sections), summary.Failed)
	return batchErr
}

// assembleEntities turns per-section payloads into immutable entity records
// with deterministic guideline-scoped ids. Interventions and conditions are
// deduplicated by name, keeping the earliest occurrence.
func (d *Deps) assembleEntities(sections []types.Section, bySeq map[int]string) []types.ExtractedEntity {
	var entities []types.ExtractedEntity
	counters := map[string]int{}
	seen := map[string]bool{}

	for _, sec := range sections {
		payload, ok := bySeq[sec.Seq]
		if !ok {
			continue
		}
		var parsed entityPayload
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			// Validated upstream; a decode failure here means a corrupted
			// checkpoint, which the next extraction run will repair.
			continue
		}

		for _, raw := range parsed.Entities {
			attrs := map[string]string{}
			switch raw.Type {
			case types.EntityRecommendation:
				text := strings.TrimSpace(raw.Text)
				if text == "" {
					continue
				}
				attrs["text"] = text
				if raw.Strength != "" {
					attrs["strength"] = raw.Strength
				}
				identifierAttrs(text, attrs)
			case types.EntityIntervention, types.EntityCondition:
				name := strings.ToLower(strings.TrimSpace(raw.Name))
				if name == "" {
					continue
				}
				dedupeKey := raw.Type + "\x1f" + name
				if seen[dedupeKey] {
					continue
				}
				seen[dedupeKey] = true
				attrs["name"] = name
			default:
				continue
			}

			counters[raw.Type]++
			entities = append(entities, types.ExtractedEntity{
				EntityID:   types.EntityID(d.Config.GuidelinePrefix, raw.Type, counters[raw.Type]),
				Type:       raw.Type,
				Attributes: attrs,
				SourceSpan: types.SourceSpan{
					Page:        sec.Page,
					SectionSeq:  sec.Seq,
					SectionHash: sec.ContentHash,
				},
			})
		}
	}
	return entities
}
