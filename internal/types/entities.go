// Package types defines the artifact types passed between pipeline stages.
package types

import (
	"fmt"
	"strings"
)

// Entity type constants used during extraction and graph loading.
const (
	EntityRecommendation = "recommendation"
	EntityIntervention   = "intervention"
	EntityCondition      = "condition"
	EntityStudy          = "study"
)

// Relation type constants for inferred links.
const (
	RelRecommends  = "RECOMMENDS"
	RelTreats      = "TREATS"
	RelCites       = "CITES"
	RelSupportedBy = "SUPPORTED_BY"
)

// SourceSpan points back into the structured source document.
type SourceSpan struct {
	Page        int    `json:"page"`
	SectionSeq  int    `json:"section_seq"`
	SectionHash string `json:"section_hash,omitempty"`
}

// ExtractedEntity is a single typed entity produced by an extraction stage.
// Entities are immutable once written; re-extraction creates a new version
// under a new id rather than overwriting.
type ExtractedEntity struct {
	EntityID   string            `json:"entity_id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	SourceSpan SourceSpan        `json:"source_span"`
}

// Attr returns the named attribute or the empty string.
func (e ExtractedEntity) Attr(key string) string {
	return e.Attributes[key]
}

// EntityID builds a deterministic, guideline-scoped entity identifier,
// e.g. "NG28_RECOMMENDATION_0007".
func EntityID(prefix, entityType string, seq int) string {
	return fmt.Sprintf("%s_%s_%04d", prefix, strings.ToUpper(entityType), seq)
}
