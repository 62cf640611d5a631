package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// Section is one logical unit of the structured guideline document.
type Section struct {
	Heading     string `json:"heading"`
	Content     string `json:"content"`
	Page        int    `json:"page"`
	Seq         int    `json:"seq"`
	ContentHash string `json:"content_hash"`
}

// Document is the output of the PDF structuring stage.
type Document struct {
	GuidelineID string    `json:"guideline_id"`
	SourcePath  string    `json:"source_path"`
	Title       string    `json:"title,omitempty"`
	Pages       int       `json:"pages"`
	Sections    []Section `json:"sections"`
}

// HashContent returns a short stable hash of arbitrary content. Used for
// section identity and work-item checkpoint keys.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
