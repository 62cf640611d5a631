package types

// InferredLink is a typed, confidence-scored relationship between two
// extracted entities. Evidence always records the textual or structural
// signal that produced the score, so every confidence is explainable.
type InferredLink struct {
	FromID       string   `json:"from_id"`
	ToID         string   `json:"to_id"`
	RelationType string   `json:"relation_type"`
	Confidence   float64  `json:"confidence"`
	Evidence     string   `json:"evidence"`
	Strategies   []string `json:"strategies"`
	NeedsReview  bool     `json:"needs_review"`
}

// LinkSet partitions inference output into accepted links and links held
// for manual review. Links below the review floor are discarded before a
// LinkSet is built and never appear in either partition.
type LinkSet struct {
	GuidelineID string         `json:"guideline_id"`
	Accepted    []InferredLink `json:"accepted"`
	NeedsReview []InferredLink `json:"needs_review"`
}
