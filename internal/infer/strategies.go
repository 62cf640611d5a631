// Package infer links heterogeneous extracted entities with
// confidence-scored, evidence-carrying relationships. Inference is pure:
// identical inputs and configuration always produce identical links.
package infer

import (
	"fmt"
	"strings"

	"guidegraph/internal/types"
)

// Match is one strategy's verdict on a candidate pair.
type Match struct {
	Confidence float64
	Evidence   string
}

// Strategy scores a candidate entity pair for one relation type. Strategies
// are independent; the engine merges their verdicts.
type Strategy interface {
	Name() string
	Score(from, to types.ExtractedEntity) (Match, bool)
}

// ExactKey matches entities sharing an external identifier attribute.
// An exact identifier match is definitive and scores 1.0.
type ExactKey struct {
	Keys []string
}

// Name implements Strategy.
func (s ExactKey) Name() string { return "exact_key" }

// Score implements Strategy.
func (s ExactKey) Score(from, to types.ExtractedEntity) (Match, bool) {
	for _, key := range s.Keys {
		a, b := from.Attr(key), to.Attr(key)
		if a != "" && a == b {
			return Match{
				Confidence: 1.0,
				Evidence:   fmt.Sprintf("shared %s %q", key, a),
			}, true
		}
	}
	return Match{}, false
}

// TokenOverlap scores lexical similarity between text attributes using the
// Dice coefficient over significant tokens. Pairs below Threshold do not
// match at all.
type TokenOverlap struct {
	Threshold float64
	FromAttrs []string
	ToAttrs   []string
}

// Name implements Strategy.
func (s TokenOverlap) Name() string { return "token_overlap" }

// Score implements Strategy.
func (s TokenOverlap) Score(from, to types.ExtractedEntity) (Match, bool) {
	a := tokenize(firstAttr(from, s.FromAttrs))
	b := tokenize(firstAttr(to, s.ToAttrs))
	if len(a) == 0 || len(b) == 0 {
		return Match{}, false
	}

	shared := 0
	var sharedTokens []string
	for tok := range b {
		if a[tok] {
			shared++
			sharedTokens = append(sharedTokens, tok)
		}
	}
	ratio := 2 * float64(shared) / float64(len(a)+len(b))
	if ratio < s.Threshold {
		return Match{}, false
	}
	return Match{
		Confidence: ratio,
		Evidence:   fmt.Sprintf("text overlap %.2f on %s", ratio, strings.Join(sortStrings(sharedTokens), ", ")),
	}, true
}

// StructuralProximity scores entities by how close their source sections
// are: same section scores highest, decaying with distance, capped below an
// exact-key match.
type StructuralProximity struct {
	MaxDistance int
}

// Name implements Strategy.
func (s StructuralProximity) Name() string { return "structural_proximity" }

// Score implements Strategy.
func (s StructuralProximity) Score(from, to types.ExtractedEntity) (Match, bool) {
	d := from.SourceSpan.SectionSeq - to.SourceSpan.SectionSeq
	if d < 0 {
		d = -d
	}
	if d > s.MaxDistance {
		return Match{}, false
	}
	conf := 0.9 / float64(1+d)
	evidence := "same source section"
	if d > 0 {
		evidence = fmt.Sprintf("%d sections apart", d)
	}
	return Match{Confidence: conf, Evidence: evidence}, true
}

// firstAttr returns the first non-empty attribute among keys.
func firstAttr(e types.ExtractedEntity, keys []string) string {
	for _, key := range keys {
		if v := e.Attr(key); v != "" {
			return v
		}
	}
	return ""
}

// tokenize lowercases and splits text, dropping short tokens.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:()[]\"'")
		if len(tok) < 3 {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}
