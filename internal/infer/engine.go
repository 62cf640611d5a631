package infer

import (
	"fmt"
	"sort"
	"strings"

	"guidegraph/internal/types"
)

// Engine runs every configured strategy over candidate entity pairs and
// merges the verdicts into a deduplicated, threshold-partitioned link set.
type Engine struct {
	strategies      []Strategy
	acceptThreshold float64
	reviewFloor     float64
}

// NewEngine builds an engine. Links scoring at or above accept are emitted
// accepted; links in [floor, accept) are emitted tagged needs_review; links
// below floor are discarded entirely.
func NewEngine(strategies []Strategy, accept, floor float64) *Engine {
	return &Engine{strategies: strategies, acceptThreshold: accept, reviewFloor: floor}
}

// Infer produces links of one relation type from the `from` set to the `to`
// set. Self-pairs are excluded, duplicate (from, to, relation) candidates
// are merged keeping the maximum confidence with every contributing
// strategy recorded, and the output is sorted so identical inputs always
// yield an identical link list.
func (e *Engine) Infer(relationType string, from, to []types.ExtractedEntity) []types.InferredLink {
	type candidate struct {
		confidence float64
		strategies []string
		evidence   []string
	}
	found := make(map[string]*candidate)

	for _, f := range sortedByID(from) {
		for _, t := range sortedByID(to) {
			if f.EntityID == t.EntityID {
				continue
			}
			for _, strat := range e.strategies {
				match, ok := strat.Score(f, t)
				if !ok {
					continue
				}
				key := f.EntityID + "\x1f" + t.EntityID
				cand := found[key]
				if cand == nil {
					cand = &candidate{}
					found[key] = cand
				}
				// Max across strategies, never an average: one strong
				// signal must not be diluted by a weak one.
				if match.Confidence > cand.confidence {
					cand.confidence = match.Confidence
				}
				cand.strategies = append(cand.strategies, strat.Name())
				cand.evidence = append(cand.evidence,
					fmt.Sprintf("%s: %s (%.2f)", strat.Name(), match.Evidence, match.Confidence))
			}
		}
	}

	links := make([]types.InferredLink, 0, len(found))
	for key, cand := range found {
		if cand.confidence < e.reviewFloor {
			continue
		}
		ids := strings.SplitN(key, "\x1f", 2)
		links = append(links, types.InferredLink{
			FromID:       ids[0],
			ToID:         ids[1],
			RelationType: relationType,
			Confidence:   cand.confidence,
			Evidence:     strings.Join(cand.evidence, "; "),
			Strategies:   sortStrings(cand.strategies),
			NeedsReview:  cand.confidence < e.acceptThreshold,
		})
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].FromID != links[j].FromID {
			return links[i].FromID < links[j].FromID
		}
		if links[i].ToID != links[j].ToID {
			return links[i].ToID < links[j].ToID
		}
		return links[i].RelationType < links[j].RelationType
	})
	return links
}

// Partition splits links into the accepted and needs_review subsets of a
// LinkSet.
func Partition(guidelineID string, links []types.InferredLink) types.LinkSet {
	set := types.LinkSet{GuidelineID: guidelineID}
	for _, link := range links {
		if link.NeedsReview {
			set.NeedsReview = append(set.NeedsReview, link)
		} else {
			set.Accepted = append(set.Accepted, link)
		}
	}
	return set
}

func sortedByID(entities []types.ExtractedEntity) []types.ExtractedEntity {
	out := append([]types.ExtractedEntity(nil), entities...)
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func sortStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
