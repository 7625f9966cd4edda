package pipeline

import (
	"math"
	"sort"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// dedupKey scopes duplicate detection. Deduplicating inside
// (dialog_id, subtheme) rather than globally keeps identical short client
// utterances that legitimately recur across unrelated dialogs or subthemes.
type dedupKey struct {
	DialogID string
	Subtheme string
}

// DedupStats reports what the deduplicator removed.
type DedupStats struct {
	Total     int     `json:"total"`
	Removed   int     `json:"removed"`
	DedupPct  float64 `json:"dedup_pct"`
	Survivors int     `json:"survivors"`
}

// DedupPct computes the duplicate rate as a percentage, rounded to two
// decimals. The quality gate reuses this exact formula so both figures
// agree bit for bit.
func DedupPct(total, removed int) float64 {
	if total == 0 {
		return 0
	}
	return round2(100 * float64(removed) / float64(total))
}

// Dedup collapses exact duplicates within each (dialog_id, subtheme)
// partition. Mentions sharing an identical QuoteNorm form one group; the
// survivor is the member with the highest confidence, ties broken by the
// earliest turn, then the lexicographically smallest TextQuote, so reruns
// are deterministic. Losers are marked duplicates and point at the
// survivor; nothing is deleted.
//
// Invalid-evidence mentions never form groups: an empty comparison form
// matches nothing.
func Dedup(in []model.Mention) ([]model.Mention, DedupStats) {
	out := make([]model.Mention, len(in))
	copy(out, in)

	groups := make(map[dedupKey]map[string][]int)
	for i, m := range out {
		if m.QuoteNorm == "" {
			continue
		}
		key := dedupKey{DialogID: m.DialogID, Subtheme: m.Subtheme}
		byQuote, ok := groups[key]
		if !ok {
			byQuote = make(map[string][]int)
			groups[key] = byQuote
		}
		byQuote[m.QuoteNorm] = append(byQuote[m.QuoteNorm], i)
	}

	stats := DedupStats{Total: len(in)}
	for _, byQuote := range groups {
		for _, idxs := range byQuote {
			if len(idxs) < 2 {
				continue
			}
			survivor := pickSurvivor(out, idxs)
			for _, i := range idxs {
				if i == survivor {
					continue
				}
				out[i].IsDuplicate = true
				out[i].DuplicateOf = out[survivor].ID
				stats.Removed++
			}
		}
	}

	stats.Survivors = stats.Total - stats.Removed
	stats.DedupPct = DedupPct(stats.Total, stats.Removed)
	return out, stats
}

// pickSurvivor chooses the retained representative of one dedup group.
func pickSurvivor(mentions []model.Mention, idxs []int) int {
	best := idxs[0]
	for _, i := range idxs[1:] {
		a, b := mentions[i], mentions[best]
		switch {
		case a.Confidence > b.Confidence:
			best = i
		case a.Confidence < b.Confidence:
		case a.TurnID < b.TurnID:
			best = i
		case a.TurnID > b.TurnID:
		case a.TextQuote < b.TextQuote:
			best = i
		}
	}
	return best
}

// FuzzyDedup additionally collapses near-duplicates by cosine similarity
// over externally supplied vectors, still scoped to (dialog_id, subtheme).
// It runs only on demand with an explicit threshold and never merges
// mentions from different dialogs. Input must already be exact-deduped.
func FuzzyDedup(in []model.Mention, vectors map[string][]float32, threshold float64) ([]model.Mention, int) {
	out := make([]model.Mention, len(in))
	copy(out, in)

	partitions := make(map[dedupKey][]int)
	for i, m := range out {
		if m.IsDuplicate || m.QuoteNorm == "" {
			continue
		}
		if _, ok := vectors[m.ID]; !ok {
			continue
		}
		key := dedupKey{DialogID: m.DialogID, Subtheme: m.Subtheme}
		partitions[key] = append(partitions[key], i)
	}

	removed := 0
	for _, idxs := range partitions {
		// Higher-confidence mentions absorb lower-confidence neighbors.
		sort.SliceStable(idxs, func(a, b int) bool {
			ma, mb := out[idxs[a]], out[idxs[b]]
			if ma.Confidence != mb.Confidence {
				return ma.Confidence > mb.Confidence
			}
			return ma.TurnID < mb.TurnID
		})
		for i := 0; i < len(idxs); i++ {
			if out[idxs[i]].IsDuplicate {
				continue
			}
			for j := i + 1; j < len(idxs); j++ {
				if out[idxs[j]].IsDuplicate {
					continue
				}
				sim := cosine(vectors[out[idxs[i]].ID], vectors[out[idxs[j]].ID])
				if sim >= threshold {
					out[idxs[j]].IsDuplicate = true
					out[idxs[j]].DuplicateOf = out[idxs[i]].ID
					removed++
				}
			}
		}
	}
	return out, removed
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
