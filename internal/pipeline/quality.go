package pipeline

import (
	"sort"
	"time"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// EvaluateQuality computes the run-level quality metrics and their
// verdicts. Evidence, role purity, and coverage are measured over the full
// pre-dedup mention set; the duplicate rate comes from the deduplicator's
// own stats so the two figures can never drift apart. The engine never
// deletes or mutates data to force compliance; it measures and reports,
// and the caller decides what a failed verdict means.
func EvaluateQuality(batchID string, mentions []model.Mention, stats DedupStats, roles model.RoleIndex, totalDialogs int, cfg config.QualityConfig) *model.QualityReport {
	var emptyEvidence, nonClient, unclassified int
	for _, m := range mentions {
		if m.InvalidEvidence {
			emptyEvidence++
		}
		if !isClientEvidence(m, roles) {
			nonClient++
		}
		if m.Unclassified || m.Theme == model.MiscTheme {
			unclassified++
		}
	}

	coverage := 100.0
	if len(mentions) > 0 {
		coverage = round2(100 * float64(len(mentions)-unclassified) / float64(len(mentions)))
	}

	report := &model.QualityReport{
		BatchID:       batchID,
		TotalDialogs:  totalDialogs,
		TotalMentions: len(mentions),
		Checks: []model.GateCheck{
			{
				Name:      model.CheckEvidence,
				Value:     float64(emptyEvidence),
				Threshold: 0,
				Passed:    emptyEvidence == 0,
			},
			{
				Name:      model.CheckClientOnly,
				Value:     float64(nonClient),
				Threshold: 0,
				Passed:    nonClient == 0,
			},
			{
				Name:      model.CheckDedup,
				Value:     stats.DedupPct,
				Threshold: cfg.MaxDedupPct,
				Passed:    stats.DedupPct <= cfg.MaxDedupPct,
			},
			{
				Name:      model.CheckCoverage,
				Value:     coverage,
				Threshold: cfg.MinCoveragePct,
				Passed:    coverage >= cfg.MinCoveragePct,
			},
		},
		Ambiguity: ambiguityRows(mentions, cfg.AmbiguityConfidence),
		CreatedAt: time.Now().UTC(),
	}

	report.Passed = true
	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
			break
		}
	}
	return report
}

// ambiguityRows builds the diagnostic table: per (theme, subtheme), the
// share of surviving mentions below the confidence threshold, most
// ambiguous first. Not a gate, just a review queue.
func ambiguityRows(mentions []model.Mention, threshold float64) []model.AmbiguityRow {
	type counts struct {
		total     int
		ambiguous int
	}
	byKey := make(map[subthemeKey]*counts)
	for _, m := range mentions {
		if !m.Surviving() {
			continue
		}
		key := subthemeKey{Theme: m.Theme, Subtheme: m.Subtheme}
		c, ok := byKey[key]
		if !ok {
			c = &counts{}
			byKey[key] = c
		}
		c.total++
		if m.Confidence < threshold {
			c.ambiguous++
		}
	}

	rows := make([]model.AmbiguityRow, 0, len(byKey))
	for key, c := range byKey {
		rows = append(rows, model.AmbiguityRow{
			Theme:        key.Theme,
			Subtheme:     key.Subtheme,
			MentionCount: c.total,
			AmbiguousPct: round1(100 * float64(c.ambiguous) / float64(c.total)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AmbiguousPct != rows[j].AmbiguousPct {
			return rows[i].AmbiguousPct > rows[j].AmbiguousPct
		}
		if rows[i].MentionCount != rows[j].MentionCount {
			return rows[i].MentionCount > rows[j].MentionCount
		}
		if rows[i].Theme != rows[j].Theme {
			return rows[i].Theme < rows[j].Theme
		}
		return rows[i].Subtheme < rows[j].Subtheme
	})
	return rows
}
