package pipeline

import (
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/rules"
)

// Consolidate resolves each surviving mention's (theme, subtheme) against
// the validated rule table and stamps the canonical problem id. Mentions no
// rule claims land in the implicit unmapped bucket: visible in output,
// excluded from named cards. The table is already disjoint (validation
// happens at load time, before any mention is touched) so at most one rule
// can match.
func Consolidate(in []model.Mention, table *rules.Table) ([]model.Mention, map[string]string) {
	titles := map[string]string{
		model.UnmappedProblemID: model.UnmappedProblemTitle,
	}

	out := make([]model.Mention, len(in))
	matched := 0
	for i, m := range in {
		if m.Surviving() {
			if r, ok := table.Lookup(m.Theme, m.Subtheme); ok {
				m.ProblemID = r.ID
				titles[r.ID] = r.Title
				matched++
			} else {
				m.ProblemID = model.UnmappedProblemID
			}
		}
		out[i] = m
	}

	// Named rules with no mentions still deserve an (empty) card.
	for _, r := range table.Rules() {
		if _, ok := titles[r.ID]; !ok {
			titles[r.ID] = r.Title
		}
	}

	zap.L().Info("consolidate: mentions classified",
		zap.Int("total", len(in)),
		zap.Int("matched", matched),
	)
	return out, titles
}
