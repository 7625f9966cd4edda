package pipeline

import (
	"sort"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// isClientEvidence reports whether a mention may contribute to summary
// numerators: the role/turn index is authoritative when it covers the turn,
// otherwise the mention's own role field decides.
func isClientEvidence(m model.Mention, roles model.RoleIndex) bool {
	if roles != nil {
		if r, ok := roles[model.RoleKey{DialogID: m.DialogID, TurnID: m.TurnID}]; ok {
			return r == model.RoleClient
		}
	}
	return m.Role == model.RoleClient
}

// countable reports whether a mention contributes to summary tables:
// a surviving, evidence-backed, taxonomy-classified, client-spoken mention.
// Everything else is still visible in the mention table and the gate.
func countable(m model.Mention, roles model.RoleIndex) bool {
	return m.Surviving() && !m.InvalidEvidence && !m.Unclassified && isClientEvidence(m, roles)
}

// Aggregate recomputes every summary table from scratch: the outputs are a
// pure function of the deduplicated mention set and the dialog universe.
// totalDialogs is the externally supplied distinct dialog count for the
// batch.
func Aggregate(mentions []model.Mention, titles map[string]string, roles model.RoleIndex, totalDialogs int) model.Summaries {
	type group struct {
		dialogs  map[string]struct{}
		mentions int
	}

	themes := make(map[string]*group)
	subthemes := make(map[subthemeKey]*group)
	problems := make(map[string]*group)
	dialogThemes := make(map[string]map[string]struct{})

	var quoteIndex []model.Mention

	for _, m := range mentions {
		if !countable(m, roles) {
			continue
		}

		quoteIndex = append(quoteIndex, m)

		tg, ok := themes[m.Theme]
		if !ok {
			tg = &group{dialogs: make(map[string]struct{})}
			themes[m.Theme] = tg
		}
		tg.dialogs[m.DialogID] = struct{}{}
		tg.mentions++

		sk := subthemeKey{Theme: m.Theme, Subtheme: m.Subtheme}
		sg, ok := subthemes[sk]
		if !ok {
			sg = &group{dialogs: make(map[string]struct{})}
			subthemes[sk] = sg
		}
		sg.dialogs[m.DialogID] = struct{}{}
		sg.mentions++

		if m.ProblemID != "" {
			pg, ok := problems[m.ProblemID]
			if !ok {
				pg = &group{dialogs: make(map[string]struct{})}
				problems[m.ProblemID] = pg
			}
			pg.dialogs[m.DialogID] = struct{}{}
			pg.mentions++
		}

		dt, ok := dialogThemes[m.DialogID]
		if !ok {
			dt = make(map[string]struct{})
			dialogThemes[m.DialogID] = dt
		}
		dt[m.Theme] = struct{}{}
	}

	out := model.Summaries{}

	for theme, g := range themes {
		out.Themes = append(out.Themes, model.ThemeSummary{
			Theme:             theme,
			DialogCount:       len(g.dialogs),
			MentionCount:      g.mentions,
			ShareOfDialogsPct: sharePct(len(g.dialogs), totalDialogs),
		})
	}
	sort.Slice(out.Themes, func(i, j int) bool {
		if out.Themes[i].DialogCount != out.Themes[j].DialogCount {
			return out.Themes[i].DialogCount > out.Themes[j].DialogCount
		}
		return out.Themes[i].Theme < out.Themes[j].Theme
	})

	for key, g := range subthemes {
		out.Subthemes = append(out.Subthemes, model.SubthemeSummary{
			Theme:             key.Theme,
			Subtheme:          key.Subtheme,
			DialogCount:       len(g.dialogs),
			MentionCount:      g.mentions,
			ShareOfDialogsPct: sharePct(len(g.dialogs), totalDialogs),
		})
	}
	sort.Slice(out.Subthemes, func(i, j int) bool {
		a, b := out.Subthemes[i], out.Subthemes[j]
		if a.DialogCount != b.DialogCount {
			return a.DialogCount > b.DialogCount
		}
		if a.Theme != b.Theme {
			return a.Theme < b.Theme
		}
		return a.Subtheme < b.Subtheme
	})

	// Every known problem id gets a card, even with zero mentions; cards for
	// unmentioned problems report null intensity, never zero.
	for id, title := range titles {
		g := problems[id]
		card := model.ProblemCard{
			ProblemID: id,
			Title:     title,
		}
		if g != nil {
			card.DialogCount = len(g.dialogs)
			card.MentionCount = g.mentions
		}
		card.ShareOfDialogsPct = sharePct(card.DialogCount, totalDialogs)
		if totalDialogs > 0 {
			card.FreqPer1k = round1(1000 * float64(card.MentionCount) / float64(totalDialogs))
		}
		if card.DialogCount > 0 {
			intensity := round1(float64(card.MentionCount) / float64(card.DialogCount))
			card.IntensityMPD = &intensity
		}
		out.Problems = append(out.Problems, card)
	}
	sort.Slice(out.Problems, func(i, j int) bool {
		a, b := out.Problems[i], out.Problems[j]
		if a.DialogCount != b.DialogCount {
			return a.DialogCount > b.DialogCount
		}
		return a.ProblemID < b.ProblemID
	})

	out.Cooccurrence = cooccurrence(dialogThemes)

	sort.Slice(quoteIndex, func(i, j int) bool {
		a, b := quoteIndex[i], quoteIndex[j]
		if a.DialogID != b.DialogID {
			return a.DialogID < b.DialogID
		}
		return a.TurnID < b.TurnID
	})
	out.QuoteIndex = quoteIndex

	return out
}

// cooccurrence counts dialogs where each unordered pair of distinct themes
// both appear, a < b lexicographically.
func cooccurrence(dialogThemes map[string]map[string]struct{}) []model.Cooccurrence {
	counts := make(map[[2]string]int)
	for _, set := range dialogThemes {
		list := make([]string, 0, len(set))
		for t := range set {
			list = append(list, t)
		}
		sort.Strings(list)
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				counts[[2]string{list[i], list[j]}]++
			}
		}
	}

	out := make([]model.Cooccurrence, 0, len(counts))
	for pair, n := range counts {
		out = append(out, model.Cooccurrence{ThemeA: pair[0], ThemeB: pair[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].ThemeA != out[j].ThemeA {
			return out[i].ThemeA < out[j].ThemeA
		}
		return out[i].ThemeB < out[j].ThemeB
	})
	return out
}

// sharePct is 100 × dialogCount / totalDialogs, rounded to one decimal.
func sharePct(dialogCount, totalDialogs int) float64 {
	if totalDialogs == 0 {
		return 0
	}
	return round1(100 * float64(dialogCount) / float64(totalDialogs))
}
