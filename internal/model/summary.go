package model

// ThemeSummary is one row of the per-theme summary table.
type ThemeSummary struct {
	Theme             string  `json:"theme" csv:"theme"`
	DialogCount       int     `json:"dialog_count" csv:"dialog_count"`
	MentionCount      int     `json:"mention_count" csv:"mention_count"`
	ShareOfDialogsPct float64 `json:"share_of_dialogs_pct" csv:"share_of_dialogs_pct"`
}

// SubthemeSummary is one row of the per-subtheme summary table.
type SubthemeSummary struct {
	Theme             string  `json:"theme" csv:"theme"`
	Subtheme          string  `json:"subtheme" csv:"subtheme"`
	DialogCount       int     `json:"dialog_count" csv:"dialog_count"`
	MentionCount      int     `json:"mention_count" csv:"mention_count"`
	ShareOfDialogsPct float64 `json:"share_of_dialogs_pct" csv:"share_of_dialogs_pct"`
}

// UnmappedProblemID is the implicit bucket for mentions no rule claims.
// It is visible in output but excluded from named problem cards.
const UnmappedProblemID = "other_unmapped"

// UnmappedProblemTitle mirrors the dashboard's residual bucket label.
const UnmappedProblemTitle = "Прочее/не сконсолидировано"

// ProblemCard is the business-facing aggregate over all mentions whose
// (theme, subtheme) matched one consolidation rule.
type ProblemCard struct {
	ProblemID         string  `json:"problem_id" csv:"problem_id"`
	Title             string  `json:"title" csv:"title"`
	DialogCount       int     `json:"dialog_count" csv:"dialog_count"`
	MentionCount      int     `json:"mention_count" csv:"mention_count"`
	ShareOfDialogsPct float64 `json:"share_of_dialogs_pct" csv:"share_of_dialogs_pct"`
	FreqPer1k         float64 `json:"freq_per_1k" csv:"freq_per_1k"`

	// IntensityMPD is mentions per dialog that mentions the problem at all.
	// Nil (JSON null) when DialogCount is zero, never 0.
	IntensityMPD *float64 `json:"intensity_mpd" csv:"intensity_mpd,omitempty"`
}

// Cooccurrence counts dialogs where two distinct themes both appear.
// ThemeA < ThemeB lexicographically so each unordered pair appears once.
type Cooccurrence struct {
	ThemeA string `json:"theme_a" csv:"theme_a"`
	ThemeB string `json:"theme_b" csv:"theme_b"`
	Count  int    `json:"count" csv:"count"`
}

// ClusterInfo summarizes one density cluster inside a subtheme.
type ClusterInfo struct {
	Theme    string   `json:"theme"`
	Subtheme string   `json:"subtheme"`
	Label    int      `json:"label"`
	Size     int      `json:"size"`
	Keywords []string `json:"keywords,omitempty"`
}

// Summaries bundles every table the aggregator regenerates per run.
type Summaries struct {
	Themes       []ThemeSummary    `json:"themes"`
	Subthemes    []SubthemeSummary `json:"subthemes"`
	Problems     []ProblemCard     `json:"problems"`
	Cooccurrence []Cooccurrence    `json:"cooccurrence"`

	// QuoteIndex lists surviving mentions ordered by dialog and turn, for
	// the dashboard's citation view.
	QuoteIndex []Mention `json:"quote_index,omitempty"`
}
