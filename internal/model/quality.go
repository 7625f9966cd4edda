package model

import "time"

// Gate check names as stored and reported.
const (
	CheckEvidence   = "evidence_100"
	CheckClientOnly = "client_only_100"
	CheckDedup      = "dedup_pct"
	CheckCoverage   = "coverage_pct"
)

// GateCheck is one quality metric evaluated against its threshold.
type GateCheck struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// AmbiguityRow reports the share of low-confidence mentions for one
// (theme, subtheme). Diagnostic only, never a pass/fail gate.
type AmbiguityRow struct {
	Theme        string  `json:"theme"`
	Subtheme     string  `json:"subtheme"`
	MentionCount int     `json:"mention_count"`
	AmbiguousPct float64 `json:"ambiguous_pct"`
}

// QualityReport holds the run-level metrics and per-check verdicts. The
// engine that produces it only measures; whether a failed report blocks
// publishing is the caller's policy.
type QualityReport struct {
	BatchID       string         `json:"batch_id"`
	TotalDialogs  int            `json:"total_dialogs"`
	TotalMentions int            `json:"total_mentions"`
	Checks        []GateCheck    `json:"checks"`
	Ambiguity     []AmbiguityRow `json:"ambiguity"`
	Passed        bool           `json:"passed"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Check returns the named gate check, or nil when absent.
func (r *QualityReport) Check(name string) *GateCheck {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}
