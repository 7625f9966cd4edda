package pipeline

import (
	"fmt"
	"strings"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// FormatReport generates a human-readable run report over the output
// tables and the quality verdict.
func FormatReport(batch model.Batch, summaries model.Summaries, quality *model.QualityReport, stages []model.StageResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Consolidation Report: %s\n", batch.ID)
	fmt.Fprintf(&b, "Dialogs: %d\n\n", batch.TotalDialogs)

	// Quality verdict first: it decides whether the rest is publishable.
	b.WriteString("## Quality Gate\n")
	if quality == nil {
		b.WriteString("No quality report produced.\n\n")
	} else {
		for _, c := range quality.Checks {
			verdict := "PASS"
			if !c.Passed {
				verdict = "FAIL"
			}
			fmt.Fprintf(&b, "- %s: %.2f (threshold %.2f) %s\n", c.Name, c.Value, c.Threshold, verdict)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Stages\n")
	for _, s := range stages {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", s.Name, s.Status, s.Duration)
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Error)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Themes\n")
	if len(summaries.Themes) == 0 {
		b.WriteString("No themes.\n\n")
	} else {
		for _, t := range summaries.Themes {
			fmt.Fprintf(&b, "- %s: %d dialogs (%.1f%%), %d mentions\n",
				t.Theme, t.DialogCount, t.ShareOfDialogsPct, t.MentionCount)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Problem Cards\n")
	if len(summaries.Problems) == 0 {
		b.WriteString("No problem cards.\n")
	} else {
		for _, p := range summaries.Problems {
			intensity := "n/a"
			if p.IntensityMPD != nil {
				intensity = fmt.Sprintf("%.1f", *p.IntensityMPD)
			}
			fmt.Fprintf(&b, "- **%s** (%s): %d dialogs (%.1f%%), %d mentions, %.1f/1k, intensity %s\n",
				p.Title, p.ProblemID, p.DialogCount, p.ShareOfDialogsPct,
				p.MentionCount, p.FreqPer1k, intensity)
		}
	}

	if quality != nil && len(quality.Ambiguity) > 0 {
		b.WriteString("\n## Ambiguity (for review)\n")
		for _, row := range quality.Ambiguity {
			fmt.Fprintf(&b, "- %s / %s: %.1f%% below threshold (%d mentions)\n",
				row.Theme, row.Subtheme, row.AmbiguousPct, row.MentionCount)
		}
	}

	return b.String()
}
