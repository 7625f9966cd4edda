package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

func TestFormatReport_FullRun(t *testing.T) {
	intensity := 1.5
	summaries := model.Summaries{
		Themes: []model.ThemeSummary{
			{Theme: "доставка", DialogCount: 20, MentionCount: 31, ShareOfDialogsPct: 23.8},
		},
		Problems: []model.ProblemCard{
			{
				ProblemID:         "late_delivery",
				Title:             "Срыв сроков доставки",
				DialogCount:       2,
				MentionCount:      3,
				ShareOfDialogsPct: 20.0,
				FreqPer1k:         300.0,
				IntensityMPD:      &intensity,
			},
			{ProblemID: "ghost", Title: "Пустая карточка"},
		},
	}
	quality := &model.QualityReport{
		Checks: []model.GateCheck{
			{Name: model.CheckEvidence, Value: 0, Threshold: 0, Passed: true},
			{Name: model.CheckDedup, Value: 2.0, Threshold: 1.0, Passed: false},
		},
	}
	stages := []model.StageResult{
		{Name: "normalize", Status: model.StageStatusComplete, Duration: 3},
	}

	report := FormatReport(model.Batch{ID: "b1", TotalDialogs: 84}, summaries, quality, stages)

	assert.Contains(t, report, "# Consolidation Report: b1")
	assert.Contains(t, report, "Dialogs: 84")
	assert.Contains(t, report, "evidence_100: 0.00 (threshold 0.00) PASS")
	assert.Contains(t, report, "dedup_pct: 2.00 (threshold 1.00) FAIL")
	assert.Contains(t, report, "- доставка: 20 dialogs (23.8%), 31 mentions")
	assert.Contains(t, report, "intensity 1.5")
	assert.Contains(t, report, "intensity n/a")
	assert.Contains(t, report, "- normalize: complete (3ms)")
}

func TestFormatReport_EmptyRun(t *testing.T) {
	report := FormatReport(model.Batch{ID: "b2"}, model.Summaries{}, nil, nil)

	assert.Contains(t, report, "No quality report produced.")
	assert.Contains(t, report, "No themes.")
	assert.Contains(t, report, "No problem cards.")
}
