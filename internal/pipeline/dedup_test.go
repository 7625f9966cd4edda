package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

func mention(id, dialogID string, turnID int, subtheme, quote string, confidence float64) model.Mention {
	return model.Mention{
		ID:         id,
		DialogID:   dialogID,
		TurnID:     turnID,
		Role:       model.RoleClient,
		Theme:      "доставка",
		Subtheme:   subtheme,
		TextQuote:  quote,
		QuoteNorm:  NormalizeQuote(quote),
		Confidence: confidence,
	}
}

func TestDedup_SurvivorByConfidence(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "не работает", 0.9),
		mention("m2", "d1", 2, "sub", "не работает", 0.5),
		mention("m3", "d1", 3, "sub", "не работает", 0.7),
	}

	out, stats := Dedup(in)

	assert.False(t, out[0].IsDuplicate)
	assert.True(t, out[1].IsDuplicate)
	assert.True(t, out[2].IsDuplicate)
	assert.Equal(t, "m1", out[1].DuplicateOf)
	assert.Equal(t, "m1", out[2].DuplicateOf)
	assert.Equal(t, 2, stats.Removed)
	assert.InDelta(t, 66.67, stats.DedupPct, 1e-9)
}

func TestDedup_TieBrokenByTurnThenQuote(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 5, "sub", "опять сломалось", 0.8),
		mention("m2", "d1", 2, "sub", "Опять СЛОМАЛОСЬ", 0.8),
	}

	out, _ := Dedup(in)
	assert.True(t, out[0].IsDuplicate)
	assert.Equal(t, "m2", out[0].DuplicateOf)
	assert.False(t, out[1].IsDuplicate)

	// Same confidence and turn: lexicographically smallest quote wins.
	in = []model.Mention{
		mention("m3", "d1", 1, "sub", "б вариант", 0.8),
		mention("m4", "d1", 1, "sub", "Б ВАРИАНТ", 0.8),
	}
	out, _ = Dedup(in)
	assert.False(t, out[1].IsDuplicate, "uppercase quote sorts before lowercase")
	assert.True(t, out[0].IsDuplicate)
}

func TestDedup_ScopedToDialogAndSubtheme(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "subA", "дорого", 0.9),
		mention("m2", "d2", 1, "subA", "дорого", 0.9),
		mention("m3", "d1", 2, "subB", "дорого", 0.9),
	}

	out, stats := Dedup(in)
	for _, m := range out {
		assert.False(t, m.IsDuplicate)
	}
	assert.Equal(t, 0, stats.Removed)
	assert.Equal(t, 0.0, stats.DedupPct)
}

func TestDedup_InvalidEvidenceNeverGroups(t *testing.T) {
	a := mention("m1", "d1", 1, "sub", "", 0.9)
	b := mention("m2", "d1", 2, "sub", "  ", 0.8)
	a.InvalidEvidence = true
	b.InvalidEvidence = true

	out, stats := Dedup([]model.Mention{a, b})
	assert.False(t, out[0].IsDuplicate)
	assert.False(t, out[1].IsDuplicate)
	assert.Equal(t, 0, stats.Removed)
}

func TestDedup_Idempotent(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "не работает", 0.9),
		mention("m2", "d1", 2, "sub", "не работает", 0.5),
	}

	once, stats1 := Dedup(in)
	twice, stats2 := Dedup(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, stats1.Removed)
	assert.Equal(t, 1, stats2.Removed)
}

func TestDedupPct_Rounding(t *testing.T) {
	assert.InDelta(t, 66.67, DedupPct(3, 2), 1e-9)
	assert.InDelta(t, 33.33, DedupPct(3, 1), 1e-9)
	assert.Equal(t, 0.0, DedupPct(0, 0))
}

func TestFuzzyDedup_CollapsesAboveThreshold(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "доставка не пришла", 0.9),
		mention("m2", "d1", 2, "sub", "доставка так и не пришла", 0.7),
		mention("m3", "d1", 3, "sub", "вопрос по оплате", 0.8),
	}
	vectors := map[string][]float32{
		"m1": {1, 0, 0},
		"m2": {0.99, 0.14, 0}, // ~0.99 cosine with m1
		"m3": {0, 1, 0},
	}

	out, removed := FuzzyDedup(in, vectors, 0.92)
	require.Equal(t, 1, removed)
	assert.True(t, out[1].IsDuplicate)
	assert.Equal(t, "m1", out[1].DuplicateOf)
	assert.False(t, out[2].IsDuplicate)
}

func TestFuzzyDedup_NeverCrossesDialogs(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "одно и то же", 0.9),
		mention("m2", "d2", 1, "sub", "одно и то же почти", 0.8),
	}
	vectors := map[string][]float32{
		"m1": {1, 0},
		"m2": {1, 0},
	}

	_, removed := FuzzyDedup(in, vectors, 0.92)
	assert.Equal(t, 0, removed)
}

func TestFuzzyDedup_SkipsMentionsWithoutVectors(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "первый", 0.9),
		mention("m2", "d1", 2, "sub", "второй", 0.8),
	}
	vectors := map[string][]float32{"m1": {1, 0}}

	_, removed := FuzzyDedup(in, vectors, 0.5)
	assert.Equal(t, 0, removed)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosine(nil, nil))
}
