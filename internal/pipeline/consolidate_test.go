package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/rules"
)

func testTable(t *testing.T) *rules.Table {
	t.Helper()
	table, err := rules.New([]rules.Rule{
		{
			ID:    "late_delivery",
			Title: "Срыв сроков доставки",
			Match: []rules.MatchPattern{{Theme: "доставка", Subtheme: "срыв сроков"}},
		},
		{
			ID:    "payment_any",
			Title: "Проблемы с оплатой",
			Match: []rules.MatchPattern{{Theme: "оплата", Subtheme: "*"}},
		},
	})
	require.NoError(t, err)
	return table
}

func TestConsolidate_StampsProblemID(t *testing.T) {
	table := testTable(t)
	in := []model.Mention{
		countedMention("m1", "d1", 1, "доставка", "срыв сроков", ""),
		countedMention("m2", "d1", 2, "оплата", "двойное списание", ""),
	}

	out, titles := Consolidate(in, table)
	assert.Equal(t, "late_delivery", out[0].ProblemID)
	assert.Equal(t, "payment_any", out[1].ProblemID)
	assert.Equal(t, "Срыв сроков доставки", titles["late_delivery"])
	assert.Equal(t, "Проблемы с оплатой", titles["payment_any"])
}

func TestConsolidate_UnmappedBucket(t *testing.T) {
	table := testTable(t)
	in := []model.Mention{
		countedMention("m1", "d1", 1, "интерфейс", "медленно", ""),
	}

	out, titles := Consolidate(in, table)
	assert.Equal(t, model.UnmappedProblemID, out[0].ProblemID)
	assert.Equal(t, model.UnmappedProblemTitle, titles[model.UnmappedProblemID])
}

func TestConsolidate_KeyNormalization(t *testing.T) {
	table := testTable(t)
	in := []model.Mention{
		countedMention("m1", "d1", 1, "ДОСТАВКА", "Срыв — сроков", ""),
	}
	// The em dash unifies to "-", which is not the plain pair; but case and
	// whitespace alone must still join.
	in = append(in, countedMention("m2", "d1", 2, "  Доставка ", "СРЫВ  СРОКОВ", ""))

	out, _ := Consolidate(in, table)
	assert.Equal(t, model.UnmappedProblemID, out[0].ProblemID)
	assert.Equal(t, "late_delivery", out[1].ProblemID)
}

func TestConsolidate_SkipsDuplicates(t *testing.T) {
	table := testTable(t)
	dup := countedMention("m1", "d1", 1, "доставка", "срыв сроков", "")
	dup.IsDuplicate = true

	out, _ := Consolidate([]model.Mention{dup}, table)
	assert.Empty(t, out[0].ProblemID)
}

func TestConsolidate_UnmatchedRulesGetTitles(t *testing.T) {
	table := testTable(t)

	_, titles := Consolidate(nil, table)
	assert.Equal(t, "Срыв сроков доставки", titles["late_delivery"])
	assert.Equal(t, "Проблемы с оплатой", titles["payment_any"])
	assert.Len(t, titles, 3) // both rules plus the unmapped bucket
}
