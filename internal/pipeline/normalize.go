package pipeline

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

var quoteFolder = cases.Fold()

// NormalizeQuote produces the comparison form of a quote: trimmed, internal
// whitespace runs collapsed to a single space, Unicode case-folded.
func NormalizeQuote(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return quoteFolder.String(s)
}

// Normalize returns a new mention set with QuoteNorm filled in. TextQuote is
// left untouched; it stays the audit-visible original. Mentions with an
// empty or whitespace-only quote are flagged invalid evidence but kept;
// dropping them is a downstream policy decision, and the quality gate must
// still count them.
func Normalize(in []model.Mention) []model.Mention {
	out := make([]model.Mention, len(in))
	for i, m := range in {
		m.QuoteNorm = NormalizeQuote(m.TextQuote)
		m.InvalidEvidence = m.QuoteNorm == ""
		out[i] = m
	}
	return out
}
