// Package ingest parses mention feeds (JSONL, CSV, XLSX) and the role/turn
// index. Malformed records are skipped and counted, never fatal; taxonomy
// violations flag the mention unclassified and keep it.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

// Options configures feed parsing.
type Options struct {
	// MaskPII replaces phone numbers and emails in quotes while reading, so
	// the masked form is the only one the pipeline ever sees. Off by default.
	MaskPII bool

	// SheetName and SheetIndex select the worksheet for XLSX feeds.
	SheetName  string
	SheetIndex int
}

// Result is a parsed feed plus its accounting.
type Result struct {
	Mentions     []model.Mention
	Skipped      int // malformed records dropped
	Unclassified int // kept mentions outside the taxonomy
}

// ReadMentions parses the feed at path, dispatching on the file extension.
// Every mention is stamped with batchID and validated against tax.
func ReadMentions(path, batchID string, tax *taxonomy.Taxonomy, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return ReadJSONL(path, batchID, tax, opts)
	case ".csv":
		return ReadCSV(path, batchID, tax, opts)
	case ".xlsx":
		return ReadXLSX(path, batchID, tax, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported feed format %q", filepath.Ext(path))
	}
}

// mentionRecord is the raw on-wire shape shared by the JSONL and CSV feeds.
type mentionRecord struct {
	ID         string  `json:"id" csv:"id,omitempty"`
	DialogID   string  `json:"dialog_id" csv:"dialog_id"`
	TurnID     int     `json:"turn_id" csv:"turn_id"`
	Role       string  `json:"role" csv:"role"`
	LabelType  string  `json:"label_type" csv:"label_type"`
	Theme      string  `json:"theme" csv:"theme"`
	Subtheme   string  `json:"subtheme" csv:"subtheme"`
	TextQuote  string  `json:"text_quote" csv:"text_quote"`
	Confidence float64 `json:"confidence" csv:"confidence"`
}

// finalize turns a raw record into a model.Mention, applying PII masking and
// taxonomy validation. Returns an error for records too broken to keep.
func finalize(rec mentionRecord, batchID string, tax *taxonomy.Taxonomy, opts Options, res *Result) error {
	if rec.DialogID == "" {
		return eris.New("ingest: record missing dialog_id")
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return eris.Errorf("ingest: confidence %v out of [0,1]", rec.Confidence)
	}

	quote := rec.TextQuote
	if opts.MaskPII {
		quote = MaskPII(quote)
	}

	m := model.Mention{
		ID:         rec.ID,
		BatchID:    batchID,
		DialogID:   rec.DialogID,
		TurnID:     rec.TurnID,
		Role:       model.ParseRole(rec.Role),
		LabelType:  model.ParseLabelType(rec.LabelType),
		Theme:      rec.Theme,
		Subtheme:   rec.Subtheme,
		TextQuote:  quote,
		Confidence: rec.Confidence,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if tax != nil && !tax.Valid(m.Theme, m.Subtheme) {
		m.Unclassified = true
		res.Unclassified++
	}

	res.Mentions = append(res.Mentions, m)
	return nil
}

func logSkip(path string, line int, err error) {
	zap.L().Warn("skipping malformed record",
		zap.String("path", path),
		zap.Int("record", line),
		zap.Error(err))
}
