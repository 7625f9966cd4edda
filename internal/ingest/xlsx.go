package ingest

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

// xlsx feed columns, by header name.
var xlsxColumns = []string{
	"id", "dialog_id", "turn_id", "role", "label_type",
	"theme", "subtheme", "text_quote", "confidence",
}

// ReadXLSX parses an XLSX mention feed. The first row must be a header
// naming the columns; order does not matter and extras are ignored.
func ReadXLSX(path, batchID string, tax *taxonomy.Taxonomy, opts Options) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return &Result{}, nil
	}

	colIdx, err := headerIndex(sheet.Rows[0])
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i, row := range sheet.Rows[1:] {
		rec, err := rowToRecord(row, colIdx)
		if err != nil {
			res.Skipped++
			logSkip(path, i+2, err)
			continue
		}
		if err := finalize(rec, batchID, tax, opts, res); err != nil {
			res.Skipped++
			logSkip(path, i+2, err)
		}
	}
	return res, nil
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func headerIndex(row *xlsx.Row) (map[string]int, error) {
	idx := make(map[string]int, len(row.Cells))
	for j, cell := range row.Cells {
		idx[cell.String()] = j
	}
	for _, col := range []string{"dialog_id", "turn_id", "theme", "text_quote", "confidence"} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("ingest: xlsx header missing column %q", col)
		}
	}
	return idx, nil
}

func rowToRecord(row *xlsx.Row, colIdx map[string]int) (mentionRecord, error) {
	cell := func(name string) string {
		j, ok := colIdx[name]
		if !ok || j >= len(row.Cells) {
			return ""
		}
		return row.Cells[j].String()
	}

	turnID, err := strconv.Atoi(cell("turn_id"))
	if err != nil {
		return mentionRecord{}, eris.Wrap(err, "ingest: parse turn_id")
	}
	confidence, err := strconv.ParseFloat(cell("confidence"), 64)
	if err != nil {
		return mentionRecord{}, eris.Wrap(err, "ingest: parse confidence")
	}

	return mentionRecord{
		ID:         cell("id"),
		DialogID:   cell("dialog_id"),
		TurnID:     turnID,
		Role:       cell("role"),
		LabelType:  cell("label_type"),
		Theme:      cell("theme"),
		Subtheme:   cell("subtheme"),
		TextQuote:  cell("text_quote"),
		Confidence: confidence,
	}, nil
}
