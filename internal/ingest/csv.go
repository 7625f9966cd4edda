package ingest

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

// ReadCSV parses a CSV mention feed. The first row is the header; column
// names follow the JSONL field names.
func ReadCSV(path, batchID string, tax *taxonomy.Taxonomy, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close()

	return parseCSV(f, path, batchID, tax, opts)
}

func parseCSV(r io.Reader, path, batchID string, tax *taxonomy.Taxonomy, opts Options) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: csv header")
	}

	res := &Result{}
	record := 0
	for {
		record++
		var rec mentionRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Skipped++
			logSkip(path, record, err)
			continue
		}
		if err := finalize(rec, batchID, tax, opts, res); err != nil {
			res.Skipped++
			logSkip(path, record, err)
		}
	}
	return res, nil
}
