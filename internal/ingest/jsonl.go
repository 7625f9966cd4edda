package ingest

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

// jsonl lines can carry long quotes; 16MB covers any realistic record.
const maxLineBytes = 16 << 20

// ReadJSONL parses a JSON-lines mention feed.
func ReadJSONL(path, batchID string, tax *taxonomy.Taxonomy, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open jsonl")
	}
	defer f.Close()

	res, err := parseJSONL(f, path, batchID, tax, opts)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func parseJSONL(r io.Reader, path, batchID string, tax *taxonomy.Taxonomy, opts Options) (*Result, error) {
	res := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec mentionRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			res.Skipped++
			logSkip(path, line, err)
			continue
		}
		if err := finalize(rec, batchID, tax, opts, res); err != nil {
			res.Skipped++
			logSkip(path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: scan jsonl")
	}
	return res, nil
}
