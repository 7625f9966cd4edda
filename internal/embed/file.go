package embed

import (
	"bufio"
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// FileProvider reads precomputed vectors from a JSONL file, one record per
// line: {"id": "<mention id>", "vector": [...]}.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider backed by a JSONL vector file.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

type vectorRecord struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// Vectors returns the vectors for the requested mentions. Records for
// unknown mentions are ignored; malformed lines are skipped and counted.
func (p *FileProvider) Vectors(_ context.Context, mentions []model.Mention) (map[string][]float32, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, eris.Wrap(err, "embed: open vector file")
	}
	defer f.Close()

	wanted := make(map[string]struct{}, len(mentions))
	for _, m := range mentions {
		wanted[m.ID] = struct{}{}
	}

	out := make(map[string][]float32)
	malformed := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec vectorRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" || len(rec.Vector) == 0 {
			malformed++
			continue
		}
		if _, ok := wanted[rec.ID]; ok {
			out[rec.ID] = rec.Vector
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "embed: scan vector file")
	}

	if malformed > 0 {
		zap.L().Warn("embed: skipped malformed vector records",
			zap.String("path", p.path),
			zap.Int("malformed", malformed),
		)
	}
	return out, nil
}
