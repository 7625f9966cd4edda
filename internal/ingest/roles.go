package ingest

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

type roleRecord struct {
	DialogID string `csv:"dialog_id"`
	TurnID   int    `csv:"turn_id"`
	Role     string `csv:"role"`
}

// ReadRoles parses the role/turn index CSV supplied by the dialog exporter.
// Columns: dialog_id, turn_id, role. Duplicate turns keep the last entry.
func ReadRoles(path string) (model.RoleIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open roles")
	}
	defer f.Close()

	return parseRoles(f, path)
}

func parseRoles(r io.Reader, path string) (model.RoleIndex, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: roles header")
	}

	idx := make(model.RoleIndex)
	record := 0
	skipped := 0
	for {
		record++
		var rec roleRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			logSkip(path, record, err)
			continue
		}
		if rec.DialogID == "" {
			skipped++
			logSkip(path, record, eris.New("ingest: role record missing dialog_id"))
			continue
		}
		idx[model.RoleKey{DialogID: rec.DialogID, TurnID: rec.TurnID}] = model.ParseRole(rec.Role)
	}
	if skipped > 0 {
		zap.L().Warn("role index parsed with skips",
			zap.String("path", path),
			zap.Int("skipped", skipped),
			zap.Int("turns", len(idx)))
	}
	return idx, nil
}
