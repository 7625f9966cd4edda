package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL DEFAULT '',
	total_dialogs INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'queued',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS mentions (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES batches(id),
	dialog_id        TEXT NOT NULL,
	turn_id          INTEGER NOT NULL,
	role             TEXT NOT NULL,
	label_type       TEXT NOT NULL,
	theme            TEXT NOT NULL,
	subtheme         TEXT NOT NULL DEFAULT '',
	text_quote       TEXT NOT NULL,
	confidence       REAL NOT NULL,
	quote_norm       TEXT NOT NULL DEFAULT '',
	invalid_evidence INTEGER NOT NULL DEFAULT 0,
	unclassified     INTEGER NOT NULL DEFAULT 0,
	is_duplicate     INTEGER NOT NULL DEFAULT 0,
	duplicate_of     TEXT,
	cluster_label    INTEGER,
	problem_id       TEXT
);

CREATE TABLE IF NOT EXISTS summary_themes (
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	theme         TEXT NOT NULL,
	dialog_count  INTEGER NOT NULL,
	mention_count INTEGER NOT NULL,
	share_pct     REAL NOT NULL,
	PRIMARY KEY (batch_id, theme)
);

CREATE TABLE IF NOT EXISTS summary_subthemes (
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	theme         TEXT NOT NULL,
	subtheme      TEXT NOT NULL,
	dialog_count  INTEGER NOT NULL,
	mention_count INTEGER NOT NULL,
	share_pct     REAL NOT NULL,
	PRIMARY KEY (batch_id, theme, subtheme)
);

CREATE TABLE IF NOT EXISTS problem_cards (
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	problem_id    TEXT NOT NULL,
	title         TEXT NOT NULL,
	dialog_count  INTEGER NOT NULL,
	mention_count INTEGER NOT NULL,
	share_pct     REAL NOT NULL,
	freq_per_1k   REAL NOT NULL,
	intensity_mpd REAL,
	PRIMARY KEY (batch_id, problem_id)
);

CREATE TABLE IF NOT EXISTS cooccurrence (
	batch_id TEXT NOT NULL REFERENCES batches(id),
	theme_a  TEXT NOT NULL,
	theme_b  TEXT NOT NULL,
	count    INTEGER NOT NULL,
	PRIMARY KEY (batch_id, theme_a, theme_b)
);

CREATE TABLE IF NOT EXISTS clusters (
	batch_id TEXT NOT NULL REFERENCES batches(id),
	theme    TEXT NOT NULL,
	subtheme TEXT NOT NULL,
	label    INTEGER NOT NULL,
	size     INTEGER NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (batch_id, theme, subtheme, label)
);

CREATE TABLE IF NOT EXISTS quality_reports (
	batch_id   TEXT PRIMARY KEY REFERENCES batches(id),
	report     TEXT NOT NULL,
	passed     INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mentions_batch ON mentions(batch_id);
CREATE INDEX IF NOT EXISTS idx_mentions_dialog ON mentions(batch_id, dialog_id);
CREATE INDEX IF NOT EXISTS idx_mentions_theme ON mentions(batch_id, theme, subtheme);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, batch model.Batch) error {
	now := time.Now().UTC()
	status := batch.Status
	if status == "" {
		status = model.BatchStatusQueued
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, source, total_dialogs, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source = excluded.source,
		   total_dialogs = excluded.total_dialogs,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		batch.ID, batch.Source, batch.TotalDialogs, string(status), now, now,
	)
	return eris.Wrap(err, "sqlite: create batch")
}

func (s *SQLiteStore) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch status %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, total_dialogs, status, created_at, updated_at FROM batches WHERE id = ?`,
		batchID,
	)
	var b model.Batch
	err := row.Scan(&b.ID, &b.Source, &b.TotalDialogs, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("batch not found: %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get batch")
	}
	return &b, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, total_dialogs, status, created_at, updated_at
		 FROM batches ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		var b model.Batch
		if err := rows.Scan(&b.ID, &b.Source, &b.TotalDialogs, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		batches = append(batches, b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

// ReplaceResults rewrites every output table of the batch inside one
// transaction. Either the whole run lands or none of it does.
func (s *SQLiteStore) ReplaceResults(ctx context.Context, result *model.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback()

	for _, table := range []string{
		"mentions", "summary_themes", "summary_subthemes",
		"problem_cards", "cooccurrence", "clusters", "quality_reports",
	} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE batch_id = ?`, result.BatchID); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}

	for _, m := range result.Mentions {
		var dupOf any
		if m.DuplicateOf != "" {
			dupOf = m.DuplicateOf
		}
		var clusterLabel any
		if m.ClusterLabel != nil {
			clusterLabel = *m.ClusterLabel
		}
		var problemID any
		if m.ProblemID != "" {
			problemID = m.ProblemID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mentions (id, batch_id, dialog_id, turn_id, role, label_type, theme, subtheme,
			   text_quote, confidence, quote_norm, invalid_evidence, unclassified, is_duplicate,
			   duplicate_of, cluster_label, problem_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, result.BatchID, m.DialogID, m.TurnID, string(m.Role), string(m.LabelType),
			m.Theme, m.Subtheme, m.TextQuote, m.Confidence, m.QuoteNorm,
			boolToInt(m.InvalidEvidence), boolToInt(m.Unclassified), boolToInt(m.IsDuplicate),
			dupOf, clusterLabel, problemID,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert mention")
		}
	}

	for _, t := range result.Summaries.Themes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO summary_themes (batch_id, theme, dialog_count, mention_count, share_pct)
			 VALUES (?, ?, ?, ?, ?)`,
			result.BatchID, t.Theme, t.DialogCount, t.MentionCount, t.ShareOfDialogsPct,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert theme summary")
		}
	}

	for _, t := range result.Summaries.Subthemes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO summary_subthemes (batch_id, theme, subtheme, dialog_count, mention_count, share_pct)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			result.BatchID, t.Theme, t.Subtheme, t.DialogCount, t.MentionCount, t.ShareOfDialogsPct,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert subtheme summary")
		}
	}

	for _, p := range result.Summaries.Problems {
		var intensity any
		if p.IntensityMPD != nil {
			intensity = *p.IntensityMPD
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO problem_cards (batch_id, problem_id, title, dialog_count, mention_count, share_pct, freq_per_1k, intensity_mpd)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.BatchID, p.ProblemID, p.Title, p.DialogCount, p.MentionCount,
			p.ShareOfDialogsPct, p.FreqPer1k, intensity,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert problem card")
		}
	}

	for _, c := range result.Summaries.Cooccurrence {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cooccurrence (batch_id, theme_a, theme_b, count) VALUES (?, ?, ?, ?)`,
			result.BatchID, c.ThemeA, c.ThemeB, c.Count,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert cooccurrence")
		}
	}

	for _, c := range result.Clusters {
		keywordsJSON, err := json.Marshal(c.Keywords)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal keywords")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (batch_id, theme, subtheme, label, size, keywords)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			result.BatchID, c.Theme, c.Subtheme, c.Label, c.Size, string(keywordsJSON),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert cluster")
		}
	}

	if result.Quality != nil {
		reportJSON, err := json.Marshal(result.Quality)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal quality report")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quality_reports (batch_id, report, passed, created_at) VALUES (?, ?, ?, ?)`,
			result.BatchID, string(reportJSON), boolToInt(result.Quality.Passed), result.Quality.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert quality report")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace")
}

func (s *SQLiteStore) Mentions(ctx context.Context, batchID string, filter MentionFilter) ([]model.Mention, error) {
	query := `SELECT id, batch_id, dialog_id, turn_id, role, label_type, theme, subtheme,
	           text_quote, confidence, quote_norm, invalid_evidence, unclassified, is_duplicate,
	           duplicate_of, cluster_label, problem_id
	          FROM mentions WHERE batch_id = ?`
	args := []any{batchID}

	if !filter.IncludeDuplicates {
		query += ` AND is_duplicate = 0`
	}
	if filter.Theme != "" {
		query += ` AND theme = ?`
		args = append(args, filter.Theme)
	}
	if filter.ProblemID != "" {
		query += ` AND problem_id = ?`
		args = append(args, filter.ProblemID)
	}
	query += ` ORDER BY dialog_id, turn_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query mentions")
	}
	defer rows.Close()

	var mentions []model.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, *m)
	}
	return mentions, eris.Wrap(rows.Err(), "sqlite: mentions iterate")
}

func (s *SQLiteStore) ThemeSummaries(ctx context.Context, batchID string) ([]model.ThemeSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT theme, dialog_count, mention_count, share_pct
		 FROM summary_themes WHERE batch_id = ? ORDER BY dialog_count DESC, theme`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query theme summaries")
	}
	defer rows.Close()

	var out []model.ThemeSummary
	for rows.Next() {
		var t model.ThemeSummary
		if err := rows.Scan(&t.Theme, &t.DialogCount, &t.MentionCount, &t.ShareOfDialogsPct); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan theme summary")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: theme summaries iterate")
}

func (s *SQLiteStore) SubthemeSummaries(ctx context.Context, batchID string) ([]model.SubthemeSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT theme, subtheme, dialog_count, mention_count, share_pct
		 FROM summary_subthemes WHERE batch_id = ? ORDER BY dialog_count DESC, theme, subtheme`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query subtheme summaries")
	}
	defer rows.Close()

	var out []model.SubthemeSummary
	for rows.Next() {
		var t model.SubthemeSummary
		if err := rows.Scan(&t.Theme, &t.Subtheme, &t.DialogCount, &t.MentionCount, &t.ShareOfDialogsPct); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subtheme summary")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: subtheme summaries iterate")
}

func (s *SQLiteStore) ProblemCards(ctx context.Context, batchID string) ([]model.ProblemCard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT problem_id, title, dialog_count, mention_count, share_pct, freq_per_1k, intensity_mpd
		 FROM problem_cards WHERE batch_id = ? ORDER BY dialog_count DESC, problem_id`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query problem cards")
	}
	defer rows.Close()

	var out []model.ProblemCard
	for rows.Next() {
		var p model.ProblemCard
		var intensity sql.NullFloat64
		if err := rows.Scan(&p.ProblemID, &p.Title, &p.DialogCount, &p.MentionCount,
			&p.ShareOfDialogsPct, &p.FreqPer1k, &intensity); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan problem card")
		}
		if intensity.Valid {
			v := intensity.Float64
			p.IntensityMPD = &v
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: problem cards iterate")
}

func (s *SQLiteStore) Cooccurrence(ctx context.Context, batchID string) ([]model.Cooccurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT theme_a, theme_b, count FROM cooccurrence
		 WHERE batch_id = ? ORDER BY count DESC, theme_a, theme_b`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query cooccurrence")
	}
	defer rows.Close()

	var out []model.Cooccurrence
	for rows.Next() {
		var c model.Cooccurrence
		if err := rows.Scan(&c.ThemeA, &c.ThemeB, &c.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cooccurrence")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: cooccurrence iterate")
}

func (s *SQLiteStore) Clusters(ctx context.Context, batchID string) ([]model.ClusterInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT theme, subtheme, label, size, keywords FROM clusters
		 WHERE batch_id = ? ORDER BY theme, subtheme, label`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query clusters")
	}
	defer rows.Close()

	var out []model.ClusterInfo
	for rows.Next() {
		var c model.ClusterInfo
		var keywordsJSON string
		if err := rows.Scan(&c.Theme, &c.Subtheme, &c.Label, &c.Size, &keywordsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cluster")
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &c.Keywords); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: clusters iterate")
}

func (s *SQLiteStore) QualityReport(ctx context.Context, batchID string) (*model.QualityReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT report FROM quality_reports WHERE batch_id = ?`,
		batchID,
	)
	var reportJSON string
	err := row.Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get quality report")
	}
	var report model.QualityReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal quality report")
	}
	return &report, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMention(row scannable) (*model.Mention, error) {
	var m model.Mention
	var role, labelType string
	var invalidEvidence, unclassified, isDuplicate int
	var dupOf, problemID sql.NullString
	var clusterLabel sql.NullInt64

	err := row.Scan(&m.ID, &m.BatchID, &m.DialogID, &m.TurnID, &role, &labelType,
		&m.Theme, &m.Subtheme, &m.TextQuote, &m.Confidence, &m.QuoteNorm,
		&invalidEvidence, &unclassified, &isDuplicate, &dupOf, &clusterLabel, &problemID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan mention")
	}

	m.Role = model.Role(role)
	m.LabelType = model.LabelType(labelType)
	m.InvalidEvidence = invalidEvidence != 0
	m.Unclassified = unclassified != 0
	m.IsDuplicate = isDuplicate != 0
	if dupOf.Valid {
		m.DuplicateOf = dupOf.String
	}
	if problemID.Valid {
		m.ProblemID = problemID.String
	}
	if clusterLabel.Valid {
		v := int(clusterLabel.Int64)
		m.ClusterLabel = &v
	}
	return &m, nil
}
