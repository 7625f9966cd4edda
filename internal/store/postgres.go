package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/denirokp/dialogs-rag-v3/internal/db"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL DEFAULT '',
	total_dialogs INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'queued',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
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
	confidence       DOUBLE PRECISION NOT NULL,
	quote_norm       TEXT NOT NULL DEFAULT '',
	invalid_evidence BOOLEAN NOT NULL DEFAULT FALSE,
	unclassified     BOOLEAN NOT NULL DEFAULT FALSE,
	is_duplicate     BOOLEAN NOT NULL DEFAULT FALSE,
	duplicate_of     TEXT,
	cluster_label    INTEGER,
	problem_id       TEXT
);

CREATE TABLE IF NOT EXISTS summary_themes (
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	theme         TEXT NOT NULL,
	dialog_count  INTEGER NOT NULL,
	mention_count INTEGER NOT NULL,
	share_pct     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (batch_id, theme)
);

CREATE TABLE IF NOT EXISTS summary_subthemes (
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	theme         TEXT NOT NULL,
	subtheme      TEXT NOT NULL,
	dialog_count  INTEGER NOT NULL,
	mention_count INTEGER NOT NULL,
	share_pct     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (batch_id, theme, subtheme)
);

CREATE TABLE IF NOT EXISTS problem_cards (
	batch_id      TEXT NOT NULL REFERENCES batches(id),
	problem_id    TEXT NOT NULL,
	title         TEXT NOT NULL,
	dialog_count  INTEGER NOT NULL,
	mention_count INTEGER NOT NULL,
	share_pct     DOUBLE PRECISION NOT NULL,
	freq_per_1k   DOUBLE PRECISION NOT NULL,
	intensity_mpd DOUBLE PRECISION,
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
	keywords JSONB NOT NULL DEFAULT '[]',
	PRIMARY KEY (batch_id, theme, subtheme, label)
);

CREATE TABLE IF NOT EXISTS quality_reports (
	batch_id   TEXT PRIMARY KEY REFERENCES batches(id),
	report     JSONB NOT NULL,
	passed     BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_mentions_batch ON mentions(batch_id);
CREATE INDEX IF NOT EXISTS idx_mentions_dialog ON mentions(batch_id, dialog_id);
CREATE INDEX IF NOT EXISTS idx_mentions_theme ON mentions(batch_id, theme, subtheme);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch model.Batch) error {
	now := time.Now().UTC()
	status := batch.Status
	if status == "" {
		status = model.BatchStatusQueued
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, source, total_dialogs, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   source = EXCLUDED.source,
		   total_dialogs = EXCLUDED.total_dialogs,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		batch.ID, batch.Source, batch.TotalDialogs, string(status), now,
	)
	return eris.Wrap(err, "postgres: create batch")
}

func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch status %s", batchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("batch not found: %s", batchID)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, total_dialogs, status, created_at, updated_at FROM batches WHERE id = $1`,
		batchID,
	)
	var b model.Batch
	var status string
	err := row.Scan(&b.ID, &b.Source, &b.TotalDialogs, &status, &b.CreatedAt, &b.UpdatedAt)
	b.Status = model.BatchStatus(status)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("batch not found: %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get batch")
	}
	return &b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, total_dialogs, status, created_at, updated_at
		 FROM batches ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		var b model.Batch
		var status string
		if err := rows.Scan(&b.ID, &b.Source, &b.TotalDialogs, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		b.Status = model.BatchStatus(status)
		batches = append(batches, b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

// ReplaceResults rewrites every output table for the batch in one
// transaction, using COPY for the mention bulk load.
func (s *PostgresStore) ReplaceResults(ctx context.Context, result *model.RunResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace")
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{
		"mentions", "summary_themes", "summary_subthemes",
		"problem_cards", "cooccurrence", "clusters", "quality_reports",
	} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE batch_id = $1`, result.BatchID); err != nil {
			return eris.Wrapf(err, "postgres: clear %s", table)
		}
	}

	mentionRows := make([][]any, 0, len(result.Mentions))
	for _, m := range result.Mentions {
		var dupOf, problemID *string
		if m.DuplicateOf != "" {
			v := m.DuplicateOf
			dupOf = &v
		}
		if m.ProblemID != "" {
			v := m.ProblemID
			problemID = &v
		}
		mentionRows = append(mentionRows, []any{
			m.ID, result.BatchID, m.DialogID, m.TurnID, string(m.Role), string(m.LabelType),
			m.Theme, m.Subtheme, m.TextQuote, m.Confidence, m.QuoteNorm,
			m.InvalidEvidence, m.Unclassified, m.IsDuplicate,
			dupOf, m.ClusterLabel, problemID,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "mentions", []string{
		"id", "batch_id", "dialog_id", "turn_id", "role", "label_type", "theme", "subtheme",
		"text_quote", "confidence", "quote_norm", "invalid_evidence", "unclassified",
		"is_duplicate", "duplicate_of", "cluster_label", "problem_id",
	}, mentionRows); err != nil {
		return eris.Wrap(err, "postgres: copy mentions")
	}

	for _, t := range result.Summaries.Themes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO summary_themes (batch_id, theme, dialog_count, mention_count, share_pct)
			 VALUES ($1, $2, $3, $4, $5)`,
			result.BatchID, t.Theme, t.DialogCount, t.MentionCount, t.ShareOfDialogsPct,
		); err != nil {
			return eris.Wrap(err, "postgres: insert theme summary")
		}
	}

	for _, t := range result.Summaries.Subthemes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO summary_subthemes (batch_id, theme, subtheme, dialog_count, mention_count, share_pct)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			result.BatchID, t.Theme, t.Subtheme, t.DialogCount, t.MentionCount, t.ShareOfDialogsPct,
		); err != nil {
			return eris.Wrap(err, "postgres: insert subtheme summary")
		}
	}

	for _, p := range result.Summaries.Problems {
		if _, err := tx.Exec(ctx,
			`INSERT INTO problem_cards (batch_id, problem_id, title, dialog_count, mention_count, share_pct, freq_per_1k, intensity_mpd)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			result.BatchID, p.ProblemID, p.Title, p.DialogCount, p.MentionCount,
			p.ShareOfDialogsPct, p.FreqPer1k, p.IntensityMPD,
		); err != nil {
			return eris.Wrap(err, "postgres: insert problem card")
		}
	}

	for _, c := range result.Summaries.Cooccurrence {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cooccurrence (batch_id, theme_a, theme_b, count) VALUES ($1, $2, $3, $4)`,
			result.BatchID, c.ThemeA, c.ThemeB, c.Count,
		); err != nil {
			return eris.Wrap(err, "postgres: insert cooccurrence")
		}
	}

	for _, c := range result.Clusters {
		keywordsJSON, err := json.Marshal(c.Keywords)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal keywords")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO clusters (batch_id, theme, subtheme, label, size, keywords)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			result.BatchID, c.Theme, c.Subtheme, c.Label, c.Size, string(keywordsJSON),
		); err != nil {
			return eris.Wrap(err, "postgres: insert cluster")
		}
	}

	if result.Quality != nil {
		reportJSON, err := json.Marshal(result.Quality)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal quality report")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO quality_reports (batch_id, report, passed, created_at) VALUES ($1, $2, $3, $4)`,
			result.BatchID, string(reportJSON), result.Quality.Passed, result.Quality.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert quality report")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace")
}

func (s *PostgresStore) Mentions(ctx context.Context, batchID string, filter MentionFilter) ([]model.Mention, error) {
	query := `SELECT id, batch_id, dialog_id, turn_id, role, label_type, theme, subtheme,
	           text_quote, confidence, quote_norm, invalid_evidence, unclassified, is_duplicate,
	           duplicate_of, cluster_label, problem_id
	          FROM mentions WHERE batch_id = $1`
	args := []any{batchID}

	if !filter.IncludeDuplicates {
		query += ` AND is_duplicate = FALSE`
	}
	if filter.Theme != "" {
		args = append(args, filter.Theme)
		query += ` AND theme = $` + strconv.Itoa(len(args))
	}
	if filter.ProblemID != "" {
		args = append(args, filter.ProblemID)
		query += ` AND problem_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY dialog_id, turn_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query mentions")
	}
	defer rows.Close()

	var mentions []model.Mention
	for rows.Next() {
		m, err := scanPgMention(rows)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, *m)
	}
	return mentions, eris.Wrap(rows.Err(), "postgres: mentions iterate")
}

func (s *PostgresStore) ThemeSummaries(ctx context.Context, batchID string) ([]model.ThemeSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT theme, dialog_count, mention_count, share_pct
		 FROM summary_themes WHERE batch_id = $1 ORDER BY dialog_count DESC, theme`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query theme summaries")
	}
	defer rows.Close()

	var out []model.ThemeSummary
	for rows.Next() {
		var t model.ThemeSummary
		if err := rows.Scan(&t.Theme, &t.DialogCount, &t.MentionCount, &t.ShareOfDialogsPct); err != nil {
			return nil, eris.Wrap(err, "postgres: scan theme summary")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: theme summaries iterate")
}

func (s *PostgresStore) SubthemeSummaries(ctx context.Context, batchID string) ([]model.SubthemeSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT theme, subtheme, dialog_count, mention_count, share_pct
		 FROM summary_subthemes WHERE batch_id = $1 ORDER BY dialog_count DESC, theme, subtheme`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query subtheme summaries")
	}
	defer rows.Close()

	var out []model.SubthemeSummary
	for rows.Next() {
		var t model.SubthemeSummary
		if err := rows.Scan(&t.Theme, &t.Subtheme, &t.DialogCount, &t.MentionCount, &t.ShareOfDialogsPct); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subtheme summary")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: subtheme summaries iterate")
}

func (s *PostgresStore) ProblemCards(ctx context.Context, batchID string) ([]model.ProblemCard, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT problem_id, title, dialog_count, mention_count, share_pct, freq_per_1k, intensity_mpd
		 FROM problem_cards WHERE batch_id = $1 ORDER BY dialog_count DESC, problem_id`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query problem cards")
	}
	defer rows.Close()

	var out []model.ProblemCard
	for rows.Next() {
		var p model.ProblemCard
		if err := rows.Scan(&p.ProblemID, &p.Title, &p.DialogCount, &p.MentionCount,
			&p.ShareOfDialogsPct, &p.FreqPer1k, &p.IntensityMPD); err != nil {
			return nil, eris.Wrap(err, "postgres: scan problem card")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: problem cards iterate")
}

func (s *PostgresStore) Cooccurrence(ctx context.Context, batchID string) ([]model.Cooccurrence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT theme_a, theme_b, count FROM cooccurrence
		 WHERE batch_id = $1 ORDER BY count DESC, theme_a, theme_b`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query cooccurrence")
	}
	defer rows.Close()

	var out []model.Cooccurrence
	for rows.Next() {
		var c model.Cooccurrence
		if err := rows.Scan(&c.ThemeA, &c.ThemeB, &c.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cooccurrence")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: cooccurrence iterate")
}

func (s *PostgresStore) Clusters(ctx context.Context, batchID string) ([]model.ClusterInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT theme, subtheme, label, size, keywords FROM clusters
		 WHERE batch_id = $1 ORDER BY theme, subtheme, label`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query clusters")
	}
	defer rows.Close()

	var out []model.ClusterInfo
	for rows.Next() {
		var c model.ClusterInfo
		var keywordsJSON []byte
		if err := rows.Scan(&c.Theme, &c.Subtheme, &c.Label, &c.Size, &keywordsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cluster")
		}
		if err := json.Unmarshal(keywordsJSON, &c.Keywords); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal keywords")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: clusters iterate")
}

func (s *PostgresStore) QualityReport(ctx context.Context, batchID string) (*model.QualityReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT report FROM quality_reports WHERE batch_id = $1`,
		batchID,
	)
	var reportJSON []byte
	err := row.Scan(&reportJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get quality report")
	}
	var report model.QualityReport
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal quality report")
	}
	return &report, nil
}

func scanPgMention(row scannable) (*model.Mention, error) {
	var m model.Mention
	var role, labelType string
	var dupOf, problemID *string
	var clusterLabel *int

	err := row.Scan(&m.ID, &m.BatchID, &m.DialogID, &m.TurnID, &role, &labelType,
		&m.Theme, &m.Subtheme, &m.TextQuote, &m.Confidence, &m.QuoteNorm,
		&m.InvalidEvidence, &m.Unclassified, &m.IsDuplicate, &dupOf, &clusterLabel, &problemID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan mention")
	}

	m.Role = model.Role(role)
	m.LabelType = model.LabelType(labelType)
	if dupOf != nil {
		m.DuplicateOf = *dupOf
	}
	if problemID != nil {
		m.ProblemID = *problemID
	}
	m.ClusterLabel = clusterLabel
	return &m, nil
}
