package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// anyArgs returns n AnyArg matchers; pgxmock requires the argument count
// to match even when the values are not being asserted.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_GetBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, source, total_dialogs, status, created_at, updated_at FROM batches`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "total_dialogs", "status", "created_at", "updated_at"}).
			AddRow("b1", "feed.jsonl", 84, "complete", now, now))

	batch, err := s.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", batch.ID)
	assert.Equal(t, model.BatchStatusComplete, batch.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, total_dialogs, status, created_at, updated_at FROM batches`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatch(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateBatch_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO batches .* ON CONFLICT`).
		WithArgs("b1", "feed.jsonl", 84, "queued", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateBatch(context.Background(), testBatch("b1"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateBatchStatus_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE batches SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateBatchStatus(context.Background(), "nope", model.BatchStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QualityReport_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report FROM quality_reports`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	report, err := s.QualityReport(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QualityReport_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report FROM quality_reports`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"report"}).
			AddRow([]byte(`{"batch_id":"b1","passed":true,"checks":[{"name":"dedup_pct","value":0.5,"threshold":1,"passed":true}]}`)))

	report, err := s.QualityReport(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Passed)
	assert.Equal(t, 0.5, report.Check(model.CheckDedup).Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceResults_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	result := testRunResult("b1")

	mock.ExpectBegin()
	for range []string{
		"mentions", "summary_themes", "summary_subthemes",
		"problem_cards", "cooccurrence", "clusters", "quality_reports",
	} {
		mock.ExpectExec(`DELETE FROM`).
			WithArgs("b1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}
	mock.ExpectCopyFrom(pgx.Identifier{"mentions"}, []string{
		"id", "batch_id", "dialog_id", "turn_id", "role", "label_type", "theme", "subtheme",
		"text_quote", "confidence", "quote_norm", "invalid_evidence", "unclassified",
		"is_duplicate", "duplicate_of", "cluster_label", "problem_id",
	}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO summary_themes`).
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO summary_subthemes`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO problem_cards`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO problem_cards`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO cooccurrence`).
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO clusters`).
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO quality_reports`).
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ReplaceResults(context.Background(), result)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceResults_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).
		WithArgs("b1").
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	err := s.ReplaceResults(context.Background(), testRunResult("b1"))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ThemeSummaries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT theme, dialog_count, mention_count, share_pct`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"theme", "dialog_count", "mention_count", "share_pct"}).
			AddRow("доставка", 20, 31, 23.8))

	rows, err := s.ThemeSummaries(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 23.8, rows[0].ShareOfDialogsPct)
	assert.NoError(t, mock.ExpectationsWereMet())
}
