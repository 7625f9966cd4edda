// Package store persists the pipeline's output tables. All tables are
// keyed by batch and replaced wholesale per run: readers never observe a
// partially written batch.
package store

import (
	"context"

	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// MentionFilter selects rows from the mention table.
type MentionFilter struct {
	// IncludeDuplicates keeps rows the deduplicator marked duplicate. The
	// audit trail retains them; summary consumers usually want them out.
	IncludeDuplicates bool
	Theme             string
	ProblemID         string
	Limit             int
}

// Store defines the persistence interface for the consolidation pipeline.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, batch model.Batch) error
	UpdateBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)

	// ReplaceResults atomically replaces every output table for the
	// result's batch: mentions, summaries, problem cards, co-occurrence,
	// clusters, and the quality report.
	ReplaceResults(ctx context.Context, result *model.RunResult) error

	// Output tables
	Mentions(ctx context.Context, batchID string, filter MentionFilter) ([]model.Mention, error)
	ThemeSummaries(ctx context.Context, batchID string) ([]model.ThemeSummary, error)
	SubthemeSummaries(ctx context.Context, batchID string) ([]model.SubthemeSummary, error)
	ProblemCards(ctx context.Context, batchID string) ([]model.ProblemCard, error)
	Cooccurrence(ctx context.Context, batchID string) ([]model.Cooccurrence, error)
	Clusters(ctx context.Context, batchID string) ([]model.ClusterInfo, error)
	QualityReport(ctx context.Context, batchID string) (*model.QualityReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
