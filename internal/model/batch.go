package model

import "time"

// BatchStatus represents the current state of a pipeline run over a batch.
type BatchStatus string

const (
	BatchStatusQueued        BatchStatus = "queued"
	BatchStatusNormalizing   BatchStatus = "normalizing"
	BatchStatusDeduplicating BatchStatus = "deduplicating"
	BatchStatusEnriching     BatchStatus = "enriching"
	BatchStatusConsolidating BatchStatus = "consolidating"
	BatchStatusAggregating   BatchStatus = "aggregating"
	BatchStatusGating        BatchStatus = "gating"
	BatchStatusComplete      BatchStatus = "complete"
	BatchStatusFailed        BatchStatus = "failed"
)

// Batch identifies one immutable input set and its pipeline run.
type Batch struct {
	ID           string      `json:"id"`
	Source       string      `json:"source"`
	TotalDialogs int         `json:"total_dialogs"`
	Status       BatchStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// StageStatus represents the outcome of one pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a single pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunResult is the final output of one pipeline run over a batch.
type RunResult struct {
	BatchID   string         `json:"batch_id"`
	Mentions  []Mention      `json:"mentions"`
	Summaries Summaries      `json:"summaries"`
	Clusters  []ClusterInfo  `json:"clusters,omitempty"`
	Quality   *QualityReport `json:"quality"`
	Stages    []StageResult  `json:"stages"`
	Report    string         `json:"report,omitempty"`
}
