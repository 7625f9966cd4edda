// Package pipeline implements the consolidation core: a linear batch run
// that normalizes, deduplicates, optionally enriches, consolidates,
// aggregates, and quality-gates a batch of extracted mentions. Every stage
// is a pure function over the previous stage's output; outputs are written
// once, wholesale, at the end of the run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/embed"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/rules"
	"github.com/denirokp/dialogs-rag-v3/internal/store"
)

// Pipeline orchestrates one batch run end to end.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	rules    *rules.Table
	embedder embed.Provider
}

// New creates a Pipeline. The rule table must already be validated: rule
// loading fails fast on overlap, before any mention is processed.
func New(cfg *config.Config, st store.Store, table *rules.Table, embedder embed.Provider) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		rules:    table,
		embedder: embedder,
	}
}

// Run executes the full pipeline for one batch of mentions. The run always
// completes and always emits a quality report; a failing gate verdict is
// data, not an error. Only storage failures abort.
func (p *Pipeline) Run(ctx context.Context, batch model.Batch, mentions []model.Mention, roles model.RoleIndex) (*model.RunResult, error) {
	log := zap.L().With(zap.String("batch", batch.ID))
	log.Info("pipeline: starting run",
		zap.Int("mentions", len(mentions)),
		zap.Int("dialogs", batch.TotalDialogs),
	)

	if err := p.store.CreateBatch(ctx, batch); err != nil {
		return nil, eris.Wrap(err, "pipeline: create batch")
	}

	setStatus := func(status model.BatchStatus) {
		if err := p.store.UpdateBatchStatus(ctx, batch.ID, status); err != nil {
			log.Warn("pipeline: failed to update batch status", zap.Error(err))
		}
	}

	result := &model.RunResult{BatchID: batch.ID}
	trackStage := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		stage := model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: time.Since(start).Milliseconds(),
			Metadata: meta,
		}
		if err != nil {
			stage.Status = model.StageStatusFailed
			stage.Error = err.Error()
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Error(err))
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", stage.Duration),
			)
		}
		result.Stages = append(result.Stages, stage)
		return err
	}

	// Stage 1: Normalize.
	setStatus(model.BatchStatusNormalizing)
	current := mentions
	_ = trackStage("normalize", func() (map[string]any, error) {
		current = Normalize(current)
		invalid := 0
		for _, m := range current {
			if m.InvalidEvidence {
				invalid++
			}
		}
		return map[string]any{"mentions": len(current), "invalid_evidence": invalid}, nil
	})

	// Stage 2: Dedup. Counts downstream are only trustworthy once this
	// stage has finalized.
	setStatus(model.BatchStatusDeduplicating)
	var stats DedupStats
	_ = trackStage("dedup", func() (map[string]any, error) {
		current, stats = Dedup(current)
		if p.cfg.Dedup.Fuzzy {
			fuzzyRemoved := p.fuzzyDedup(ctx, &current)
			stats.Removed += fuzzyRemoved
			stats.Survivors -= fuzzyRemoved
			stats.DedupPct = DedupPct(stats.Total, stats.Removed)
		}
		return map[string]any{"removed": stats.Removed, "dedup_pct": stats.DedupPct}, nil
	})

	// Stage 3: Cluster enrichment. Advisory, soft-fail.
	setStatus(model.BatchStatusEnriching)
	_ = trackStage("enrich", func() (map[string]any, error) {
		var infos []model.ClusterInfo
		current, infos = Enrich(ctx, current, p.embedder, p.cfg.Cluster)
		result.Clusters = infos
		return map[string]any{"clusters": len(infos)}, nil
	})

	// Stage 4: Consolidate.
	setStatus(model.BatchStatusConsolidating)
	var titles map[string]string
	_ = trackStage("consolidate", func() (map[string]any, error) {
		current, titles = Consolidate(current, p.rules)
		return map[string]any{"problems": len(titles)}, nil
	})

	// Stage 5: Aggregate.
	setStatus(model.BatchStatusAggregating)
	_ = trackStage("aggregate", func() (map[string]any, error) {
		result.Summaries = Aggregate(current, titles, roles, batch.TotalDialogs)
		return map[string]any{
			"themes":   len(result.Summaries.Themes),
			"problems": len(result.Summaries.Problems),
		}, nil
	})

	// Stage 6: Quality gate.
	setStatus(model.BatchStatusGating)
	_ = trackStage("quality", func() (map[string]any, error) {
		result.Quality = EvaluateQuality(batch.ID, current, stats, roles, batch.TotalDialogs, p.cfg.Quality)
		return map[string]any{"passed": result.Quality.Passed}, nil
	})

	result.Mentions = current
	result.Report = FormatReport(batch, result.Summaries, result.Quality, result.Stages)

	// All tables replace wholesale in one transaction: a failed run leaves
	// no partial summary state behind.
	if err := p.store.ReplaceResults(ctx, result); err != nil {
		setStatus(model.BatchStatusFailed)
		return nil, eris.Wrap(err, "pipeline: persist results")
	}
	setStatus(model.BatchStatusComplete)

	log.Info("pipeline: run complete",
		zap.Int("survivors", stats.Survivors),
		zap.Float64("dedup_pct", stats.DedupPct),
		zap.Bool("quality_passed", result.Quality.Passed),
	)
	return result, nil
}

// fuzzyDedup applies the opt-in near-duplicate pass. Embedding failures
// only disable the pass; exact dedup has already run.
func (p *Pipeline) fuzzyDedup(ctx context.Context, current *[]model.Mention) int {
	if p.embedder == nil {
		zap.L().Warn("dedup: fuzzy enabled but no embedding provider")
		return 0
	}
	timeout := time.Duration(p.cfg.Cluster.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vectors, err := p.embedder.Vectors(fetchCtx, *current)
	if err != nil {
		zap.L().Warn("dedup: fuzzy pass skipped, embeddings unavailable", zap.Error(err))
		return 0
	}
	deduped, removed := FuzzyDedup(*current, vectors, p.cfg.Dedup.SimilarityThreshold)
	*current = deduped
	return removed
}
