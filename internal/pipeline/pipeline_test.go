package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/store"
)

// fakeStore records pipeline writes in memory.
type fakeStore struct {
	batches    map[string]model.Batch
	statuses   []model.BatchStatus
	replaced   *model.RunResult
	replaceErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{batches: make(map[string]model.Batch)}
}

func (f *fakeStore) CreateBatch(ctx context.Context, b model.Batch) error {
	f.batches[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBatchStatus(ctx context.Context, id string, s model.BatchStatus) error {
	f.statuses = append(f.statuses, s)
	return nil
}

func (f *fakeStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, eris.Errorf("batch not found: %s", id)
	}
	return &b, nil
}

func (f *fakeStore) ListBatches(ctx context.Context) ([]model.Batch, error) { return nil, nil }

func (f *fakeStore) ReplaceResults(ctx context.Context, r *model.RunResult) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = r
	return nil
}

func (f *fakeStore) Mentions(ctx context.Context, id string, filter store.MentionFilter) ([]model.Mention, error) {
	return nil, nil
}
func (f *fakeStore) ThemeSummaries(ctx context.Context, id string) ([]model.ThemeSummary, error) {
	return nil, nil
}
func (f *fakeStore) SubthemeSummaries(ctx context.Context, id string) ([]model.SubthemeSummary, error) {
	return nil, nil
}
func (f *fakeStore) ProblemCards(ctx context.Context, id string) ([]model.ProblemCard, error) {
	return nil, nil
}
func (f *fakeStore) Cooccurrence(ctx context.Context, id string) ([]model.Cooccurrence, error) {
	return nil, nil
}
func (f *fakeStore) Clusters(ctx context.Context, id string) ([]model.ClusterInfo, error) {
	return nil, nil
}
func (f *fakeStore) QualityReport(ctx context.Context, id string) (*model.QualityReport, error) {
	return nil, nil
}
func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

func pipelineConfig() *config.Config {
	return &config.Config{
		Dedup:   config.DedupConfig{SimilarityThreshold: 0.92},
		Cluster: config.ClusterConfig{Enabled: false},
		Quality: config.QualityConfig{
			MaxDedupPct:         1.0,
			MinCoveragePct:      98.0,
			AmbiguityConfidence: 0.6,
		},
	}
}

func rawMention(id, dialogID string, turnID int, theme, subtheme, quote string, confidence float64) model.Mention {
	return model.Mention{
		ID:         id,
		DialogID:   dialogID,
		TurnID:     turnID,
		Role:       model.RoleClient,
		LabelType:  model.LabelProblem,
		Theme:      theme,
		Subtheme:   subtheme,
		TextQuote:  quote,
		Confidence: confidence,
	}
}

func TestPipelineRun_EndToEnd(t *testing.T) {
	st := newFakeStore()
	table := testTable(t)
	p := New(pipelineConfig(), st, table, nil)

	mentions := []model.Mention{
		rawMention("m1", "d1", 1, "доставка", "срыв сроков", "Курьер опоздал на два часа", 0.9),
		rawMention("m2", "d1", 3, "доставка", "срыв сроков", "курьер ОПОЗДАЛ на два часа", 0.5),
		rawMention("m3", "d2", 1, "оплата", "двойное списание", "Списали деньги дважды", 0.8),
	}
	batch := model.Batch{ID: "b1", Source: "test", TotalDialogs: 2}

	result, err := p.Run(context.Background(), batch, mentions, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	// One exact duplicate collapsed.
	require.Len(t, result.Mentions, 3)
	assert.False(t, result.Mentions[0].IsDuplicate)
	assert.True(t, result.Mentions[1].IsDuplicate)
	assert.Equal(t, "m1", result.Mentions[1].DuplicateOf)

	// Problem cards reflect the rule table plus the unmapped bucket.
	ids := make(map[string]bool)
	for _, card := range result.Summaries.Problems {
		ids[card.ProblemID] = true
	}
	assert.True(t, ids["late_delivery"])
	assert.True(t, ids["payment_any"])
	assert.True(t, ids[model.UnmappedProblemID])

	require.NotNil(t, result.Quality)
	dedup := result.Quality.Check(model.CheckDedup)
	require.NotNil(t, dedup)
	assert.InDelta(t, 33.33, dedup.Value, 1e-9)
	assert.False(t, result.Quality.Passed, "a one-third duplicate rate must fail the gate")

	// All six stages ran and the result was persisted once.
	assert.Len(t, result.Stages, 6)
	require.NotNil(t, st.replaced)
	assert.Equal(t, "b1", st.replaced.BatchID)
	assert.Equal(t, model.BatchStatusComplete, st.statuses[len(st.statuses)-1])
	assert.NotEmpty(t, result.Report)
}

func TestPipelineRun_GateFailureIsNotAnError(t *testing.T) {
	st := newFakeStore()
	table := testTable(t)
	p := New(pipelineConfig(), st, table, nil)

	// An operator-spoken mention fails client_only_100 but the run completes.
	op := rawMention("m1", "d1", 1, "доставка", "срыв сроков", "мы всё починим", 0.9)
	op.Role = model.RoleOperator
	batch := model.Batch{ID: "b1", TotalDialogs: 1}

	result, err := p.Run(context.Background(), batch, []model.Mention{op}, nil)
	require.NoError(t, err)
	assert.False(t, result.Quality.Passed)
	assert.Equal(t, model.BatchStatusComplete, st.statuses[len(st.statuses)-1])
}

func TestPipelineRun_PersistFailureAborts(t *testing.T) {
	st := newFakeStore()
	st.replaceErr = eris.New("disk full")
	table := testTable(t)
	p := New(pipelineConfig(), st, table, nil)

	batch := model.Batch{ID: "b1", TotalDialogs: 1}
	_, err := p.Run(context.Background(), batch, nil, nil)
	require.Error(t, err)
	assert.Equal(t, model.BatchStatusFailed, st.statuses[len(st.statuses)-1])
}

func TestPipelineRun_Idempotent(t *testing.T) {
	table := testTable(t)
	mentions := []model.Mention{
		rawMention("m1", "d1", 1, "доставка", "срыв сроков", "опоздала доставка", 0.9),
		rawMention("m2", "d1", 2, "доставка", "срыв сроков", "Опоздала  доставка", 0.4),
	}
	batch := model.Batch{ID: "b1", TotalDialogs: 1}

	first, err := New(pipelineConfig(), newFakeStore(), table, nil).Run(context.Background(), batch, mentions, nil)
	require.NoError(t, err)
	second, err := New(pipelineConfig(), newFakeStore(), table, nil).Run(context.Background(), batch, mentions, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Mentions, second.Mentions)
	assert.Equal(t, first.Summaries, second.Summaries)
}

func TestPipelineRun_FuzzyDedupWiredIn(t *testing.T) {
	cfg := pipelineConfig()
	cfg.Dedup.Fuzzy = true
	provider := &stubProvider{vectors: map[string][]float32{
		"m1": {1, 0},
		"m2": {0.99, 0.1},
	}}

	st := newFakeStore()
	p := New(cfg, st, testTable(t), provider)
	mentions := []model.Mention{
		rawMention("m1", "d1", 1, "доставка", "срыв сроков", "доставка не пришла", 0.9),
		rawMention("m2", "d1", 2, "доставка", "срыв сроков", "доставка так и не пришла", 0.5),
	}
	batch := model.Batch{ID: "b1", TotalDialogs: 1}

	result, err := p.Run(context.Background(), batch, mentions, nil)
	require.NoError(t, err)
	assert.True(t, result.Mentions[1].IsDuplicate)
	assert.InDelta(t, 50.0, result.Quality.Check(model.CheckDedup).Value, 1e-9)
}
