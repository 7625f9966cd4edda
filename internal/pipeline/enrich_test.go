package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

type stubProvider struct {
	vectors map[string][]float32
	err     error
}

func (s *stubProvider) Vectors(ctx context.Context, mentions []model.Mention) (map[string][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func enrichConfig(minSize int) config.ClusterConfig {
	return config.ClusterConfig{
		Enabled:        true,
		MinClusterSize: minSize,
		Eps:            0.1,
		TimeoutSecs:    5,
		Keywords:       3,
	}
}

func TestEnrich_DisabledPassesThrough(t *testing.T) {
	in := []model.Mention{mention("m1", "d1", 1, "sub", "цитата", 0.9)}

	out, infos := Enrich(context.Background(), in, &stubProvider{}, config.ClusterConfig{Enabled: false})
	assert.Equal(t, in, out)
	assert.Nil(t, infos)
}

func TestEnrich_NilProviderPassesThrough(t *testing.T) {
	in := []model.Mention{mention("m1", "d1", 1, "sub", "цитата", 0.9)}

	out, infos := Enrich(context.Background(), in, nil, enrichConfig(2))
	assert.Equal(t, in, out)
	assert.Nil(t, infos)
}

func TestEnrich_ProviderErrorSoftFails(t *testing.T) {
	in := []model.Mention{mention("m1", "d1", 1, "sub", "цитата", 0.9)}
	provider := &stubProvider{err: eris.New("embeddings down")}

	out, infos := Enrich(context.Background(), in, provider, enrichConfig(2))
	assert.Equal(t, in, out)
	assert.Nil(t, infos)
	assert.Nil(t, out[0].ClusterLabel)
}

func TestEnrich_SmallPartitionAllNoise(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "доставка опоздала", 0.9),
		mention("m2", "d2", 1, "sub", "доставка потерялась", 0.8),
	}
	provider := &stubProvider{vectors: map[string][]float32{
		"m1": {1, 0},
		"m2": {0, 1},
	}}

	out, infos := Enrich(context.Background(), in, provider, enrichConfig(10))
	require.NotNil(t, out[0].ClusterLabel)
	assert.Equal(t, model.NoiseCluster, *out[0].ClusterLabel)
	assert.Equal(t, model.NoiseCluster, *out[1].ClusterLabel)

	require.Len(t, infos, 1)
	assert.Equal(t, model.NoiseCluster, infos[0].Label)
	assert.Equal(t, 2, infos[0].Size)
	assert.Contains(t, infos[0].Keywords, "доставка")
}

func TestEnrich_ClustersDensePartition(t *testing.T) {
	in := []model.Mention{
		mention("m1", "d1", 1, "sub", "доставка опоздала", 0.9),
		mention("m2", "d2", 1, "sub", "доставка сильно опоздала", 0.8),
		mention("m3", "d3", 1, "sub", "доставка опоздала на день", 0.7),
	}
	provider := &stubProvider{vectors: map[string][]float32{
		"m1": {1, 0},
		"m2": {0.99, 0.05},
		"m3": {0.98, 0.08},
	}}

	out, infos := Enrich(context.Background(), in, provider, enrichConfig(2))
	require.NotNil(t, out[0].ClusterLabel)
	assert.Equal(t, 0, *out[0].ClusterLabel)
	assert.Equal(t, 0, *out[1].ClusterLabel)
	assert.Equal(t, 0, *out[2].ClusterLabel)

	require.Len(t, infos, 1)
	assert.Equal(t, 0, infos[0].Label)
	assert.Equal(t, 3, infos[0].Size)
}

func TestEnrich_SkipsDuplicatesAndInvalid(t *testing.T) {
	dup := mention("m1", "d1", 1, "sub", "раз", 0.9)
	dup.IsDuplicate = true
	invalid := mention("m2", "d1", 2, "sub", "", 0.8)
	invalid.InvalidEvidence = true

	provider := &stubProvider{vectors: map[string][]float32{
		"m1": {1, 0},
		"m2": {1, 0},
	}}

	out, infos := Enrich(context.Background(), []model.Mention{dup, invalid}, provider, enrichConfig(1))
	assert.Nil(t, out[0].ClusterLabel)
	assert.Nil(t, out[1].ClusterLabel)
	assert.Nil(t, infos)
}
