package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatorEmbedding(t *testing.T) {
	c := NewCalculator(Rates{"text-embedding-3-small": 0.02})

	// 1M tokens at $0.02/MTok
	assert.InDelta(t, 0.02, c.Embedding("text-embedding-3-small", 1_000_000), 1e-9)
	assert.InDelta(t, 0.001, c.Embedding("text-embedding-3-small", 50_000), 1e-9)
}

func TestCalculatorEmbedding_UnknownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())

	assert.Zero(t, c.Embedding("some-future-model", 1_000_000))
}

func TestTrackerAccumulates(t *testing.T) {
	tr := NewTracker(Rates{
		"text-embedding-3-small": 0.02,
		"text-embedding-3-large": 0.13,
	})

	tr.Add("text-embedding-3-small", 500_000)
	tr.Add("text-embedding-3-small", 500_000)
	tr.Add("text-embedding-3-large", 1_000_000)

	assert.Equal(t, 2_000_000, tr.Tokens())
	assert.InDelta(t, 0.02+0.13, tr.Cost(), 1e-9)
}

func TestTrackerEmpty(t *testing.T) {
	tr := NewTracker(DefaultRates())

	assert.Zero(t, tr.Tokens())
	assert.Zero(t, tr.Cost())
}

func TestDefaultRatesCoverPipelineModels(t *testing.T) {
	rates := DefaultRates()

	assert.Contains(t, rates, "text-embedding-3-small")
	assert.Contains(t, rates, "text-embedding-3-large")
}
