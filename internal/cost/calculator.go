// Package cost estimates API spend for embedding calls. Estimates only;
// the billed amount is whatever the provider invoices.
package cost

import "sync"

// Rates holds per-model embedding pricing in USD per million tokens.
type Rates map[string]float64

// DefaultRates returns the default pricing rates for the embedding models
// the pipeline is expected to run against.
func DefaultRates() Rates {
	return Rates{
		"text-embedding-3-small": 0.02,
		"text-embedding-3-large": 0.13,
		"text-embedding-ada-002": 0.10,
	}
}

// Calculator computes costs for embedding API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Embedding computes the cost of embedding the given token count with the
// given model. Unknown models cost 0 rather than erroring, so a new model
// name never breaks a run.
func (c *Calculator) Embedding(model string, tokens int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(tokens) / 1e6) * rate
}

// Tracker accumulates embedding token usage across the batched calls of one
// run. Safe for concurrent use.
type Tracker struct {
	calc *Calculator

	mu     sync.Mutex
	tokens map[string]int
}

// NewTracker creates a Tracker pricing usage with the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{calc: NewCalculator(rates), tokens: make(map[string]int)}
}

// Add records token usage for one API call.
func (t *Tracker) Add(model string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[model] += tokens
}

// Tokens returns the total token count recorded so far.
func (t *Tracker) Tokens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.tokens {
		total += n
	}
	return total
}

// Cost returns the estimated spend in USD for the recorded usage.
func (t *Tracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0.0
	for model, n := range t.tokens {
		total += t.calc.Embedding(model, n)
	}
	return total
}
