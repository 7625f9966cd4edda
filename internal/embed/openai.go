package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/cost"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/denirokp/dialogs-rag-v3/internal/resilience"
)

// embeddingsAPI is the slice of the OpenAI client the provider needs.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider fetches vectors from the OpenAI embeddings API, batched,
// rate-limited and retried. It exists for runs where no precomputed vector
// file is supplied; the enrichment stage still treats any failure as
// "embeddings unavailable".
type OpenAIProvider struct {
	client  embeddingsAPI
	model   openai.EmbeddingModel
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	usage   *cost.Tracker
}

const embedBatchSize = 128

// NewOpenAIProvider creates a provider using the configured key and model.
func NewOpenAIProvider(cfg config.EmbeddingsConfig) *OpenAIProvider {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	return &OpenAIProvider{
		client:  openai.NewClient(cfg.Key),
		model:   openai.EmbeddingModel(cfg.Model),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   resilience.DefaultRetryConfig(),
		usage:   cost.NewTracker(cost.DefaultRates()),
	}
}

// Vectors embeds the quotes of the given mentions, keyed by mention ID.
func (p *OpenAIProvider) Vectors(ctx context.Context, mentions []model.Mention) (map[string][]float32, error) {
	out := make(map[string][]float32, len(mentions))

	for start := 0; start < len(mentions); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(mentions) {
			end = len(mentions)
		}
		batch := mentions[start:end]

		inputs := make([]string, len(batch))
		for i, m := range batch {
			inputs[i] = m.TextQuote
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "embed: rate limiter")
		}

		var resp openai.EmbeddingResponse
		err := resilience.Do(ctx, p.retry, func(ctx context.Context) error {
			var callErr error
			resp, callErr = p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: inputs,
				Model: p.model,
			})
			return callErr
		})
		if err != nil {
			return nil, eris.Wrap(err, "embed: create embeddings")
		}
		if len(resp.Data) != len(batch) {
			return nil, eris.Errorf("embed: got %d vectors for %d inputs", len(resp.Data), len(batch))
		}

		for i, d := range resp.Data {
			out[batch[i].ID] = d.Embedding
		}
		p.usage.Add(string(p.model), resp.Usage.TotalTokens)
	}

	if len(mentions) > 0 {
		zap.L().Info("embedding usage",
			zap.Int("tokens", p.usage.Tokens()),
			zap.Float64("est_cost_usd", p.usage.Cost()))
	}
	return out, nil
}
