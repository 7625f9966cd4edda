// Package embed supplies mention embedding vectors to the optional
// enrichment stages. Vectors are produced outside the consolidation core;
// providers only fetch or read them. A provider error never fails the
// pipeline; callers degrade to no-op.
package embed

import (
	"context"

	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
	"github.com/rotisserie/eris"
)

// Provider returns one vector per mention, keyed by mention ID. Mentions a
// provider cannot cover are simply absent from the map.
type Provider interface {
	Vectors(ctx context.Context, mentions []model.Mention) (map[string][]float32, error)
}

// New builds the configured provider. An unknown provider name is a
// configuration error; a missing one returns nil, which callers treat as
// "no embeddings available".
func New(cfg config.EmbeddingsConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "file":
		if cfg.Path == "" {
			return nil, nil
		}
		return NewFileProvider(cfg.Path), nil
	case "openai":
		if cfg.Key == "" {
			return nil, nil
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, eris.Errorf("embed: unknown provider %q", cfg.Provider)
	}
}
