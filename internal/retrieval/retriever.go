// Package retrieval wraps the vector backend behind the single capability
// the reasoning step is allowed to use: query in, ranked passages out.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

const maxPassages = 6

// Embedder turns a query string into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher ranks stored passages against a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]domain.Passage, error)
}

// Retriever is the grounded retrieval tool. Failures degrade to an empty
// result; the dialogue policy turns missing grounding into a clarifying
// question instead of an invented answer.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	limit    int
}

// New creates a Retriever. limit is clamped to at most 6 passages.
func New(embedder Embedder, searcher Searcher, limit int) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("retrieval: embedder must not be nil")
	}
	if searcher == nil {
		return nil, errors.New("retrieval: searcher must not be nil")
	}
	if limit <= 0 || limit > maxPassages {
		limit = maxPassages
	}
	return &Retriever{embedder: embedder, searcher: searcher, limit: limit}, nil
}

// Retrieve returns up to the configured number of passages for the query.
// It never returns an error: backend failure, timeout, and an empty
// collection all surface as an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, query string) []domain.Passage {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("retrieval embedding failed, degrading to no grounding",
			"error", retrievalError("embed query", err))
		return nil
	}

	passages, err := r.searcher.Search(ctx, vector, r.limit)
	if err != nil {
		slog.Warn("retrieval search failed, degrading to no grounding",
			"error", retrievalError("vector search", err))
		return nil
	}
	if len(passages) > r.limit {
		passages = passages[:r.limit]
	}
	return passages
}

// retrievalError tags a backend failure with the retrieval code before it
// is logged and absorbed.
func retrievalError(reason string, err error) error {
	return &usecase.Error{Code: usecase.ErrorRetrieval, Reason: reason, Err: err}
}
