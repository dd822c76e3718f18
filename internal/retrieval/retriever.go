package retrieval

import (
	"context"
	"errors"
	"math"
	"time"

	"finrag/internal/model"
)

const (
	defaultTimeout = 5 * time.Second

	// ExactMatchEpsilon is the largest cosine distance still counted as an
	// exact match when the threshold is 1.0.
	ExactMatchEpsilon = 1e-6
)

// Query asks for the Limit chunks most similar to Embedding whose similarity
// is strictly above Threshold. An empty Ticker means no filter.
type Query struct {
	Embedding []float32
	Threshold float64
	Limit     int
	Ticker    string
}

type Result struct {
	ID         string         `json:"id"`
	Ticker     string         `json:"ticker,omitempty"`
	Content    string         `json:"content"`
	Metadata   model.Metadata `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

// Store runs an already validated query against chunk storage. Results must
// come back ordered by descending similarity, at most q.Limit of them.
type Store interface {
	MatchChunks(ctx context.Context, q Query) ([]Result, error)
}

type Options struct {
	Dimension int
	Timeout   time.Duration
}

// Retriever validates similarity queries and runs them against a Store.
// It holds no mutable state and is safe for concurrent use.
type Retriever struct {
	store     Store
	dimension int
	timeout   time.Duration
}

func NewRetriever(store Store, opts Options) *Retriever {
	if opts.Dimension <= 0 {
		opts.Dimension = model.EmbeddingDimension
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Retriever{
		store:     store,
		dimension: opts.Dimension,
		timeout:   opts.Timeout,
	}
}

func (r *Retriever) Dimension() int {
	return r.dimension
}

// Match returns the chunks most similar to q.Embedding. No matches is an
// empty slice and a nil error.
func (r *Retriever) Match(ctx context.Context, q Query) ([]Result, error) {
	const op = "retrieval.Match"

	if err := r.Validate(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(op, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results, err := r.store.MatchChunks(queryCtx, q)
	if err != nil {
		var re *Error
		switch {
		case errors.As(err, &re):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), queryCtx.Err() != nil:
			return nil, Unavailable(op, err)
		default:
			return nil, Internal(op, err)
		}
	}
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// Validate checks q against the configured embedding dimension.
func (r *Retriever) Validate(q Query) error {
	return ValidateQuery(q, r.dimension)
}

func ValidateQuery(q Query, dimension int) error {
	const op = "retrieval.Validate"

	if len(q.Embedding) != dimension {
		return InvalidArgument(op, "embedding has %d dimensions, want %d", len(q.Embedding), dimension)
	}
	var sumSquares float64
	for i, v := range q.Embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return InvalidArgument(op, "embedding component %d is not finite", i)
		}
		sumSquares += f * f
	}
	if sumSquares == 0 {
		return InvalidArgument(op, "embedding has zero norm")
	}
	if math.IsNaN(q.Threshold) || q.Threshold < 0 || q.Threshold > 1 {
		return InvalidArgument(op, "threshold %v outside [0,1]", q.Threshold)
	}
	if q.Limit <= 0 {
		return InvalidArgument(op, "limit must be positive, got %d", q.Limit)
	}
	return nil
}
