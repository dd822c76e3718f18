package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"finrag/internal/retrieval"
)

const (
	contextSnippetRunes = 500
	noDocumentsMessage  = "No relevant documents found."
	contextSeparator    = "\n---\n"
)

var ErrEmbeddingFailed = errors.New("query embedding failed")

type Matcher interface {
	Match(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
}

type SearchConfig struct {
	DefaultThreshold float64
	DefaultLimit     int
	MaxLimit         int
	RetryAttempts    int
	RetryBaseDelay   time.Duration
}

type SearchService struct {
	matcher  Matcher
	embedder QueryEmbedder
	cache    EmbeddingCache
	cfg      SearchConfig
}

// NewSearchService wires the retriever to the embedder. cache may be nil.
func NewSearchService(matcher Matcher, embedder QueryEmbedder, cache EmbeddingCache, cfg SearchConfig) *SearchService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 5
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &SearchService{
		matcher:  matcher,
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
	}
}

// MatchInput mirrors the match_documents arguments.
type MatchInput struct {
	QueryEmbedding []float32
	MatchThreshold float64
	MatchCount     int
	FilterTicker   string
}

// Match runs a similarity query for a caller-supplied embedding. Unavailable
// errors are retried with exponential backoff; invalid queries never are.
func (s *SearchService) Match(ctx context.Context, input MatchInput) ([]retrieval.Result, error) {
	q := retrieval.Query{
		Embedding: input.QueryEmbedding,
		Threshold: input.MatchThreshold,
		Limit:     input.MatchCount,
		Ticker:    NormalizeTicker(input.FilterTicker),
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("backoff", delay).Msg("retrying similarity match")
			select {
			case <-ctx.Done():
				return nil, retrieval.Unavailable("app.Match", ctx.Err())
			case <-time.After(delay):
			}
		}

		results, err := s.matcher.Match(ctx, q)
		if err == nil {
			return results, nil
		}
		if !retrieval.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// SearchInput is a text query. A nil Threshold and a zero Limit take the
// configured defaults; Limit is capped at the configured maximum.
type SearchInput struct {
	Query     string
	Threshold *float64
	Limit     int
	Ticker    string
}

func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]retrieval.Result, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	threshold := s.cfg.DefaultThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	limit := input.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	limit = min(limit, s.cfg.MaxLimit)

	started := time.Now()
	results, err := s.Match(ctx, MatchInput{
		QueryEmbedding: vec,
		MatchThreshold: threshold,
		MatchCount:     limit,
		FilterTicker:   input.Ticker,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("ticker", NormalizeTicker(input.Ticker)).
		Int("count", len(results)).
		Dur("took", time.Since(started)).
		Msg("similarity search")
	return results, nil
}

// Context runs Search and renders the hits as a prompt context block.
func (s *SearchService) Context(ctx context.Context, input SearchInput) (string, []retrieval.Result, error) {
	results, err := s.Search(ctx, input)
	if err != nil {
		return "", nil, err
	}
	return FormatContext(results), results, nil
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	model := s.embedder.Model()
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, model, query)
		if err != nil {
			log.Warn().Err(err).Msg("embedding cache get failed")
		} else if ok {
			return vec, nil
		}
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, model, query, vec); err != nil {
			log.Warn().Err(err).Msg("embedding cache set failed")
		}
	}
	return vec, nil
}

// FormatContext renders results for an LLM prompt: each hit's content,
// truncated to 500 runes, and its metadata, separated by "---" lines.
func FormatContext(results []retrieval.Result) string {
	if len(results) == 0 {
		return noDocumentsMessage
	}
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		meta, err := json.Marshal(r.Metadata)
		if err != nil || r.Metadata == nil {
			meta = []byte("{}")
		}
		blocks = append(blocks, fmt.Sprintf("Content: %s\nMetadata: %s", truncateRunes(r.Content, contextSnippetRunes), meta))
	}
	return strings.Join(blocks, contextSeparator)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
