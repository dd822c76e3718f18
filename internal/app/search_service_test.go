package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finrag/internal/model"
	"finrag/internal/retrieval"
	"finrag/internal/store/memory"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embedding" }

type mapCache struct {
	entries map[string][]float32
	sets    int
}

func (c *mapCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	v, ok := c.entries[model+"|"+text]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, model, text string, vec []float32) error {
	c.sets++
	c.entries[model+"|"+text] = vec
	return nil
}

type flakyMatcher struct {
	failures int
	err      error
	calls    int
	last     retrieval.Query
}

func (m *flakyMatcher) Match(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	m.calls++
	m.last = q
	if m.calls <= m.failures {
		return nil, m.err
	}
	return []retrieval.Result{{ID: "ok", Similarity: 0.9}}, nil
}

func seededStore() *memory.Store {
	store := memory.NewStore()
	add := func(id, ticker, content string, vec ...float32) {
		store.Add(model.DocumentChunk{
			ID:        id,
			Ticker:    ticker,
			Content:   content,
			Metadata:  model.Metadata{"section": "business"},
			Embedding: pgvector.NewVector(vec),
		})
	}
	add("a", "AAPL", "Apple sells iPhones.", 0.91, 0.41462, 0)
	add("b", "AAPL", "Unrelated text.", 0.40, 0.91652, 0)
	add("c", "MSFT", "Microsoft sells cloud services.", 0.85, 0.52678, 0)
	return store
}

func newSearchService(matcher Matcher, embedder QueryEmbedder, cache EmbeddingCache) *SearchService {
	return NewSearchService(matcher, embedder, cache, SearchConfig{
		DefaultThreshold: 0.5,
		DefaultLimit:     5,
		MaxLimit:         10,
		RetryAttempts:    3,
		RetryBaseDelay:   time.Millisecond,
	})
}

func TestSearchServiceMatchScenario(t *testing.T) {
	retriever := retrieval.NewRetriever(seededStore(), retrieval.Options{Dimension: 3})
	svc := newSearchService(retriever, &fakeEmbedder{}, nil)

	results, err := svc.Match(context.Background(), MatchInput{
		QueryEmbedding: []float32{1, 0, 0},
		MatchThreshold: 0.5,
		MatchCount:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.InDelta(t, 0.91, results[0].Similarity, 1e-4)
	assert.InDelta(t, 0.85, results[1].Similarity, 1e-4)
}

func TestSearchServiceMatchNormalizesTicker(t *testing.T) {
	retriever := retrieval.NewRetriever(seededStore(), retrieval.Options{Dimension: 3})
	svc := newSearchService(retriever, &fakeEmbedder{}, nil)

	results, err := svc.Match(context.Background(), MatchInput{
		QueryEmbedding: []float32{1, 0, 0},
		MatchThreshold: 0.5,
		MatchCount:     10,
		FilterTicker:   " msft ",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "MSFT", results[0].Ticker)
}

func TestSearchServiceMatchInvalidNotRetried(t *testing.T) {
	matcher := &flakyMatcher{failures: 5, err: retrieval.InvalidArgument("op", "bad")}
	svc := newSearchService(matcher, &fakeEmbedder{}, nil)

	_, err := svc.Match(context.Background(), MatchInput{QueryEmbedding: []float32{1}, MatchThreshold: 0.5, MatchCount: 1})
	assert.ErrorIs(t, err, retrieval.ErrInvalidArgument)
	assert.Equal(t, 1, matcher.calls)
}

func TestSearchServiceMatchRetriesUnavailable(t *testing.T) {
	matcher := &flakyMatcher{failures: 2, err: retrieval.Unavailable("op", errors.New("connection reset"))}
	svc := newSearchService(matcher, &fakeEmbedder{}, nil)

	results, err := svc.Match(context.Background(), MatchInput{QueryEmbedding: []float32{1}, MatchThreshold: 0.5, MatchCount: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 3, matcher.calls)
}

func TestSearchServiceMatchGivesUpAfterAttempts(t *testing.T) {
	matcher := &flakyMatcher{failures: 10, err: retrieval.Unavailable("op", errors.New("connection reset"))}
	svc := newSearchService(matcher, &fakeEmbedder{}, nil)

	_, err := svc.Match(context.Background(), MatchInput{QueryEmbedding: []float32{1}, MatchThreshold: 0.5, MatchCount: 1})
	assert.ErrorIs(t, err, retrieval.ErrUnavailable)
	assert.Equal(t, 3, matcher.calls)
}

func TestSearchServiceSearchDefaultsAndCap(t *testing.T) {
	matcher := &flakyMatcher{}
	svc := newSearchService(matcher, &fakeEmbedder{}, nil)

	_, err := svc.Search(context.Background(), SearchInput{Query: "revenue"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, matcher.last.Threshold)
	assert.Equal(t, 5, matcher.last.Limit)

	zero := 0.0
	_, err = svc.Search(context.Background(), SearchInput{Query: "revenue", Threshold: &zero, Limit: 500, Ticker: "aapl"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, matcher.last.Threshold)
	assert.Equal(t, 10, matcher.last.Limit)
	assert.Equal(t, "AAPL", matcher.last.Ticker)
}

func TestSearchServiceSearchUsesCache(t *testing.T) {
	embedder := &fakeEmbedder{}
	cache := &mapCache{entries: map[string][]float32{}}
	svc := newSearchService(&flakyMatcher{}, embedder, cache)

	for i := 0; i < 3; i++ {
		_, err := svc.Search(context.Background(), SearchInput{Query: "risk factors"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestSearchServiceSearchErrors(t *testing.T) {
	svc := newSearchService(&flakyMatcher{}, &fakeEmbedder{err: errors.New("rate limited")}, nil)

	_, err := svc.Search(context.Background(), SearchInput{Query: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Search(context.Background(), SearchInput{Query: "revenue"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestSearchServiceContext(t *testing.T) {
	retriever := retrieval.NewRetriever(seededStore(), retrieval.Options{Dimension: 3})
	svc := newSearchService(retriever, &fakeEmbedder{}, nil)

	text, results, err := svc.Context(context.Background(), SearchInput{Query: "iphone", Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, `Content: Apple sells iPhones.
Metadata: {"section":"business"}`, text)
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, noDocumentsMessage, FormatContext(nil))

	long := strings.Repeat("가", 600)
	out := FormatContext([]retrieval.Result{
		{Content: long, Metadata: model.Metadata{"chunk_index": 1}},
		{Content: "short"},
	})
	parts := strings.Split(out, contextSeparator)
	require.Len(t, parts, 2)
	assert.Equal(t, "Content: "+strings.Repeat("가", 500)+"...\nMetadata: {\"chunk_index\":1}", parts[0])
	assert.Equal(t, "Content: short\nMetadata: {}", parts[1])
}
