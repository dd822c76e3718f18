package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finrag/internal/company"
	"finrag/internal/model"
	"finrag/internal/retrieval"
	"finrag/internal/store/memory"
)

type countingEmbedder struct {
	batches [][]string
	dim     int
	broken  bool
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dim)
		vec[0] = 1
		if e.broken {
			vec = vec[:1]
		}
		out[i] = vec
	}
	return out, nil
}

func (e *countingEmbedder) Model() string { return "counting" }

type staticProfiles struct {
	profile *company.Profile
	err     error
}

func (p staticProfiles) Profile(ctx context.Context, ticker string) (*company.Profile, error) {
	return p.profile, p.err
}

type mapFilings struct {
	byTicker map[string]model.Filing
	err      error
}

func (m *mapFilings) Upsert(ctx context.Context, filing *model.Filing) error {
	if m.err != nil {
		return m.err
	}
	m.byTicker[filing.Ticker] = *filing
	return nil
}

func (m *mapFilings) List(ctx context.Context) ([]model.Filing, error) {
	var out []model.Filing
	for _, f := range m.byTicker {
		out = append(out, f)
	}
	return out, m.err
}

func (m *mapFilings) GetByTicker(ctx context.Context, ticker string) (*model.Filing, error) {
	if f, ok := m.byTicker[ticker]; ok {
		return &f, nil
	}
	return nil, m.err
}

func newIngestService(store ChunkStore, embedder BatchEmbedder, profiles ProfileResolver) *IngestService {
	return newIngestServiceWithFilings(store, nil, embedder, profiles)
}

func newIngestServiceWithFilings(store ChunkStore, filings FilingStore, embedder BatchEmbedder, profiles ProfileResolver) *IngestService {
	return NewIngestService(store, filings, embedder, profiles, IngestConfig{
		ChunkSize:    100,
		ChunkOverlap: 20,
		BatchSize:    2,
		Dimension:    3,
	})
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("a", 250)
	chunks := chunkText(text, 100, 20)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 90)

	assert.Empty(t, chunkText("   \n\t ", 100, 20))
	assert.Equal(t, []string{"short"}, chunkText("  short  ", 100, 20))
	assert.Equal(t, []string{"가나다"}, chunkText("가나다", 3, 1))
}

func TestIngestReplacesTickerChunks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.Add(model.DocumentChunk{ID: "old", Ticker: "AAPL", Embedding: pgvector.NewVector([]float32{1, 0, 0})})
	store.Add(model.DocumentChunk{ID: "keep", Ticker: "MSFT", Embedding: pgvector.NewVector([]float32{1, 0, 0})})

	embedder := &countingEmbedder{dim: 3}
	svc := newIngestService(store, embedder, staticProfiles{profile: &company.Profile{
		Ticker: "AAPL", Name: "Apple Inc", Exchange: "NASDAQ", Industry: "Technology",
	}})

	result, err := svc.Ingest(ctx, IngestInput{
		Ticker:     " aapl ",
		FiscalYear: "2024",
		Sections: []SectionInput{
			{Name: "business", Text: strings.Repeat("b", 150)},
			{Name: "risk_factors", Text: "Supply chain risk."},
			{Name: "mda", Text: "   "},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", result.Ticker)
	assert.Equal(t, 3, result.ChunkCount)
	assert.Equal(t, int64(1), result.Replaced)
	assert.Equal(t, map[string]int{"business": 2, "risk_factors": 1}, result.Sections)
	assert.Len(t, embedder.batches, 2)

	counts, err := store.CountByTicker(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AAPL": 3, "MSFT": 1}, counts)

	retriever := retrieval.NewRetriever(store, retrieval.Options{Dimension: 3})
	hits, err := retriever.Match(ctx, retrieval.Query{Embedding: []float32{1, 0, 0}, Threshold: 0.5, Limit: 10, Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.NotEqual(t, "old", h.ID)
		assert.Equal(t, "10-K", h.Metadata["source"])
		assert.Equal(t, "2024", h.Metadata["fiscal_year"])
		assert.Equal(t, "Apple Inc", h.Metadata["company_name"])
		assert.Equal(t, "Technology", h.Metadata["industry"])
		assert.Contains(t, []any{"business", "risk_factors"}, h.Metadata["section"])
	}
}

func TestIngestProfileFailureIsIgnored(t *testing.T) {
	store := memory.NewStore()
	svc := newIngestService(store, &countingEmbedder{dim: 3}, staticProfiles{err: errors.New("finnhub down")})

	result, err := svc.Ingest(context.Background(), IngestInput{
		Ticker:   "TSLA",
		Sections: []SectionInput{{Name: "business", Text: "Electric vehicles."}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
}

func TestIngestValidation(t *testing.T) {
	svc := newIngestService(memory.NewStore(), &countingEmbedder{dim: 3}, nil)

	_, err := svc.Ingest(context.Background(), IngestInput{Sections: []SectionInput{{Text: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Ingest(context.Background(), IngestInput{Ticker: "AAPL", Sections: []SectionInput{{Text: " "}}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Ingest(context.Background(), IngestInput{Ticker: "AAPL", CompanyID: "nope", Sections: []SectionInput{{Text: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIngestRejectsBadEmbeddings(t *testing.T) {
	store := memory.NewStore()
	svc := newIngestService(store, &countingEmbedder{dim: 3, broken: true}, nil)

	_, err := svc.Ingest(context.Background(), IngestInput{
		Ticker:   "AAPL",
		Sections: []SectionInput{{Name: "business", Text: "Apple."}},
	})
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)

	total, err := store.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStats(t *testing.T) {
	store := memory.NewStore()
	store.Add(
		model.DocumentChunk{ID: "1", Ticker: "AAPL"},
		model.DocumentChunk{ID: "2", Ticker: "AAPL"},
		model.DocumentChunk{ID: "3", Ticker: "NVDA"},
	)
	svc := newIngestService(store, &countingEmbedder{dim: 3}, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &StatsResult{
		TableName:      "document_chunks",
		TotalDocuments: 3,
		ByTicker:       map[string]int64{"AAPL": 2, "NVDA": 1},
		EmbeddingModel: "counting",
		Dimension:      3,
	}, stats)
}

func TestIngestRecordsFiling(t *testing.T) {
	ctx := context.Background()
	filings := &mapFilings{byTicker: map[string]model.Filing{}}
	svc := newIngestServiceWithFilings(memory.NewStore(), filings, &countingEmbedder{dim: 3}, staticProfiles{profile: &company.Profile{Name: "NVIDIA Corp"}})

	_, err := svc.Ingest(ctx, IngestInput{
		Ticker:     "nvda",
		FiscalYear: "2025",
		Sections:   []SectionInput{{Name: "business", Text: "Accelerated computing."}},
	})
	require.NoError(t, err)

	filing, err := svc.Filing(ctx, " nvda ")
	require.NoError(t, err)
	assert.Equal(t, "NVDA", filing.Ticker)
	assert.Equal(t, "NVIDIA Corp", filing.CompanyName)
	assert.Equal(t, "10-K", filing.Source)
	assert.Equal(t, "2025", filing.FiscalYear)
	assert.Equal(t, 1, filing.ChunkCount)

	list, err := svc.Filings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Filing(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrFilingNotFound)
	_, err = svc.Filing(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIngestFilingFailureIsIgnored(t *testing.T) {
	filings := &mapFilings{byTicker: map[string]model.Filing{}, err: errors.New("db down")}
	svc := newIngestServiceWithFilings(memory.NewStore(), filings, &countingEmbedder{dim: 3}, nil)

	result, err := svc.Ingest(context.Background(), IngestInput{
		Ticker:   "AAPL",
		Sections: []SectionInput{{Name: "business", Text: "Apple."}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)
}

func TestFilingsWithoutStore(t *testing.T) {
	svc := newIngestService(memory.NewStore(), &countingEmbedder{dim: 3}, nil)

	list, err := svc.Filings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = svc.Filing(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrFilingNotFound)
}
