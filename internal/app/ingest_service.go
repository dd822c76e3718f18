package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"finrag/internal/company"
	"finrag/internal/model"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultBatchSize    = 20
	defaultSource       = "10-K"
	profileTimeout      = 5 * time.Second
)

var (
	ErrEmbeddingMismatch = errors.New("embedding response does not match input")
	ErrFilingNotFound    = errors.New("filing not found")
)

type ChunkStore interface {
	ReplaceByTicker(ctx context.Context, ticker string, chunks []model.DocumentChunk) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	CountByTicker(ctx context.Context) (map[string]int64, error)
}

type FilingStore interface {
	Upsert(ctx context.Context, filing *model.Filing) error
	List(ctx context.Context) ([]model.Filing, error)
	GetByTicker(ctx context.Context, ticker string) (*model.Filing, error)
}

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type ProfileResolver interface {
	Profile(ctx context.Context, ticker string) (*company.Profile, error)
}

type IngestConfig struct {
	ChunkSize         int
	ChunkOverlap      int
	BatchSize         int
	RequestsPerSecond float64
	Source            string
	Dimension         int
}

type IngestService struct {
	store    ChunkStore
	filings  FilingStore
	embedder BatchEmbedder
	profiles ProfileResolver
	limiter  *rate.Limiter
	cfg      IngestConfig
}

// NewIngestService builds the ingestion pipeline. filings and profiles may be nil.
func NewIngestService(store ChunkStore, filings FilingStore, embedder BatchEmbedder, profiles ProfileResolver, cfg IngestConfig) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = min(defaultChunkOverlap, cfg.ChunkSize/2)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Source == "" {
		cfg.Source = defaultSource
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = model.EmbeddingDimension
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &IngestService{
		store:    store,
		filings:  filings,
		embedder: embedder,
		profiles: profiles,
		limiter:  rate.NewLimiter(limit, 1),
		cfg:      cfg,
	}
}

type SectionInput struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// IngestInput is one filing for one ticker. Ingesting replaces every chunk
// previously stored for that ticker.
type IngestInput struct {
	Ticker     string         `json:"ticker"`
	CompanyID  string         `json:"company_id,omitempty"`
	Source     string         `json:"source,omitempty"`
	FiscalYear string         `json:"fiscal_year,omitempty"`
	Sections   []SectionInput `json:"sections"`
}

type IngestResult struct {
	Ticker     string         `json:"ticker"`
	ChunkCount int            `json:"chunk_count"`
	Replaced   int64          `json:"replaced"`
	Sections   map[string]int `json:"sections"`
}

type pendingChunk struct {
	section string
	index   int
	content string
}

// Ingest chunks every section, embeds the chunks in rate-limited batches and
// swaps them in for the ticker's existing chunks.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ticker := NormalizeTicker(input.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", ErrInvalidInput)
	}
	var companyID *string
	if id := strings.TrimSpace(input.CompanyID); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: company_id is not a uuid", ErrInvalidInput)
		}
		normalized := parsed.String()
		companyID = &normalized
	}
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = s.cfg.Source
	}

	var pending []pendingChunk
	perSection := make(map[string]int)
	for _, sec := range input.Sections {
		name := strings.TrimSpace(sec.Name)
		if name == "" {
			name = "document"
		}
		for i, content := range chunkText(sec.Text, s.cfg.ChunkSize, s.cfg.ChunkOverlap) {
			pending = append(pending, pendingChunk{section: name, index: i, content: content})
			perSection[name]++
		}
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: no text to ingest", ErrInvalidInput)
	}

	base := model.Metadata{"source": source}
	if fy := strings.TrimSpace(input.FiscalYear); fy != "" {
		base["fiscal_year"] = fy
	}
	s.addProfile(ctx, ticker, base)

	embeddings, err := s.embedAll(ctx, pending)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.DocumentChunk, len(pending))
	for i, p := range pending {
		meta := make(model.Metadata, len(base)+2)
		for k, v := range base {
			meta[k] = v
		}
		meta["section"] = p.section
		meta["chunk_index"] = p.index
		chunks[i] = model.DocumentChunk{
			ID:        uuid.NewString(),
			CompanyID: companyID,
			Ticker:    ticker,
			Content:   p.content,
			Metadata:  meta,
			Embedding: pgvector.NewVector(embeddings[i]),
		}
	}

	replaced, err := s.store.ReplaceByTicker(ctx, ticker, chunks)
	if err != nil {
		return nil, fmt.Errorf("store chunks failed: %w", err)
	}

	s.recordFiling(ctx, ticker, source, base, len(chunks))

	log.Info().
		Str("ticker", ticker).
		Int("count", len(chunks)).
		Int64("replaced", replaced).
		Msg("filing ingested")

	return &IngestResult{
		Ticker:     ticker,
		ChunkCount: len(chunks),
		Replaced:   replaced,
		Sections:   perSection,
	}, nil
}

func (s *IngestService) embedAll(ctx context.Context, pending []pendingChunk) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(pending))
	for i := 0; i < len(pending); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(pending))
		texts := make([]string, 0, end-i)
		for _, p := range pending[i:end] {
			texts = append(texts, p.content)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for embedding rate limit: %w", err)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d failed: %w", i/s.cfg.BatchSize, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMismatch, len(batch), len(texts))
		}
		for j, vec := range batch {
			if err := checkVector(vec, s.cfg.Dimension); err != nil {
				return nil, fmt.Errorf("%w: chunk %d: %v", ErrEmbeddingMismatch, i+j, err)
			}
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (s *IngestService) addProfile(ctx context.Context, ticker string, meta model.Metadata) {
	if s.profiles == nil {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, profileTimeout)
	defer cancel()

	p, err := s.profiles.Profile(lookupCtx, ticker)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("company profile lookup failed")
		return
	}
	if p.Name != "" {
		meta["company_name"] = p.Name
	}
	if p.Exchange != "" {
		meta["exchange"] = p.Exchange
	}
	if p.Industry != "" {
		meta["industry"] = p.Industry
	}
}

// recordFiling is best effort: the chunks are already committed.
func (s *IngestService) recordFiling(ctx context.Context, ticker, source string, meta model.Metadata, count int) {
	if s.filings == nil {
		return
	}
	filing := &model.Filing{Ticker: ticker, Source: source, ChunkCount: count}
	filing.FiscalYear, _ = meta["fiscal_year"].(string)
	filing.CompanyName, _ = meta["company_name"].(string)
	if err := s.filings.Upsert(ctx, filing); err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("record filing failed")
	}
}

func (s *IngestService) Filings(ctx context.Context) ([]model.Filing, error) {
	if s.filings == nil {
		return []model.Filing{}, nil
	}
	list, err := s.filings.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Filing{}
	}
	return list, nil
}

func (s *IngestService) Filing(ctx context.Context, ticker string) (*model.Filing, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", ErrInvalidInput)
	}
	if s.filings == nil {
		return nil, ErrFilingNotFound
	}
	filing, err := s.filings.GetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if filing == nil {
		return nil, ErrFilingNotFound
	}
	return filing, nil
}

type StatsResult struct {
	TableName      string           `json:"table_name"`
	TotalDocuments int64            `json:"total_documents"`
	ByTicker       map[string]int64 `json:"by_ticker"`
	EmbeddingModel string           `json:"embedding_model"`
	Dimension      int              `json:"dimension"`
}

func (s *IngestService) Stats(ctx context.Context) (*StatsResult, error) {
	total, err := s.store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks failed: %w", err)
	}
	byTicker, err := s.store.CountByTicker(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks by ticker failed: %w", err)
	}
	return &StatsResult{
		TableName:      model.DocumentChunk{}.TableName(),
		TotalDocuments: total,
		ByTicker:       byTicker,
		EmbeddingModel: s.embedder.Model(),
		Dimension:      s.cfg.Dimension,
	}, nil
}

func checkVector(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return fmt.Errorf("got %d dimensions, want %d", len(vec), dimension)
	}
	var sumSquares float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.New("non-finite component")
		}
		sumSquares += f * f
	}
	if sumSquares == 0 {
		return errors.New("zero-norm vector")
	}
	return nil
}

// chunkText splits text into overlapping chunks by rune count. Chunks are
// whitespace-trimmed and blank chunks are dropped.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(strings.TrimSpace(text))
	for i := 0; i < len(runes); {
		end := min(i+size, len(runes))
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		i += size - overlap
	}
	return chunks
}
