package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"finrag/internal/model"
	"finrag/internal/retrieval"
)

type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

func New(ctx context.Context, dsn string, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get postgres sql db failed: %w", err)
	}

	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 20
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres failed: %w", err)
	}

	return db, nil
}

// NewWithBackoff retries New with exponential backoff. Useful when the
// database container starts alongside the service.
func NewWithBackoff(ctx context.Context, dsn string, opts Options, maxRetries int) (*gorm.DB, error) {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var err error
	for i := range maxRetries {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			log.Info().Dur("backoff", backoff).Msg("waiting before postgres retry")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var db *gorm.DB
		db, err = New(ctx, dsn, opts)
		if err == nil {
			log.Info().Int("attempts_needed", i+1).Msg("postgres connected")
			return db, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("max_retries", maxRetries).Msg("postgres connect failed")
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", maxRetries, err)
}

// Migrate installs the vector extension, the chunk table and the
// match_documents function used for similarity search.
func Migrate(ctx context.Context, db *gorm.DB, dimension int) error {
	db = db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	if err := db.AutoMigrate(&model.DocumentChunk{}, &model.Filing{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	if err := db.Exec(MatchDocumentsSQL(dimension)).Error; err != nil {
		return fmt.Errorf("create match_documents function failed: %w", err)
	}
	return nil
}

// MatchDocumentsSQL returns the DDL for match_documents. Similarity is
// 1 - cosine distance and must be strictly above the threshold; a threshold
// of 1 keeps only exact matches. NaN distances (zero-norm rows) never match.
func MatchDocumentsSQL(dimension int) string {
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION match_documents(
	query_embedding vector(%d),
	match_threshold double precision,
	match_count integer,
	filter_ticker text DEFAULT NULL
)
RETURNS TABLE (
	id uuid,
	ticker varchar,
	content text,
	metadata jsonb,
	similarity double precision
)
LANGUAGE sql STABLE
AS $$
	SELECT d.id, d.ticker, d.content, d.metadata, LEAST(1 - d.distance, 1.0) AS similarity
	FROM (
		SELECT c.id, c.ticker, c.content, c.metadata, c.embedding <=> query_embedding AS distance
		FROM document_chunks c
		WHERE filter_ticker IS NULL OR filter_ticker = '' OR c.ticker = filter_ticker
	) d
	WHERE d.distance <> 'NaN'::double precision
		AND (
			(match_threshold >= 1 AND d.distance <= %g)
			OR (match_threshold < 1 AND 1 - d.distance > match_threshold)
		)
	ORDER BY d.distance ASC, d.id ASC
	LIMIT match_count;
$$;`, dimension, retrieval.ExactMatchEpsilon)
}
