package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"finrag/internal/model"
	"finrag/internal/retrieval"
)

const insertBatchSize = 100

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

type matchRow struct {
	ID         string
	Ticker     string
	Content    string
	Metadata   model.Metadata
	Similarity float64
}

// MatchChunks runs the match_documents function. Filtering, ordering and the
// limit all happen in the database.
func (r *ChunkRepository) MatchChunks(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	var rows []matchRow
	err := matchQuery(r.db.WithContext(ctx), q).Scan(&rows).Error
	if err != nil {
		return nil, classify("repository.MatchChunks", err)
	}

	results := make([]retrieval.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, retrieval.Result{
			ID:         row.ID,
			Ticker:     row.Ticker,
			Content:    row.Content,
			Metadata:   row.Metadata,
			Similarity: row.Similarity,
		})
	}
	return results, nil
}

func matchQuery(db *gorm.DB, q retrieval.Query) *gorm.DB {
	return db.Raw(
		"SELECT id, ticker, content, metadata, similarity FROM match_documents(?, ?, ?, ?)",
		pgvector.NewVector(q.Embedding),
		q.Threshold,
		q.Limit,
		q.Ticker,
	)
}

// ReplaceByTicker deletes the ticker's existing chunks and inserts chunks in
// a single transaction. It returns how many rows were deleted.
func (r *ChunkRepository) ReplaceByTicker(ctx context.Context, ticker string, chunks []model.DocumentChunk) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("ticker = ?", ticker).Delete(&model.DocumentChunk{})
		if res.Error != nil {
			return fmt.Errorf("delete chunks by ticker failed: %w", res.Error)
		}
		deleted = res.RowsAffected
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&chunks, insertBatchSize).Error; err != nil {
			return fmt.Errorf("create chunks batch failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, classify("repository.ReplaceByTicker", err)
	}
	return deleted, nil
}

func (r *ChunkRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).Count(&n).Error; err != nil {
		return 0, classify("repository.CountAll", err)
	}
	return n, nil
}

func (r *ChunkRepository) CountByTicker(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Ticker string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Select("ticker, count(*) AS count").
		Group("ticker").
		Scan(&rows).Error
	if err != nil {
		return nil, classify("repository.CountByTicker", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Ticker] = row.Count
	}
	return counts, nil
}

// classify maps driver errors onto retrieval error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return retrieval.Unavailable(op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"),
			pgErr.Code == "57014": // query_canceled
			return retrieval.Unavailable(op, err)
		case pgErr.Code == "22000", pgErr.Code == "22023":
			// pgvector reports mismatched dimensions as a data exception
			return &retrieval.Error{Kind: retrieval.KindInvalidArgument, Op: op, Err: err}
		}
		return retrieval.Internal(op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return retrieval.Unavailable(op, err)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, driver.ErrBadConn) {
		return retrieval.Unavailable(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrieval.Unavailable(op, err)
	}
	return retrieval.Internal(op, err)
}
