// Package memory keeps document chunks in process. It backs tests and local
// runs without Postgres.
package memory

import (
	"context"
	"slices"
	"sync"

	"finrag/internal/model"
	"finrag/internal/retrieval"
)

type Store struct {
	mu     sync.RWMutex
	chunks []model.DocumentChunk
}

func NewStore() *Store {
	return &Store{
		chunks: []model.DocumentChunk{},
	}
}

func (s *Store) Add(chunks ...model.DocumentChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
}

func (s *Store) MatchChunks(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, retrieval.Unavailable("memory.MatchChunks", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return retrieval.Rank(s.chunks, q), nil
}

// ReplaceByTicker drops every chunk for ticker and stores chunks in their place.
func (s *Store) ReplaceByTicker(ctx context.Context, ticker string, chunks []model.DocumentChunk) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, retrieval.Unavailable("memory.ReplaceByTicker", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.chunks)
	s.chunks = slices.DeleteFunc(s.chunks, func(c model.DocumentChunk) bool {
		return c.Ticker == ticker
	})
	s.chunks = append(s.chunks, chunks...)
	return int64(before - (len(s.chunks) - len(chunks))), nil
}

func (s *Store) CountAll(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

func (s *Store) CountByTicker(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, c := range s.chunks {
		counts[c.Ticker]++
	}
	return counts, nil
}
