package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finrag/internal/model"
	"finrag/internal/retrieval"
)

func newChunk(id, ticker string, vec ...float32) model.DocumentChunk {
	return model.DocumentChunk{
		ID:        id,
		Ticker:    ticker,
		Content:   "text " + id,
		Metadata:  model.Metadata{},
		Embedding: pgvector.NewVector(vec),
	}
}

func TestStoreMatchThroughRetriever(t *testing.T) {
	store := NewStore()
	store.Add(
		newChunk("1", "AAPL", 1, 0, 0),
		newChunk("2", "AAPL", 0, 1, 0),
		newChunk("3", "TSLA", 1, 0.1, 0),
	)
	r := retrieval.NewRetriever(store, retrieval.Options{Dimension: 3})

	results, err := r.Match(context.Background(), retrieval.Query{
		Embedding: []float32{1, 0, 0},
		Threshold: 0.5,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "3", results[1].ID)

	filtered, err := r.Match(context.Background(), retrieval.Query{
		Embedding: []float32{1, 0, 0},
		Threshold: 0.5,
		Limit:     10,
		Ticker:    "TSLA",
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "TSLA", filtered[0].Ticker)
}

func TestStoreReplaceByTicker(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Add(newChunk("1", "AAPL", 1, 0), newChunk("2", "AAPL", 0, 1), newChunk("3", "MSFT", 1, 1))

	deleted, err := store.ReplaceByTicker(ctx, "AAPL", []model.DocumentChunk{newChunk("4", "AAPL", 1, 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	total, err := store.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	counts, err := store.CountByTicker(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AAPL": 1, "MSFT": 1}, counts)
}

func TestStoreConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Add(newChunk("seed", "X", 1, 0))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.MatchChunks(ctx, retrieval.Query{Embedding: []float32{1, 0}, Threshold: 0.1, Limit: 5})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := store.ReplaceByTicker(ctx, "Y", []model.DocumentChunk{newChunk("y", "Y", 0, 1)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := store.CountByTicker(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["Y"])
}

func TestStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().MatchChunks(ctx, retrieval.Query{Embedding: []float32{1}, Threshold: 0, Limit: 1})
	assert.ErrorIs(t, err, retrieval.ErrUnavailable)
}
