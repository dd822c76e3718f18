package retrieval

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"finrag/internal/model"
)

// CosineSimilarity returns dot(a,b)/(|a||b|). Mismatched lengths or a
// zero-norm operand yield NaN so callers can drop the pair.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Passes reports whether a chunk at the given cosine distance clears
// threshold. Threshold 1.0 admits exact matches only.
func Passes(distance, threshold float64) bool {
	if math.IsNaN(distance) {
		return false
	}
	if threshold >= 1 {
		return distance <= ExactMatchEpsilon
	}
	return 1-distance > threshold
}

// Rank scores candidates against q in process, the same way the
// match_documents SQL function does.
func Rank(candidates []model.DocumentChunk, q Query) []Result {
	type scored struct {
		chunk    *model.DocumentChunk
		distance float64
	}

	var kept []scored
	for i := range candidates {
		c := &candidates[i]
		if q.Ticker != "" && c.Ticker != q.Ticker {
			continue
		}
		distance := 1 - CosineSimilarity(q.Embedding, c.Embedding.Slice())
		if !Passes(distance, q.Threshold) {
			continue
		}
		kept = append(kept, scored{chunk: c, distance: distance})
	}

	slices.SortFunc(kept, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return strings.Compare(a.chunk.ID, b.chunk.ID)
	})
	if q.Limit > 0 && len(kept) > q.Limit {
		kept = kept[:q.Limit]
	}

	results := make([]Result, 0, len(kept))
	for _, s := range kept {
		results = append(results, Result{
			ID:         s.chunk.ID,
			Ticker:     s.chunk.Ticker,
			Content:    s.chunk.Content,
			Metadata:   s.chunk.Metadata,
			Similarity: SimilarityFromDistance(s.distance),
		})
	}
	return results
}

// SimilarityFromDistance converts cosine distance to a similarity capped at 1.
func SimilarityFromDistance(distance float64) float64 {
	return min(1-distance, 1)
}
