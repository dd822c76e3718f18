package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchDocumentsSQL(t *testing.T) {
	sql := MatchDocumentsSQL(1536)

	assert.Contains(t, sql, "query_embedding vector(1536)")
	assert.Contains(t, sql, "c.embedding <=> query_embedding AS distance")
	assert.Contains(t, sql, "1 - d.distance > match_threshold")
	assert.Contains(t, sql, "d.distance <= 1e-06")
	assert.Contains(t, sql, "ORDER BY d.distance ASC, d.id ASC")
	assert.Contains(t, sql, "LIMIT match_count")
}
