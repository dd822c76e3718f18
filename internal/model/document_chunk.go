package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDimension is the vector length produced by text-embedding-3-small.
const EmbeddingDimension = 1536

// Metadata is the free-form JSON attached to a chunk (section, chunk_index, source, ...).
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata failed: %w", err)
	}
	return b, nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported metadata column type")
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("unmarshal metadata failed: %w", err)
		}
	}
	*m = out
	return nil
}

func (Metadata) GormDataType() string {
	return "jsonb"
}

// DocumentChunk is one embedded slice of a filing. Rows are written by
// ingestion and only removed when the same ticker is re-ingested.
type DocumentChunk struct {
	ID        string          `gorm:"primaryKey;type:uuid" json:"id"`
	CompanyID *string         `gorm:"type:uuid;index" json:"company_id,omitempty"`
	Ticker    string          `gorm:"type:varchar(16);not null;index" json:"ticker"`
	Content   string          `gorm:"type:text;not null" json:"content"`
	Metadata  Metadata        `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	Embedding pgvector.Vector `gorm:"type:vector(1536);not null" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
