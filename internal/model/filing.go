package model

import "time"

// Filing records the most recent ingestion for a ticker. The chunks
// themselves live in document_chunks.
type Filing struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Ticker      string    `gorm:"size:16;not null;uniqueIndex" json:"ticker"`
	CompanyName string    `gorm:"size:256" json:"company_name,omitempty"`
	Source      string    `gorm:"size:32;not null" json:"source"`
	FiscalYear  string    `gorm:"size:16" json:"fiscal_year,omitempty"`
	ChunkCount  int       `gorm:"not null" json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Filing) TableName() string {
	return "filings"
}
