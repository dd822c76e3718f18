package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finrag/internal/model"
)

type FilingRepository struct {
	db *gorm.DB
}

func NewFilingRepository(db *gorm.DB) *FilingRepository {
	return &FilingRepository{db: db}
}

// Upsert inserts the filing or overwrites the row already stored for its ticker.
func (r *FilingRepository) Upsert(ctx context.Context, filing *model.Filing) error {
	filing.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{"company_name", "source", "fiscal_year", "chunk_count", "updated_at"}),
	}).Create(filing).Error
	if err != nil {
		return fmt.Errorf("upsert filing failed: %w", err)
	}
	return nil
}

func (r *FilingRepository) List(ctx context.Context) ([]model.Filing, error) {
	var list []model.Filing
	if err := r.db.WithContext(ctx).Order("ticker ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list filings failed: %w", err)
	}
	return list, nil
}

func (r *FilingRepository) GetByTicker(ctx context.Context, ticker string) (*model.Filing, error) {
	var filing model.Filing
	if err := r.db.WithContext(ctx).Where("ticker = ?", ticker).First(&filing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get filing failed: %w", err)
	}
	return &filing, nil
}
