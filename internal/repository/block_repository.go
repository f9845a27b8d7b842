package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/model"
)

type BlockRepository interface {
	// Блокировки мастера, пересекающие [from, to).
	Overlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]model.BlockInterval, error)
	Create(ctx context.Context, block *model.BlockInterval) error
	// Удалить блокировку мастера; false, если такой не было.
	Delete(ctx context.Context, providerID, id uuid.UUID) (bool, error)
}

type GormBlockRepository struct {
	db *gorm.DB
}

func NewGormBlockRepository(db *gorm.DB) *GormBlockRepository {
	return &GormBlockRepository{db: db}
}

func (r *GormBlockRepository) Overlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]model.BlockInterval, error) {
	var blocks []model.BlockInterval
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC()).
		Order("starts_at ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (r *GormBlockRepository) Create(ctx context.Context, block *model.BlockInterval) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *GormBlockRepository) Delete(ctx context.Context, providerID, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Delete(&model.BlockInterval{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
