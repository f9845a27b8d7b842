package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/model"
)

type BundleRepository interface {
	// Bundle создаётся до своих записей: BookingIDs генерируются заранее.
	Create(ctx context.Context, bundle *model.Bundle) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Bundle, error)
}

type GormBundleRepository struct {
	db *gorm.DB
}

func NewGormBundleRepository(db *gorm.DB) *GormBundleRepository {
	return &GormBundleRepository{db: db}
}

func (r *GormBundleRepository) Create(ctx context.Context, bundle *model.Bundle) error {
	return r.db.WithContext(ctx).Omit("Bookings").Create(bundle).Error
}

func (r *GormBundleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Bundle, error) {
	var b model.Bundle
	err := r.db.WithContext(ctx).
		Preload("Bookings", func(db *gorm.DB) *gorm.DB { return db.Order("starts_at ASC") }).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}
