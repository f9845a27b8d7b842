package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/model"
)

type ServiceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Service, error)
	Create(ctx context.Context, service *model.Service) error
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.Service, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Service, error)
	Catalog(ctx context.Context, filter ServiceFilter, limit, offset int) ([]model.Service, int64, error)
}

// ServiceFilter: фильтры каталога услуг.
type ServiceFilter struct {
	OnlyActive bool
	// Только дочерние услуги ParentID; nil — корневые и дочерние вместе.
	ParentID *uuid.UUID
}

type GormServiceRepository struct {
	db *gorm.DB
}

func NewGormServiceRepository(db *gorm.DB) *GormServiceRepository {
	return &GormServiceRepository{db: db}
}

func (r *GormServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var s model.Service
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormServiceRepository) Create(ctx context.Context, service *model.Service) error {
	return r.db.WithContext(ctx).Create(service).Error
}

func (r *GormServiceRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.Service, error) {
	var services []model.Service
	err := r.db.WithContext(ctx).
		Model(&model.Service{}).
		Joins("JOIN provider_services ON provider_services.service_id = services.id").
		Where("provider_services.provider_id = ?", providerID).
		Order("services.name ASC").
		Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

// ListByIDs keeps no particular order; callers that care reorder by id.
func (r *GormServiceRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Service, error) {
	if len(ids) == 0 {
		return []model.Service{}, nil
	}
	var services []model.Service
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (r *GormServiceRepository) Catalog(ctx context.Context, filter ServiceFilter, limit, offset int) ([]model.Service, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Service{}).Scopes(filter.scope)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var services []model.Service
	if err := q.Order("name ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&services).Error; err != nil {
		return nil, 0, err
	}
	return services, total, nil
}

func (f ServiceFilter) scope(db *gorm.DB) *gorm.DB {
	if f.OnlyActive {
		db = db.Where("is_active = ?", true)
	}
	if f.ParentID != nil {
		db = db.Where("parent_id = ?", *f.ParentID)
	}
	return db
}
