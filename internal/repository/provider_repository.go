package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/master-booking/internal/model"
)

type ProviderRepository interface {
	// Получить мастера вместе с предлагаемыми услугами.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	// Заблокировать строку мастера до конца текущей транзакции.
	LockForUpdate(ctx context.Context, id uuid.UUID) error
	Create(ctx context.Context, provider *model.Provider) error
	AttachService(ctx context.Context, providerID, serviceID uuid.UUID) error
}

// Реализация на GORM.
type GormProviderRepository struct {
	db *gorm.DB
}

func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

func (r *GormProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	if err := r.db.WithContext(ctx).Preload("Services").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// LockForUpdate issues SELECT ... FOR UPDATE; the sqlite dialect drops the locking clause
// since sqlite already serialises writers.
func (r *GormProviderRepository) LockForUpdate(ctx context.Context, id uuid.UUID) error {
	var p model.Provider
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&p, "id = ?", id).Error
}

func (r *GormProviderRepository) Create(ctx context.Context, provider *model.Provider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *GormProviderRepository) AttachService(ctx context.Context, providerID, serviceID uuid.UUID) error {
	link := model.ProviderService{ProviderID: providerID, ServiceID: serviceID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error
}
