package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/model"
)

type ScheduleRepository interface {
	// ActiveForDay возвращает активный график на день недели (1..7) или nil, если его нет.
	ActiveForDay(ctx context.Context, providerID uuid.UUID, dayOfWeek int) (*model.WorkSchedule, error)
	// ListByProvider возвращает все графики мастера.
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.WorkSchedule, error)
	// Upsert делает schedule единственным активным графиком на его день недели.
	Upsert(ctx context.Context, schedule *model.WorkSchedule) error
	// DisableDay снимает активный график дня недели (выходной).
	DisableDay(ctx context.Context, providerID uuid.UUID, dayOfWeek int) error
}

type GormScheduleRepository struct {
	db *gorm.DB
}

func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

func (r *GormScheduleRepository) ActiveForDay(ctx context.Context, providerID uuid.UUID, dayOfWeek int) (*model.WorkSchedule, error) {
	var schedules []model.WorkSchedule
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND day_of_week = ? AND is_active = ?", providerID, dayOfWeek, true).
		Order("updated_at DESC").
		Limit(1).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return &schedules[0], nil
}

func (r *GormScheduleRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.WorkSchedule, error) {
	var schedules []model.WorkSchedule
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("day_of_week ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *GormScheduleRepository) Upsert(ctx context.Context, schedule *model.WorkSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if schedule.IsActive {
			err := tx.Model(&model.WorkSchedule{}).
				Where("provider_id = ? AND day_of_week = ? AND is_active = ?", schedule.ProviderID, schedule.DayOfWeek, true).
				Update("is_active", false).Error
			if err != nil {
				return err
			}
		}
		return tx.Create(schedule).Error
	})
}

func (r *GormScheduleRepository) DisableDay(ctx context.Context, providerID uuid.UUID, dayOfWeek int) error {
	return r.db.WithContext(ctx).
		Model(&model.WorkSchedule{}).
		Where("provider_id = ? AND day_of_week = ? AND is_active = ?", providerID, dayOfWeek, true).
		Update("is_active", false).Error
}
