package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/model"
)

// BookingFilter — фильтры списка записей. Нулевые значения не фильтруют.
type BookingFilter struct {
	ProviderID uuid.UUID
	ClientID   uuid.UUID
	Status     model.BookingStatus
	From       *time.Time
	To         *time.Time
}

type BookingRepository interface {
	// Создать новое бронирование.
	Create(ctx context.Context, booking *model.Booking) error
	// Получить бронирование по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// Сохранить изменяемые поля (статус, время, причина отмены и т.п.).
	Update(ctx context.Context, booking *model.Booking) error
	// Жёсткое удаление; false, если записи не было.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// Записи мастера, занимающие время и пересекающие [from, to).
	OccupyingOverlapping(ctx context.Context, providerID uuid.UUID, from, to time.Time, exclude *uuid.UUID) ([]model.Booking, error)
	// Количество неотменённых записей клиента (для скидки на первый визит).
	CountNonCancelledByClient(ctx context.Context, clientID uuid.UUID) (int64, error)
	// Список бронирований по фильтру с пагинацией.
	List(ctx context.Context, filter BookingFilter, limit, offset int) ([]model.Booking, int64, error)
	// Подтверждённые записи, закончившиеся к моменту now.
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
}

// Реализация на GORM.
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

func (r *GormBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	update := map[string]any{
		"starts_at":           booking.StartsAt.UTC(),
		"ends_at":             booking.EndsAt.UTC(),
		"status":              booking.Status,
		"cancellation_reason": booking.CancellationReason,
		"notes":               booking.Notes,
		"cancelled_at":        booking.CancelledAt,
		"completed_at":        booking.CompletedAt,
	}
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ?", booking.ID).
		Updates(update)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormBookingRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&model.Booking{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormBookingRepository) OccupyingOverlapping(
	ctx context.Context,
	providerID uuid.UUID,
	from, to time.Time,
	exclude *uuid.UUID,
) ([]model.Booking, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("provider_id = ?", providerID).
		Where("status IN ?", model.OccupyingStatuses).
		Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC())

	if exclude != nil {
		q = q.Where("id <> ?", *exclude)
	}

	var bookings []model.Booking
	if err := q.Order("starts_at ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *GormBookingRepository) CountNonCancelledByClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("client_id = ? AND status <> ?", clientID, model.BookingStatusCancelled).
		Count(&n).Error
	return n, err
}

func (r *GormBookingRepository) List(
	ctx context.Context,
	filter BookingFilter,
	limit, offset int,
) ([]model.Booking, int64, error) {
	var (
		bookings []model.Booking
		total    int64
	)

	q := r.db.WithContext(ctx).Model(&model.Booking{})
	if filter.ProviderID != uuid.Nil {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.ClientID != uuid.Nil {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("ends_at > ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("starts_at < ?", filter.To.UTC())
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("starts_at ASC").Find(&bookings).Error; err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}

func (r *GormBookingRepository) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	var bookings []model.Booking
	q := r.db.WithContext(ctx).
		Where("status IN ?", []model.BookingStatus{model.BookingStatusConfirmed, model.BookingStatusRescheduled}).
		Where("ends_at <= ?", now.UTC()).
		Order("ends_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}
