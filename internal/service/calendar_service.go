package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/availability"
	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

// SlotCache: кэш рассчитанных слотов (redis в проде).
type SlotCache interface {
	// Get отдаёт и версию провайдера, под которой потом можно сделать Set.
	Get(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date) ([]time.Time, int64, bool, error)
	Set(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date, version int64, slots []time.Time) error
	Invalidate(ctx context.Context, providerID uuid.UUID) error
}

// CalendarService: чтение календаря и управление блокировками.
// Переходы записей живут в booking.Lifecycle.
type CalendarService struct {
	repos  repository.Repos
	slots  *availability.SlotGenerator
	cache  SlotCache
	conv   *timezone.Converter
	logger *zap.Logger
	now    func() time.Time
}

// cache может быть nil.
func NewCalendarService(
	repos repository.Repos,
	slots *availability.SlotGenerator,
	cache SlotCache,
	conv *timezone.Converter,
	logger *zap.Logger,
	now func() time.Time,
) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		repos:  repos,
		slots:  slots,
		cache:  cache,
		conv:   conv,
		logger: logger.Named("calendar"),
		now:    now,
	}
}

// Availability возвращает свободные начала слотов на дату.
// Сегодняшний день не кэшируется: результат зависит от текущего момента.
func (s *CalendarService) Availability(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date) ([]time.Time, error) {
	cacheable := s.cache != nil && date != s.conv.DateOf(s.now())

	var version int64
	if cacheable {
		slots, v, ok, err := s.cache.Get(ctx, providerID, serviceID, date)
		switch {
		case err != nil:
			s.logger.Warn("availability cache get failed", zap.Error(err))
			cacheable = false
		case ok:
			return slots, nil
		}
		version = v
	}

	slots, err := s.slots.Slots(ctx, providerID, serviceID, date)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, providerID, serviceID, date, version, slots); err != nil {
			s.logger.Warn("availability cache set failed", zap.Error(err))
		}
	}
	return slots, nil
}

// ListBookings: список записей по фильтру; page/pageSize зажимаются, а не отвергаются.
func (s *CalendarService) ListBookings(
	ctx context.Context,
	filter repository.BookingFilter,
	page, pageSize int,
) (calendar.Page[model.Booking], error) {
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return calendar.Page[model.Booking]{}, apperr.Validation(apperr.ReasonInvalidInput, "to must be after from")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return calendar.Page[model.Booking]{}, apperr.Validation(apperr.ReasonInvalidInput, "unknown status %q", filter.Status)
	}

	page, pageSize = calendar.ClampPage(page, pageSize)
	items, total, err := s.repos.Bookings.List(ctx, filter, pageSize, calendar.Offset(page, pageSize))
	if err != nil {
		return calendar.Page[model.Booking]{}, fmt.Errorf("list bookings: %w", err)
	}
	return calendar.NewPage(items, page, pageSize, total), nil
}

// AddBlock закрывает интервал для записи. Существующие записи не трогает.
func (s *CalendarService) AddBlock(ctx context.Context, providerID uuid.UUID, start, end time.Time, reason string) (*model.BlockInterval, error) {
	tr, err := calendar.NewTimeRange(start, end)
	if err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "block end must be after start")
	}
	if err := s.ensureProvider(ctx, providerID); err != nil {
		return nil, err
	}

	block := &model.BlockInterval{
		ProviderID: providerID,
		StartsAt:   tr.Start.UTC().Truncate(time.Second),
		EndsAt:     tr.End.UTC().Truncate(time.Second),
		Reason:     reason,
	}
	if err := s.repos.Blocks.Create(ctx, block); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	s.logger.Info("block added",
		zap.Stringer("provider_id", providerID),
		zap.Stringer("block_id", block.ID),
		zap.Time("starts_at", block.StartsAt),
		zap.Time("ends_at", block.EndsAt),
	)
	s.invalidate(ctx, providerID)
	return block, nil
}

func (s *CalendarService) RemoveBlock(ctx context.Context, providerID, blockID uuid.UUID) error {
	deleted, err := s.repos.Blocks.Delete(ctx, providerID, blockID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if !deleted {
		return apperr.NotFound("block %s of provider %s not found", blockID, providerID)
	}
	s.logger.Info("block removed", zap.Stringer("provider_id", providerID), zap.Stringer("block_id", blockID))
	s.invalidate(ctx, providerID)
	return nil
}

func (s *CalendarService) ensureProvider(ctx context.Context, providerID uuid.UUID) error {
	if _, err := s.repos.Providers.GetByID(ctx, providerID); err != nil {
		return mapNotFound(err, "provider", providerID)
	}
	return nil
}

// Ошибка кэша не должна ломать запись: старые ключи доживут до TTL.
func (s *CalendarService) invalidate(ctx context.Context, providerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, providerID); err != nil {
		s.logger.Warn("availability cache invalidate failed",
			zap.Stringer("provider_id", providerID),
			zap.Error(err),
		)
	}
}
