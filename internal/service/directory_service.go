package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

// DirectoryService ведёт справочник: мастера, услуги, недельные графики.
type DirectoryService struct {
	repos  repository.Repos
	cache  SlotCache
	logger *zap.Logger
}

func NewDirectoryService(repos repository.Repos, cache SlotCache, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{repos: repos, cache: cache, logger: logger.Named("directory")}
}

type ProviderInput struct {
	DisplayName      string
	Description      string
	BreakDurationMin int64
}

func (s *DirectoryService) CreateProvider(ctx context.Context, in ProviderInput) (*model.Provider, error) {
	name := strings.TrimSpace(in.DisplayName)
	switch {
	case name == "":
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "display_name is required")
	case in.BreakDurationMin < 0:
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "break_duration_min must be >= 0")
	}

	p := &model.Provider{
		DisplayName:      name,
		Description:      in.Description,
		IsActive:         true,
		BreakDurationMin: in.BreakDurationMin,
	}
	if err := s.repos.Providers.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	s.logger.Info("provider created", zap.Stringer("provider_id", p.ID))
	return p, nil
}

func (s *DirectoryService) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	p, err := s.repos.Providers.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "provider", id)
	}
	return p, nil
}

type ServiceInput struct {
	Name               string
	Description        string
	DurationMin        int64
	Price              decimal.Decimal
	BonusPointsPercent decimal.Decimal
	ParentID           *uuid.UUID
}

func (s *DirectoryService) CreateService(ctx context.Context, in ServiceInput) (*model.Service, error) {
	name := strings.TrimSpace(in.Name)
	hundred := decimal.NewFromInt(100)
	switch {
	case name == "":
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "name is required")
	case in.DurationMin <= 0:
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "duration_min must be > 0")
	case in.Price.IsNegative():
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "price must be >= 0")
	case in.BonusPointsPercent.IsNegative() || in.BonusPointsPercent.GreaterThan(hundred):
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "bonus_points_percent must be in [0, 100]")
	}
	if in.ParentID != nil {
		if _, err := s.repos.Services.GetByID(ctx, *in.ParentID); err != nil {
			return nil, mapNotFound(err, "parent service", *in.ParentID)
		}
	}

	svc := &model.Service{
		Name:               name,
		Description:        in.Description,
		DurationMin:        in.DurationMin,
		Price:              in.Price.Round(2),
		IsActive:           true,
		ParentID:           in.ParentID,
		BonusPointsPercent: in.BonusPointsPercent,
	}
	if err := s.repos.Services.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.logger.Info("service created", zap.Stringer("service_id", svc.ID), zap.Int64("duration_min", svc.DurationMin))
	return svc, nil
}

// AttachService: мастер начинает оказывать услугу. Повторный вызов ничего не меняет.
func (s *DirectoryService) AttachService(ctx context.Context, providerID, serviceID uuid.UUID) error {
	if _, err := s.repos.Providers.GetByID(ctx, providerID); err != nil {
		return mapNotFound(err, "provider", providerID)
	}
	if _, err := s.repos.Services.GetByID(ctx, serviceID); err != nil {
		return mapNotFound(err, "service", serviceID)
	}
	if err := s.repos.Providers.AttachService(ctx, providerID, serviceID); err != nil {
		return fmt.Errorf("attach service: %w", err)
	}
	s.invalidate(ctx, providerID)
	return nil
}

func (s *DirectoryService) ListServices(ctx context.Context, providerID uuid.UUID) ([]model.Service, error) {
	if _, err := s.repos.Providers.GetByID(ctx, providerID); err != nil {
		return nil, mapNotFound(err, "provider", providerID)
	}
	services, err := s.repos.Services.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// Catalog: каталог услуг постранично, page/pageSize зажимаются.
func (s *DirectoryService) Catalog(ctx context.Context, filter repository.ServiceFilter, page, pageSize int) (calendar.Page[model.Service], error) {
	page, pageSize = calendar.ClampPage(page, pageSize)
	items, total, err := s.repos.Services.Catalog(ctx, filter, pageSize, calendar.Offset(page, pageSize))
	if err != nil {
		return calendar.Page[model.Service]{}, fmt.Errorf("list catalog: %w", err)
	}
	return calendar.NewPage(items, page, pageSize, total), nil
}

type ScheduleInput struct {
	DayOfWeek int
	StartTime string
	EndTime   string
}

// SetSchedule заменяет график мастера на день недели.
func (s *DirectoryService) SetSchedule(ctx context.Context, providerID uuid.UUID, in ScheduleInput) (*model.WorkSchedule, error) {
	if in.DayOfWeek < 1 || in.DayOfWeek > 7 {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "day_of_week must be in [1, 7], got %d", in.DayOfWeek)
	}
	open, err := timezone.ParseWallClock(in.StartTime)
	if err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "invalid start_time %q", in.StartTime)
	}
	closeAt, err := timezone.ParseWallClock(in.EndTime)
	if err != nil {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "invalid end_time %q", in.EndTime)
	}
	if closeAt.Minutes() <= open.Minutes() {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "end_time must be after start_time")
	}
	if _, err := s.repos.Providers.GetByID(ctx, providerID); err != nil {
		return nil, mapNotFound(err, "provider", providerID)
	}

	schedule := &model.WorkSchedule{
		ProviderID: providerID,
		DayOfWeek:  in.DayOfWeek,
		StartTime:  open.String(),
		EndTime:    closeAt.String(),
		IsActive:   true,
	}
	if err := s.repos.Schedules.Upsert(ctx, schedule); err != nil {
		return nil, fmt.Errorf("upsert schedule: %w", err)
	}

	s.logger.Info("schedule updated",
		zap.Stringer("provider_id", providerID),
		zap.Int("day_of_week", in.DayOfWeek),
		zap.String("hours", schedule.StartTime+"-"+schedule.EndTime),
	)
	s.invalidate(ctx, providerID)
	return schedule, nil
}

// DayOff делает день недели выходным. История графиков сохраняется.
func (s *DirectoryService) DayOff(ctx context.Context, providerID uuid.UUID, dayOfWeek int) error {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return apperr.Validation(apperr.ReasonInvalidInput, "day_of_week must be in [1, 7], got %d", dayOfWeek)
	}
	if _, err := s.repos.Providers.GetByID(ctx, providerID); err != nil {
		return mapNotFound(err, "provider", providerID)
	}
	if err := s.repos.Schedules.DisableDay(ctx, providerID, dayOfWeek); err != nil {
		return fmt.Errorf("disable schedule: %w", err)
	}
	s.logger.Info("day off", zap.Stringer("provider_id", providerID), zap.Int("day_of_week", dayOfWeek))
	s.invalidate(ctx, providerID)
	return nil
}

func (s *DirectoryService) ListSchedules(ctx context.Context, providerID uuid.UUID) ([]model.WorkSchedule, error) {
	schedules, err := s.repos.Schedules.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

func (s *DirectoryService) invalidate(ctx context.Context, providerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, providerID); err != nil {
		s.logger.Warn("availability cache invalidate failed", zap.Stringer("provider_id", providerID), zap.Error(err))
	}
}

func mapNotFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}
