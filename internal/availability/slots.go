package availability

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

var tracer = otel.Tracer("github.com/Leganyst/master-booking/internal/availability")

type SlotGenerator struct {
	repos    repository.Repos
	hours    *calendar.WorkingHours
	conv     *timezone.Converter
	leadTime time.Duration
	now      func() time.Time
}

func NewSlotGenerator(repos repository.Repos, conv *timezone.Converter, leadTime time.Duration, now func() time.Time) *SlotGenerator {
	if now == nil {
		now = time.Now
	}
	return &SlotGenerator{
		repos:    repos,
		hours:    calendar.NewWorkingHours(repos.Schedules, conv),
		conv:     conv,
		leadTime: leadTime,
		now:      now,
	}
}

// Generate читает всё нужное из хранилища сразу, а кандидатов перебирает лениво.
// Последовательность можно обходить повторно, каждый обход даёт тот же результат.
//
// Сетка: от открытия с шагом duration+break, пока слот помещается в окно.
// Если сетка не доходит до закрытия, добавляется последний слот, заканчивающийся
// ровно в момент закрытия.
func (g *SlotGenerator) Generate(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date) (iter.Seq[time.Time], error) {
	ctx, span := tracer.Start(ctx, "availability.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.id", providerID.String()),
		attribute.String("service.id", serviceID.String()),
		attribute.String("date", date.String()),
	)

	provider, service, err := g.load(ctx, providerID, serviceID)
	if err != nil {
		return nil, err
	}

	window, err := g.hours.WindowFor(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return empty, nil
	}

	now := g.now()
	today := g.conv.DateOf(now)
	if dateBefore(date, today) {
		return empty, nil
	}
	var earliest time.Time
	if date == today {
		earliest = now.Add(g.leadTime)
	}

	occ, err := loadOccupancy(ctx, g.repos.Blocks, g.repos.Bookings, providerID, window.Range, nil)
	if err != nil {
		return nil, err
	}

	duration := service.Duration()
	step := duration + provider.BreakDuration()
	win := window.Range

	return func(yield func(time.Time) bool) {
		admissible := func(start time.Time) bool {
			// lead time отсекает слот, но не обрывает перебор
			if !earliest.IsZero() && start.Before(earliest) {
				return false
			}
			return occ.check(calendar.TimeRange{Start: start, End: start.Add(duration)}) == nil
		}

		var last time.Time
		for start := win.Start; !start.Add(duration).After(win.End); start = start.Add(step) {
			last = start
			if admissible(start) && !yield(start) {
				return
			}
		}

		closing := win.End.Add(-duration)
		if !last.IsZero() && closing.After(last) && admissible(closing) {
			yield(closing)
		}
	}, nil
}

// Slots: то же, что Generate, но сразу в срез.
func (g *SlotGenerator) Slots(ctx context.Context, providerID, serviceID uuid.UUID, date timezone.Date) ([]time.Time, error) {
	seq, err := g.Generate(ctx, providerID, serviceID, date)
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []time.Time{}
	}
	return slots, nil
}

func (g *SlotGenerator) load(ctx context.Context, providerID, serviceID uuid.UUID) (*model.Provider, *model.Service, error) {
	provider, err := g.repos.Providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("provider %s not found", providerID)
		}
		return nil, nil, fmt.Errorf("load provider: %w", err)
	}
	service, err := g.repos.Services.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("service %s not found", serviceID)
		}
		return nil, nil, fmt.Errorf("load service: %w", err)
	}
	if err := CheckBookable(provider, service); err != nil {
		return nil, nil, err
	}
	return provider, service, nil
}

// CheckBookable: мастер и услуга активны, мастер оказывает услугу.
func CheckBookable(provider *model.Provider, service *model.Service) error {
	switch {
	case !provider.IsActive:
		return apperr.Validation(apperr.ReasonInactive, "provider %s is inactive", provider.ID)
	case !service.IsActive:
		return apperr.Validation(apperr.ReasonInactive, "service %s is inactive", service.ID)
	case !provider.Offers(service.ID):
		return apperr.Validation(apperr.ReasonNotOffered, "provider %s does not offer service %s", provider.ID, service.ID)
	case service.DurationMin <= 0:
		return apperr.Validation(apperr.ReasonInvalidInput, "service %s has no duration", service.ID)
	}
	return nil
}

func empty(func(time.Time) bool) {}

func dateBefore(a, b timezone.Date) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	return a.Day < b.Day
}
