// Package availability decides whether a provider can take a booking at a
// given time and enumerates the start instants that are still free.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

// Окно выборки расширяется на сутки в обе стороны, чтобы увидеть записи,
// пересекающие полночь в небазовой таймзоне.
const queryMargin = 24 * time.Hour

type Validator struct {
	hours    *calendar.WorkingHours
	blocks   repository.BlockRepository
	bookings repository.BookingRepository
	now      func() time.Time
}

// NewValidator binds to repos, so a validator built from transaction-scoped repos
// sees uncommitted writes of the same transaction.
func NewValidator(repos repository.Repos, conv *timezone.Converter, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		hours:    calendar.NewWorkingHours(repos.Schedules, conv),
		blocks:   repos.Blocks,
		bookings: repos.Bookings,
		now:      now,
	}
}

// Validate проверяет [start, end) по порядку: рабочие часы, блокировки,
// занятые записи, прошлое. exclude — запись, которую переносим.
func (v *Validator) Validate(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude *uuid.UUID) error {
	candidate, err := calendar.NewTimeRange(start, end)
	if err != nil {
		return apperr.Validation(apperr.ReasonInvalidInput, "invalid interval %s - %s", start, end)
	}

	date := v.hours.Converter().DateOf(start)
	window, err := v.hours.WindowFor(ctx, providerID, date)
	if err != nil {
		return err
	}
	if window == nil {
		return apperr.Conflict(apperr.ReasonOutsideWorkingHours, "provider %s does not work on %s", providerID, date)
	}
	if !window.Range.Contains(candidate) {
		return apperr.Conflict(apperr.ReasonOutsideWorkingHours,
			"interval is outside working hours %s-%s on %s", window.Open, window.Close, date)
	}

	occ, err := loadOccupancy(ctx, v.blocks, v.bookings, providerID, candidate, exclude)
	if err != nil {
		return err
	}
	if err := occ.check(candidate); err != nil {
		return err
	}

	if start.Before(v.now()) {
		return apperr.Validation(apperr.ReasonInThePast, "start %s is in the past", start.Format(time.RFC3339))
	}
	return nil
}

// occupancy: блокировки и занимающие время записи в окне выборки.
type occupancy struct {
	blocks   []calendar.TimeRange
	bookings []calendar.TimeRange
}

func loadOccupancy(
	ctx context.Context,
	blocks repository.BlockRepository,
	bookings repository.BookingRepository,
	providerID uuid.UUID,
	around calendar.TimeRange,
	exclude *uuid.UUID,
) (*occupancy, error) {
	q := around.Widen(queryMargin)

	bs, err := blocks.Overlapping(ctx, providerID, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	bks, err := bookings.OccupyingOverlapping(ctx, providerID, q.Start, q.End, exclude)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	occ := &occupancy{
		blocks:   make([]calendar.TimeRange, 0, len(bs)),
		bookings: make([]calendar.TimeRange, 0, len(bks)),
	}
	for _, b := range bs {
		occ.blocks = append(occ.blocks, calendar.TimeRange{Start: b.StartsAt, End: b.EndsAt})
	}
	for _, b := range bks {
		occ.bookings = append(occ.bookings, calendar.TimeRange{Start: b.StartsAt, End: b.EndsAt})
	}
	return occ, nil
}

func (o *occupancy) check(candidate calendar.TimeRange) error {
	if hit, conflicts := calendar.HasOverlap(candidate, o.blocks); hit {
		return apperr.Conflict(apperr.ReasonBlocked, "provider is unavailable %s - %s",
			conflicts[0].Start.Format(time.RFC3339), conflicts[0].End.Format(time.RFC3339))
	}
	if hit, conflicts := calendar.HasOverlap(candidate, o.bookings); hit {
		return apperr.Conflict(apperr.ReasonAlreadyBooked, "time overlaps booking %s - %s",
			conflicts[0].Start.Format(time.RFC3339), conflicts[0].End.Format(time.RFC3339))
	}
	return nil
}
