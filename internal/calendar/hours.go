package calendar

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

// DayWindow: рабочее окно мастера на конкретную дату.
type DayWindow struct {
	Date  timezone.Date
	Open  timezone.WallClock
	Close timezone.WallClock
	// Те же границы в абсолютном времени.
	Range TimeRange
}

// WorkingHours отвечает на вопрос "когда мастер работает в этот день".
type WorkingHours struct {
	schedules repository.ScheduleRepository
	conv      *timezone.Converter
}

func NewWorkingHours(schedules repository.ScheduleRepository, conv *timezone.Converter) *WorkingHours {
	return &WorkingHours{schedules: schedules, conv: conv}
}

// WindowFor возвращает nil, если на этот день недели нет активного графика.
// День недели считается по самой дате (в бизнес-таймзоне), Monday=1..Sunday=7.
func (h *WorkingHours) WindowFor(ctx context.Context, providerID uuid.UUID, date timezone.Date) (*DayWindow, error) {
	schedule, err := h.schedules.ActiveForDay(ctx, providerID, date.ISOWeekday())
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	if schedule == nil {
		return nil, nil
	}

	open, err := timezone.ParseWallClock(schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", schedule.ID, err)
	}
	closing, err := timezone.ParseWallClock(schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", schedule.ID, err)
	}

	start := h.conv.ToInstant(date, open)
	end := h.conv.ToInstant(date, closing)
	if !end.After(start) {
		// Битый график (start >= end) считаем выходным.
		return nil, nil
	}

	return &DayWindow{
		Date:  date,
		Open:  open,
		Close: closing,
		Range: TimeRange{Start: start, End: end},
	}, nil
}

func (h *WorkingHours) Converter() *timezone.Converter { return h.conv }
