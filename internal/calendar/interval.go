package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange представляет временной интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange создаёт интервал; Start должен быть строго раньше End.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

func (tr TimeRange) Duration() time.Duration { return tr.End.Sub(tr.Start) }

// Overlaps: полуоткрытые интервалы [Start, End) пересекаются,
// если a.Start < b.End && b.Start < a.End. Касание концами пересечением не считается.
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Contains reports whether other lies entirely inside tr.
func (tr TimeRange) Contains(other TimeRange) bool {
	return !other.Start.Before(tr.Start) && !other.End.After(tr.End)
}

// HasOverlap проверяет, пересекается ли newRange с existing, и возвращает конфликты.
func HasOverlap(newRange TimeRange, existing []TimeRange) (bool, []TimeRange) {
	var conflicts []TimeRange
	for _, tr := range existing {
		if newRange.Overlaps(tr) {
			conflicts = append(conflicts, tr)
		}
	}
	return len(conflicts) > 0, conflicts
}

// Widen extends the range by d on both sides.
func (tr TimeRange) Widen(d time.Duration) TimeRange {
	return TimeRange{Start: tr.Start.Add(-d), End: tr.End.Add(d)}
}

// ===== Форматирование интервала для пользователя =====

var ruWeekdays = map[time.Weekday]string{
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
	time.Sunday:    "Воскресенье",
}

// FormatForUser форматирует интервал в человекочитаемую строку.
// Если loc != nil, время переводится в указанный часовой пояс.
func FormatForUser(tr TimeRange, loc *time.Location) string {
	start := tr.Start
	end := tr.End

	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	weekday := ruWeekdays[start.Weekday()]
	return fmt.Sprintf("%s, %s, %s–%s", weekday, start.Format("02.01.2006"), start.Format("15:04"), end.Format("15:04"))
}
