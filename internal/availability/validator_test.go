package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/model"
)

func TestValidate_Reasons(t *testing.T) {
	f := newFixture(t)
	f.addBlock(t, at(11, 0), at(12, 0))
	booked := f.addBooking(t, at(14, 0), at(15, 0), model.BookingStatusConfirmed)

	sunday := time.Date(2030, time.June, 2, 10, 0, 0, 0, msk)

	tests := []struct {
		name       string
		start, end time.Time
		exclude    bool
		want       error
	}{
		{"inside free window", at(9, 0), at(10, 0), false, nil},
		{"ends exactly at close", at(17, 0), at(18, 0), false, nil},
		{"one minute past close", at(17, 1), at(18, 1), false, apperr.ErrOutsideWorkingHours},
		{"before open", at(8, 30), at(9, 30), false, apperr.ErrOutsideWorkingHours},
		{"day without schedule", sunday, sunday.Add(time.Hour), false, apperr.ErrOutsideWorkingHours},
		{"overlaps block", at(11, 30), at(12, 30), false, apperr.ErrBlocked},
		{"touches block end", at(12, 0), at(13, 0), false, nil},
		{"overlaps booking", at(14, 30), at(15, 30), false, apperr.ErrAlreadyBooked},
		{"touches booking end", at(15, 0), at(16, 0), false, nil},
		{"touches booking start", at(13, 0), at(14, 0), false, nil},
		{"same slot excluding itself", at(14, 0), at(15, 0), true, nil},
	}

	v := f.validator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.exclude {
				err = v.Validate(context.Background(), f.provider.ID, tt.start, tt.end, &booked.ID)
			} else {
				err = v.Validate(context.Background(), f.provider.ID, tt.start, tt.end, nil)
			}
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_InThePastIsValidationError(t *testing.T) {
	f := newFixture(t)
	f.now = at(12, 0)

	err := f.validator().Validate(context.Background(), f.provider.ID, at(10, 0), at(11, 0), nil)
	if !errors.Is(err, apperr.ErrInThePast) {
		t.Fatalf("expected in-the-past, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %s", apperr.KindOf(err))
	}
}

func TestValidate_WorkingHoursCheckedBeforeConflicts(t *testing.T) {
	f := newFixture(t)
	f.addBlock(t, at(17, 0), at(19, 0))

	err := f.validator().Validate(context.Background(), f.provider.ID, at(17, 30), at(18, 30), nil)
	if apperr.ReasonOf(err) != apperr.ReasonOutsideWorkingHours {
		t.Fatalf("expected outside working hours first, got %v", err)
	}
}

func TestValidate_InvalidInterval(t *testing.T) {
	f := newFixture(t)

	err := f.validator().Validate(context.Background(), f.provider.ID, at(10, 0), at(10, 0), nil)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for empty interval, got %v", err)
	}
}

func TestValidate_SeesBookingAcrossMidnightUTC(t *testing.T) {
	f := newFixture(t)
	// 02:00 MSK = 23:00 UTC предыдущего дня
	if err := f.db.Model(&model.WorkSchedule{}).
		Where("provider_id = ?", f.provider.ID).
		Update("start_time", "01:00").Error; err != nil {
		t.Fatalf("update schedule: %v", err)
	}
	f.addBooking(t, at(1, 30), at(2, 30), model.BookingStatusConfirmed)

	err := f.validator().Validate(context.Background(), f.provider.ID, at(2, 0), at(3, 0), nil)
	if !errors.Is(err, apperr.ErrAlreadyBooked) {
		t.Fatalf("expected already booked, got %v", err)
	}
}
