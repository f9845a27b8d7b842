package availability

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/db"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

var msk = time.FixedZone("MSK", 3*60*60)

// 3 июня 2030 — понедельник.
var testDate = timezone.Date{Year: 2030, Month: time.June, Day: 3}

func at(h, m int) time.Time {
	return time.Date(2030, time.June, 3, h, m, 0, 0, msk)
}

type fixture struct {
	db       *gorm.DB
	repos    repository.Repos
	conv     *timezone.Converter
	provider *model.Provider
	service  *model.Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := db.OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	repos := repository.NewGormRepos(gdb)

	provider := &model.Provider{DisplayName: "Анна", IsActive: true, BreakDurationMin: 15}
	if err := repos.Providers.Create(ctx, provider); err != nil {
		t.Fatalf("create provider: %v", err)
	}
	service := &model.Service{Name: "Стрижка", DurationMin: 60, Price: decimal.NewFromInt(1500), IsActive: true}
	if err := repos.Services.Create(ctx, service); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := repos.Providers.AttachService(ctx, provider.ID, service.ID); err != nil {
		t.Fatalf("attach service: %v", err)
	}
	schedule := &model.WorkSchedule{
		ProviderID: provider.ID,
		DayOfWeek:  testDate.ISOWeekday(),
		StartTime:  "09:00",
		EndTime:    "18:00",
		IsActive:   true,
	}
	if err := repos.Schedules.Upsert(ctx, schedule); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	return &fixture{
		db:       gdb,
		repos:    repos,
		conv:     timezone.NewConverterFromLocation(msk),
		provider: provider,
		service:  service,
		now:      time.Date(2030, time.June, 1, 10, 0, 0, 0, msk),
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) generator() *SlotGenerator {
	return NewSlotGenerator(f.repos, f.conv, time.Hour, f.clock)
}

func (f *fixture) validator() *Validator {
	return NewValidator(f.repos, f.conv, f.clock)
}

func (f *fixture) addBlock(t *testing.T, start, end time.Time) {
	t.Helper()
	block := &model.BlockInterval{ProviderID: f.provider.ID, StartsAt: start, EndsAt: end, Reason: "отпуск"}
	if err := f.repos.Blocks.Create(context.Background(), block); err != nil {
		t.Fatalf("create block: %v", err)
	}
}

func (f *fixture) addBooking(t *testing.T, start, end time.Time, status model.BookingStatus) *model.Booking {
	t.Helper()
	b := &model.Booking{
		ProviderID: f.provider.ID,
		ServiceID:  f.service.ID,
		ClientID:   uuid.New(),
		StartsAt:   start,
		EndsAt:     end,
		Status:     status,
		Price:      f.service.Price,
	}
	if err := f.repos.Bookings.Create(context.Background(), b); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func wallClocks(slots []time.Time) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.In(msk).Format("15:04"))
	}
	return out
}

func (f *fixture) slots(t *testing.T) []string {
	t.Helper()
	slots, err := f.generator().Slots(context.Background(), f.provider.ID, f.service.ID, testDate)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	return wallClocks(slots)
}

func TestSlots_WorkingDayGrid(t *testing.T) {
	f := newFixture(t)

	got := f.slots(t)
	want := []string{"09:00", "10:15", "11:30", "12:45", "14:00", "15:15", "16:30", "17:00"}
	if !slices.Equal(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
}

func TestSlots_BlockRemovesOverlappingSlots(t *testing.T) {
	f := newFixture(t)
	f.addBlock(t, at(11, 0), at(12, 0))

	got := f.slots(t)
	if slices.Contains(got, "11:30") {
		t.Fatalf("11:30 must be blocked, got %v", got)
	}
	// 10:15-11:15 тоже задевает блокировку.
	want := []string{"09:00", "12:45", "14:00", "15:15", "16:30", "17:00"}
	if !slices.Equal(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
}

func TestSlots_ConfirmedBookingRemovesSlot(t *testing.T) {
	f := newFixture(t)
	f.addBooking(t, at(14, 0), at(15, 0), model.BookingStatusConfirmed)

	got := f.slots(t)
	want := []string{"09:00", "10:15", "11:30", "12:45", "15:15", "16:30", "17:00"}
	if !slices.Equal(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
}

func TestSlots_CancelledBookingDoesNotOccupy(t *testing.T) {
	f := newFixture(t)
	f.addBooking(t, at(14, 0), at(15, 0), model.BookingStatusCancelled)

	got := f.slots(t)
	if !slices.Contains(got, "14:00") {
		t.Fatalf("cancelled booking must not hide 14:00, got %v", got)
	}
}

func TestSlots_LeadTimeSkipsButDoesNotStop(t *testing.T) {
	f := newFixture(t)
	f.now = at(12, 0)

	got := f.slots(t)
	want := []string{"14:00", "15:15", "16:30", "17:00"}
	if !slices.Equal(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
	for _, s := range got {
		wc, _ := timezone.ParseWallClock(s)
		if f.conv.ToInstant(testDate, wc).Before(f.now.Add(time.Hour)) {
			t.Fatalf("slot %s starts before now+lead time", s)
		}
	}
}

func TestSlots_PastDateIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2030, time.June, 10, 8, 0, 0, 0, msk)

	if got := f.slots(t); len(got) != 0 {
		t.Fatalf("expected no slots for past date, got %v", got)
	}
}

func TestSlots_DayOffIsEmpty(t *testing.T) {
	f := newFixture(t)

	slots, err := f.generator().Slots(context.Background(), f.provider.ID, f.service.ID, testDate.AddDays(1))
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on a day without schedule, got %v", wallClocks(slots))
	}
}

func TestSlots_ServiceLongerThanWindow(t *testing.T) {
	f := newFixture(t)
	long := &model.Service{Name: "Окрашивание", DurationMin: 10 * 60, Price: decimal.NewFromInt(9000), IsActive: true}
	ctx := context.Background()
	if err := f.repos.Services.Create(ctx, long); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := f.repos.Providers.AttachService(ctx, f.provider.ID, long.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}

	slots, err := f.generator().Slots(ctx, f.provider.ID, long.ID, testDate)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %v", wallClocks(slots))
	}
}

func TestSlots_ZeroBreakIsBackToBack(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Model(&model.Provider{}).Where("id = ?", f.provider.ID).Update("break_duration_min", 0).Error; err != nil {
		t.Fatalf("update provider: %v", err)
	}

	got := f.slots(t)
	if len(got) != 9 || got[0] != "09:00" || got[8] != "17:00" {
		t.Fatalf("expected 9 hourly slots 09:00..17:00, got %v", got)
	}
}

func TestGenerate_SequenceIsRestartable(t *testing.T) {
	f := newFixture(t)

	seq, err := f.generator().Generate(context.Background(), f.provider.ID, f.service.ID, testDate)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.EqualFunc(first, second, time.Time.Equal) {
		t.Fatalf("second pass differs: %v vs %v", wallClocks(first), wallClocks(second))
	}

	// ранний выход из range не ломает последовательность
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected to stop after 2 slots, got %d", n)
	}
}

func TestSlots_EverySlotValidates(t *testing.T) {
	f := newFixture(t)
	f.addBlock(t, at(11, 0), at(12, 0))
	f.addBooking(t, at(14, 0), at(15, 0), model.BookingStatusConfirmed)
	f.addBooking(t, at(16, 30), at(17, 30), model.BookingStatusPending)
	f.now = at(9, 30)

	ctx := context.Background()
	slots, err := f.generator().Slots(ctx, f.provider.ID, f.service.ID, testDate)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected some slots")
	}
	v := f.validator()
	for _, s := range slots {
		if err := v.Validate(ctx, f.provider.ID, s, s.Add(f.service.Duration()), nil); err != nil {
			t.Fatalf("slot %s rejected by validator: %v", s.In(msk).Format("15:04"), err)
		}
	}
}

func TestSlots_InactiveOrNotOffered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &model.Service{Name: "Маникюр", DurationMin: 30, Price: decimal.NewFromInt(800), IsActive: true}
	if err := f.repos.Services.Create(ctx, other); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if _, err := f.generator().Slots(ctx, f.provider.ID, other.ID, testDate); err == nil {
		t.Fatalf("expected error for service not offered")
	}

	if _, err := f.generator().Slots(ctx, uuid.New(), f.service.ID, testDate); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
