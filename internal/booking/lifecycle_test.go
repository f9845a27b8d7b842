package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/db"
	"github.com/Leganyst/master-booking/internal/loyalty"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/notify"
	"github.com/Leganyst/master-booking/internal/pricing"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

var msk = time.FixedZone("MSK", 3*60*60)

var admin = calendar.Actor{Role: calendar.ActorRoleAdmin}

// 3 июня 2030 — понедельник.
func at(h, m int) time.Time {
	return time.Date(2030, time.June, 3, h, m, 0, 0, msk)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingNotifier) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (c *countingInvalidator) Invalidate(_ context.Context, providerID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[providerID]++
	return nil
}

type env struct {
	db       *gorm.DB
	repos    repository.Repos
	lc       *Lifecycle
	provider *model.Provider
	service  *model.Service
	notifier *recordingNotifier
	cache    *countingInvalidator
	now      time.Time
}

func newEnv(t *testing.T, policy Policy) *env {
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
	service := &model.Service{
		Name:               "Стрижка",
		DurationMin:        60,
		Price:              decimal.NewFromInt(1000),
		IsActive:           true,
		BonusPointsPercent: decimal.NewFromInt(10),
	}
	if err := repos.Services.Create(ctx, service); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := repos.Providers.AttachService(ctx, provider.ID, service.ID); err != nil {
		t.Fatalf("attach service: %v", err)
	}
	schedule := &model.WorkSchedule{ProviderID: provider.ID, DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00", IsActive: true}
	if err := repos.Schedules.Upsert(ctx, schedule); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	e := &env{
		db:       gdb,
		repos:    repos,
		provider: provider,
		service:  service,
		notifier: &recordingNotifier{},
		cache:    &countingInvalidator{calls: make(map[uuid.UUID]int)},
		now:      time.Date(2030, time.June, 1, 10, 0, 0, 0, msk),
	}
	e.lc = e.newLifecycle(policy)
	return e
}

func (e *env) newLifecycle(policy Policy) *Lifecycle {
	return NewLifecycle(Deps{
		Repos:       e.repos,
		Transactor:  repository.NewGormTransactor(e.db),
		Converter:   timezone.NewConverterFromLocation(msk),
		Ledger:      GormLedger,
		Notifier:    e.notifier,
		Invalidator: e.cache,
		Now:         func() time.Time { return e.now },
	}, policy)
}

func (e *env) create(t *testing.T, start time.Time) *model.Booking {
	t.Helper()
	b, err := e.lc.Create(context.Background(), CreateRequest{
		ProviderID: e.provider.ID,
		ServiceID:  e.service.ID,
		ClientID:   uuid.New(),
		StartsAt:   start,
	})
	if err != nil {
		t.Fatalf("create at %s: %v", start.Format("15:04"), err)
	}
	return b
}

func (e *env) stored(t *testing.T, id uuid.UUID) *model.Booking {
	t.Helper()
	b, err := e.repos.Bookings.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load booking: %v", err)
	}
	return b
}

func TestCreate_PendingWithComputedEnd(t *testing.T) {
	e := newEnv(t, Policy{})

	b := e.create(t, at(10, 0))
	if b.Status != model.BookingStatusPending {
		t.Fatalf("status = %s, want pending", b.Status)
	}
	if !b.EndsAt.Equal(at(11, 0)) {
		t.Fatalf("ends_at = %v, want 11:00 MSK", b.EndsAt)
	}
	if !b.Price.Equal(decimal.NewFromInt(1000)) || !b.Discount.IsZero() {
		t.Fatalf("price/discount = %s/%s", b.Price, b.Discount)
	}

	stored := e.stored(t, b.ID)
	if !stored.StartsAt.Equal(at(10, 0)) || stored.Status != model.BookingStatusPending {
		t.Fatalf("stored booking mismatch: %+v", stored)
	}
	if got := e.notifier.types(); len(got) != 1 || got[0] != notify.EventBookingCreated {
		t.Fatalf("events = %v", got)
	}
	if e.cache.calls[e.provider.ID] != 1 {
		t.Fatalf("expected cache invalidation after create")
	}
}

func TestCreate_AutoConfirm(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true})

	if b := e.create(t, at(10, 0)); b.Status != model.BookingStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", b.Status)
	}
}

func TestCreate_RejectsWithReason(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()

	if err := e.repos.Blocks.Create(ctx, &model.BlockInterval{ProviderID: e.provider.ID, StartsAt: at(13, 0), EndsAt: at(14, 0)}); err != nil {
		t.Fatalf("create block: %v", err)
	}
	e.create(t, at(10, 0))

	cases := []struct {
		name  string
		start time.Time
		want  error
	}{
		{"before opening", at(8, 0), apperr.ErrOutsideWorkingHours},
		{"past closing", at(17, 30), apperr.ErrOutsideWorkingHours},
		{"blocked", at(13, 30), apperr.ErrBlocked},
		{"double booked", at(10, 30), apperr.ErrAlreadyBooked},
	}
	for _, c := range cases {
		_, err := e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: uuid.New(), StartsAt: c.start})
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}

	// конец одной записи = начало другой: не конфликт
	e.create(t, at(11, 0))
}

func TestCreate_DirectoryErrors(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()
	client := uuid.New()

	_, err := e.lc.Create(ctx, CreateRequest{ProviderID: uuid.New(), ServiceID: e.service.ID, ClientID: client, StartsAt: at(10, 0)})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown provider: expected not found, got %v", err)
	}

	_, err = e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: uuid.New(), ClientID: client, StartsAt: at(10, 0)})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown service: expected not found, got %v", err)
	}

	other := &model.Service{Name: "Маникюр", DurationMin: 30, Price: decimal.NewFromInt(500), IsActive: true}
	if err := e.repos.Services.Create(ctx, other); err != nil {
		t.Fatalf("create service: %v", err)
	}
	_, err = e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: other.ID, ClientID: client, StartsAt: at(10, 0)})
	if apperr.ReasonOf(err) != apperr.ReasonNotOffered {
		t.Fatalf("not offered: got %v", err)
	}

	e.now = at(12, 0)
	_, err = e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: client, StartsAt: at(10, 0)})
	if !errors.Is(err, apperr.ErrInThePast) || apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("past: expected in-the-past validation error, got %v", err)
	}

	if err := e.db.Model(&model.Provider{}).Where("id = ?", e.provider.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate provider: %v", err)
	}
	_, err = e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: client, StartsAt: at(15, 0)})
	if apperr.ReasonOf(err) != apperr.ReasonInactive {
		t.Fatalf("inactive provider: got %v", err)
	}
}

func TestCreate_FirstVisitDiscount(t *testing.T) {
	policy := Policy{Discount: pricing.DiscountPolicy{Enabled: true, Type: pricing.DiscountPercent, Value: decimal.NewFromInt(10)}}
	e := newEnv(t, policy)
	ctx := context.Background()
	client := uuid.New()

	first, err := e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: client, StartsAt: at(9, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !first.Discount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("first visit discount = %s, want 100", first.Discount)
	}

	// отменённая запись не делает визит "не первым"
	if _, err := e.lc.Cancel(ctx, first.ID, admin, "передумал"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again, err := e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: client, StartsAt: at(10, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !again.Discount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("discount after cancelled visit = %s, want 100", again.Discount)
	}

	third, err := e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: client, StartsAt: at(12, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !third.Discount.IsZero() {
		t.Fatalf("repeat visit discount = %s, want 0", third.Discount)
	}
}

func TestConfirm(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	confirmed, err := e.lc.Confirm(ctx, b.ID)
	if err != nil || confirmed.Status != model.BookingStatusConfirmed {
		t.Fatalf("confirm: %v %v", confirmed, err)
	}
	if e.stored(t, b.ID).Status != model.BookingStatusConfirmed {
		t.Fatalf("confirmed status not stored")
	}

	// повторно — без ошибки и без события
	if _, err := e.lc.Confirm(ctx, b.ID); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if got := e.notifier.types(); len(got) != 2 {
		t.Fatalf("events = %v, want created+confirmed", got)
	}

	if _, err := e.lc.Cancel(ctx, b.ID, admin, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.lc.Confirm(ctx, b.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("confirm cancelled: expected invalid transition, got %v", err)
	}

	if _, err := e.lc.Confirm(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("confirm unknown: expected not found, got %v", err)
	}
}

func TestCancel_CompletedIsValidationError(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	if _, err := e.lc.Complete(ctx, b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := e.lc.Cancel(ctx, b.ID, admin, "поздно")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if e.stored(t, b.ID).Status != model.BookingStatusCompleted {
		t.Fatalf("completed booking must stay completed")
	}
}

func TestCancel_PendingRefundsBonusPoints(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()
	client := uuid.New()
	ledger := loyalty.NewLedger(e.repos.Credits)

	if err := ledger.Grant(ctx, client, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	b, err := e.lc.Create(ctx, CreateRequest{
		ProviderID:  e.provider.ID,
		ServiceID:   e.service.ID,
		ClientID:    client,
		StartsAt:    at(10, 0),
		BonusPoints: decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !b.BonusPointsUsed.Equal(decimal.NewFromInt(200)) || !b.FinalPrice().Equal(decimal.NewFromInt(800)) {
		t.Fatalf("bonus used = %s, final = %s", b.BonusPointsUsed, b.FinalPrice())
	}
	if bal, _ := ledger.Balance(ctx, client); !bal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance after spend = %s, want 100", bal)
	}

	owner := calendar.Actor{ID: client, Role: calendar.ActorRoleClient}
	cancelled, err := e.lc.Cancel(ctx, b.ID, owner, "не успеваю")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled || cancelled.CancellationReason != "не успеваю" || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled booking: %+v", cancelled)
	}
	if bal, _ := ledger.Balance(ctx, client); !bal.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("balance after refund = %s, want 300", bal)
	}

	// время освободилось
	e.create(t, at(10, 0))
}

func TestCreate_InsufficientBonusRollsBack(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()

	_, err := e.lc.Create(ctx, CreateRequest{
		ProviderID:  e.provider.ID,
		ServiceID:   e.service.ID,
		ClientID:    uuid.New(),
		StartsAt:    at(10, 0),
		BonusPoints: decimal.NewFromInt(50),
	})
	if apperr.ReasonOf(err) != apperr.ReasonInsufficientCredit {
		t.Fatalf("expected insufficient credit, got %v", err)
	}
	_, total, err := e.repos.Bookings.List(ctx, repository.BookingFilter{ProviderID: e.provider.ID}, 0, 0)
	if err != nil || total != 0 {
		t.Fatalf("nothing must be stored: total=%d err=%v", total, err)
	}
}

func TestCancel_ForbiddenForStranger(t *testing.T) {
	e := newEnv(t, Policy{})

	b := e.create(t, at(10, 0))
	stranger := calendar.Actor{ID: uuid.New(), Role: calendar.ActorRoleClient}
	if _, err := e.lc.Cancel(context.Background(), b.ID, stranger, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	master := calendar.Actor{ID: e.provider.ID, Role: calendar.ActorRoleProvider}
	if _, err := e.lc.Cancel(context.Background(), b.ID, master, "болею"); err != nil {
		t.Fatalf("provider cancel: %v", err)
	}
}

func TestReschedule(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	e.create(t, at(14, 0))

	// то же время — no-op
	same, err := e.lc.Reschedule(ctx, b.ID, at(10, 0))
	if err != nil || !same.StartsAt.Equal(at(10, 0)) || same.Status != model.BookingStatusConfirmed {
		t.Fatalf("same-start reschedule: %+v %v", same, err)
	}

	// пересечение с самой собой не считается
	moved, err := e.lc.Reschedule(ctx, b.ID, at(10, 30))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.StartsAt.Equal(at(10, 30)) || !moved.EndsAt.Equal(at(11, 30)) {
		t.Fatalf("moved to %v - %v", moved.StartsAt, moved.EndsAt)
	}
	if moved.Status != model.BookingStatusConfirmed {
		t.Fatalf("status = %s, confirmed must be preserved", moved.Status)
	}
	if moved.ID != b.ID {
		t.Fatalf("reschedule must keep identity")
	}

	if _, err := e.lc.Reschedule(ctx, b.ID, at(13, 30)); !errors.Is(err, apperr.ErrAlreadyBooked) {
		t.Fatalf("expected already booked, got %v", err)
	}
	if stored := e.stored(t, b.ID); !stored.StartsAt.Equal(at(10, 30)) {
		t.Fatalf("failed reschedule must not move the booking, got %v", stored.StartsAt)
	}

	if _, err := e.lc.Reschedule(ctx, b.ID, at(17, 30)); !errors.Is(err, apperr.ErrOutsideWorkingHours) {
		t.Fatalf("expected outside working hours, got %v", err)
	}

	types := e.notifier.types()
	if types[len(types)-1] != notify.EventBookingRescheduled {
		t.Fatalf("last event = %s, want rescheduled", types[len(types)-1])
	}
}

func TestReschedule_MarkRescheduledPolicy(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true, MarkRescheduled: true})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	moved, err := e.lc.Reschedule(ctx, b.ID, at(12, 0))
	if err != nil || moved.Status != model.BookingStatusRescheduled {
		t.Fatalf("expected rescheduled status: %+v %v", moved, err)
	}

	// RESCHEDULED занимает время так же, как CONFIRMED
	_, err = e.lc.Create(ctx, CreateRequest{ProviderID: e.provider.ID, ServiceID: e.service.ID, ClientID: uuid.New(), StartsAt: at(12, 30)})
	if !errors.Is(err, apperr.ErrAlreadyBooked) {
		t.Fatalf("rescheduled booking must occupy its time, got %v", err)
	}

	if c, err := e.lc.Confirm(ctx, b.ID); err != nil || c.Status != model.BookingStatusConfirmed {
		t.Fatalf("confirm rescheduled: %+v %v", c, err)
	}

	// PENDING остаётся PENDING даже с MarkRescheduled
	e.lc.policy.AutoConfirm = false
	p := e.create(t, at(15, 0))
	moved, err = e.lc.Reschedule(ctx, p.ID, at(16, 0))
	if err != nil || moved.Status != model.BookingStatusPending {
		t.Fatalf("pending must stay pending: %+v %v", moved, err)
	}
}

func TestReschedule_TerminalIsValidationError(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	if _, err := e.lc.Cancel(ctx, b.ID, admin, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.lc.Reschedule(ctx, b.ID, at(12, 0)); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestComplete_AwardsBonusPoints(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	if _, err := e.lc.Complete(ctx, b.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("pending cannot complete, got %v", err)
	}

	if _, err := e.lc.Confirm(ctx, b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	done, err := e.lc.Complete(ctx, b.ID)
	if err != nil || done.Status != model.BookingStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("complete: %+v %v", done, err)
	}

	bal, err := loyalty.NewLedger(e.repos.Credits).Balance(ctx, b.ClientID)
	if err != nil || !bal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("awarded balance = %s (%v), want 100", bal, err)
	}
}

func TestCompleteDue(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true})
	ctx := context.Background()

	early := e.create(t, at(9, 0))
	late := e.create(t, at(16, 0))
	e.lc.policy.AutoConfirm = false
	pending := e.create(t, at(11, 0))

	n, err := e.lc.CompleteDue(ctx, at(12, 0))
	if err != nil || n != 1 {
		t.Fatalf("CompleteDue = %d, %v; want 1", n, err)
	}
	if e.stored(t, early.ID).Status != model.BookingStatusCompleted {
		t.Fatalf("finished booking must be completed")
	}
	if e.stored(t, late.ID).Status != model.BookingStatusConfirmed {
		t.Fatalf("future booking must stay confirmed")
	}
	if e.stored(t, pending.ID).Status != model.BookingStatusPending {
		t.Fatalf("pending booking must not be completed")
	}
}

func TestDelete_AnyStatus(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true})
	ctx := context.Background()

	b := e.create(t, at(10, 0))
	if _, err := e.lc.Complete(ctx, b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := e.lc.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.lc.Get(ctx, b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := e.lc.Delete(ctx, b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	e := newEnv(t, Policy{})
	e.notifier.err = errors.New("broker unavailable")

	b := e.create(t, at(10, 0))
	if _, err := e.lc.Confirm(context.Background(), b.ID); err != nil {
		t.Fatalf("confirm must succeed despite notifier error: %v", err)
	}
	if e.stored(t, b.ID).Status != model.BookingStatusConfirmed {
		t.Fatalf("transition must be stored")
	}
}

func TestCreate_ConcurrentSameSlot(t *testing.T) {
	e := newEnv(t, Policy{})
	// второй экземпляр сервиса над той же БД: свои in-process блокировки
	other := e.newLifecycle(Policy{})

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
		unexpect  []error
	)
	for i := 0; i < workers; i++ {
		lc := e.lc
		if i%2 == 1 {
			lc = other
		}
		wg.Add(1)
		go func(lc *Lifecycle, i int) {
			defer wg.Done()
			// половина целится в 10:00, половина — в пересекающиеся 10:30
			start := at(10, 0)
			if i%3 == 0 {
				start = at(10, 30)
			}
			_, err := lc.Create(context.Background(), CreateRequest{
				ProviderID: e.provider.ID,
				ServiceID:  e.service.ID,
				ClientID:   uuid.New(),
				StartsAt:   start,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrAlreadyBooked):
				conflicts++
			default:
				unexpect = append(unexpect, err)
			}
		}(lc, i)
	}
	wg.Wait()

	if len(unexpect) > 0 {
		t.Fatalf("unexpected errors: %v", unexpect)
	}
	if ok != 1 || conflicts != workers-1 {
		t.Fatalf("ok=%d conflicts=%d, want exactly one winner", ok, conflicts)
	}

	bookings, _, err := e.repos.Bookings.List(context.Background(), repository.BookingFilter{ProviderID: e.provider.ID}, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range bookings {
		for j := i + 1; j < len(bookings); j++ {
			a, b := bookings[i], bookings[j]
			if a.StartsAt.Before(b.EndsAt) && b.StartsAt.Before(a.EndsAt) {
				t.Fatalf("overlapping bookings stored: %v and %v", a.ID, b.ID)
			}
		}
	}
	if e.lc.locks.size() != 0 || other.locks.size() != 0 {
		t.Fatalf("provider locks must be released")
	}
}

func TestReschedule_RacesCreateForSameSlot(t *testing.T) {
	e := newEnv(t, Policy{AutoConfirm: true})
	other := e.newLifecycle(Policy{AutoConfirm: true})
	ctx := context.Background()

	b := e.create(t, at(9, 0))

	const creators = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		moved     bool
		created   int
		conflicts int
		unexpect  []error
	)
	record := func(err error, onOK func()) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			onOK()
		case errors.Is(err, apperr.ErrAlreadyBooked):
			conflicts++
		default:
			unexpect = append(unexpect, err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := other.Reschedule(ctx, b.ID, at(14, 0))
		record(err, func() { moved = true })
	}()
	for i := 0; i < creators; i++ {
		lc := e.lc
		if i%2 == 1 {
			lc = other
		}
		wg.Add(1)
		go func(lc *Lifecycle, i int) {
			defer wg.Done()
			// часть целится ровно в 14:00, часть в пересекающиеся 14:30
			start := at(14, 0)
			if i%3 == 0 {
				start = at(14, 30)
			}
			_, err := lc.Create(ctx, CreateRequest{
				ProviderID: e.provider.ID,
				ServiceID:  e.service.ID,
				ClientID:   uuid.New(),
				StartsAt:   start,
			})
			record(err, func() { created++ })
		}(lc, i)
	}
	wg.Wait()

	if len(unexpect) > 0 {
		t.Fatalf("unexpected errors: %v", unexpect)
	}
	winners := created
	if moved {
		winners++
	}
	if winners != 1 || conflicts != creators {
		t.Fatalf("moved=%v created=%d conflicts=%d, want exactly one winner", moved, created, conflicts)
	}

	stored := e.stored(t, b.ID)
	if moved != stored.StartsAt.Equal(at(14, 0)) {
		t.Fatalf("stored start %v does not match outcome moved=%v", stored.StartsAt, moved)
	}
	if !moved && !stored.StartsAt.Equal(at(9, 0)) {
		t.Fatalf("losing reschedule must leave the booking at 09:00, got %v", stored.StartsAt)
	}

	bookings, _, err := e.repos.Bookings.List(ctx, repository.BookingFilter{ProviderID: e.provider.ID}, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range bookings {
		for j := i + 1; j < len(bookings); j++ {
			x, y := bookings[i], bookings[j]
			if x.StartsAt.Before(y.EndsAt) && y.StartsAt.Before(x.EndsAt) {
				t.Fatalf("overlapping bookings stored: %v and %v", x.ID, y.ID)
			}
		}
	}
}

func TestCreate_ConcurrentSpendAcrossProviders(t *testing.T) {
	e := newEnv(t, Policy{})
	ctx := context.Background()

	second := &model.Provider{DisplayName: "Борис", IsActive: true}
	if err := e.repos.Providers.Create(ctx, second); err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if err := e.repos.Providers.AttachService(ctx, second.ID, e.service.ID); err != nil {
		t.Fatalf("attach service: %v", err)
	}
	schedule := &model.WorkSchedule{ProviderID: second.ID, DayOfWeek: 1, StartTime: "09:00", EndTime: "18:00", IsActive: true}
	if err := e.repos.Schedules.Upsert(ctx, schedule); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	client := uuid.New()
	ledger := loyalty.NewLedger(e.repos.Credits)
	if err := ledger.Grant(ctx, client, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	other := e.newLifecycle(Policy{})
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok           int
		insufficient int
		unexpect     []error
	)
	for i, providerID := range []uuid.UUID{e.provider.ID, second.ID} {
		lc := e.lc
		if i == 1 {
			lc = other
		}
		wg.Add(1)
		go func(lc *Lifecycle, providerID uuid.UUID) {
			defer wg.Done()
			_, err := lc.Create(ctx, CreateRequest{
				ProviderID:  providerID,
				ServiceID:   e.service.ID,
				ClientID:    client,
				StartsAt:    at(10, 0),
				BonusPoints: decimal.NewFromInt(100),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.ReasonOf(err) == apperr.ReasonInsufficientCredit:
				insufficient++
			default:
				unexpect = append(unexpect, err)
			}
		}(lc, providerID)
	}
	wg.Wait()

	if len(unexpect) > 0 {
		t.Fatalf("unexpected errors: %v", unexpect)
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("ok=%d insufficient=%d, want one spend to win", ok, insufficient)
	}
	if bal, _ := ledger.Balance(ctx, client); !bal.IsZero() {
		t.Fatalf("balance = %s, must not go below zero", bal)
	}
}
