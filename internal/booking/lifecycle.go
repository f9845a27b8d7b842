// Package booking implements the booking state machine:
//
//	PENDING     -> CONFIRMED | CANCELLED
//	CONFIRMED   -> CANCELLED | RESCHEDULED | COMPLETED
//	RESCHEDULED -> CONFIRMED | CANCELLED | COMPLETED
//
// CANCELLED and COMPLETED are terminal. Every write that creates or moves a
// time interval holds the provider lock and a provider-locked transaction
// across validation and the write.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/availability"
	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/notify"
	"github.com/Leganyst/master-booking/internal/pricing"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

const defaultNotifyTimeout = 2 * time.Second

// Пачка для CompleteDue.
const completeBatch = 100

var tracer = otel.Tracer("github.com/Leganyst/master-booking/internal/booking")

type Lifecycle struct {
	repos       repository.Repos
	tx          repository.Transactor
	conv        *timezone.Converter
	policy      Policy
	locks       *ProviderLocks
	ledger      LedgerFactory
	notifier    notify.Notifier
	invalidator Invalidator
	logger      *zap.Logger
	now         func() time.Time
	notifyTTL   time.Duration
}

func NewLifecycle(deps Deps, policy Policy) *Lifecycle {
	l := &Lifecycle{
		repos:       deps.Repos,
		tx:          deps.Transactor,
		conv:        deps.Converter,
		policy:      policy,
		locks:       NewProviderLocks(),
		ledger:      deps.Ledger,
		notifier:    deps.Notifier,
		invalidator: deps.Invalidator,
		logger:      deps.Logger,
		now:         deps.Now,
		notifyTTL:   deps.NotifyTimeout,
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.Named("lifecycle")
	if l.now == nil {
		l.now = time.Now
	}
	if l.notifyTTL <= 0 {
		l.notifyTTL = defaultNotifyTimeout
	}
	return l
}

type CreateRequest struct {
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	ClientID   uuid.UUID
	StartsAt   time.Time
	Notes      string
	// Сколько бонусов клиент хочет списать (не больше цены после скидки).
	BonusPoints decimal.Decimal
	// Переопределяет политику по умолчанию.
	Policy *Policy
}

// Create резервирует время и создаёт запись в PENDING (или CONFIRMED при автоподтверждении).
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (_ *model.Booking, err error) {
	ctx, span := l.startSpan(ctx, "booking.Create",
		attribute.String("provider.id", req.ProviderID.String()),
		attribute.String("service.id", req.ServiceID.String()),
	)
	defer func() { endSpan(span, err) }()

	if req.ClientID == uuid.Nil {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "client id is required")
	}
	if req.BonusPoints.IsNegative() {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "bonus points must not be negative")
	}
	if req.BonusPoints.IsPositive() && l.ledger == nil {
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "bonus points are not supported")
	}
	policy := l.policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	start := req.StartsAt.UTC().Truncate(time.Second)

	var created *model.Booking
	err = l.withProvider(ctx, req.ProviderID, func(ctx context.Context, tx repository.Repos) error {
		provider, service, err := loadBookable(ctx, tx, req.ProviderID, req.ServiceID)
		if err != nil {
			return err
		}
		end := start.Add(service.Duration())

		if err := l.validator(tx).Validate(ctx, provider.ID, start, end, nil); err != nil {
			return err
		}

		firstVisit, err := isFirstVisit(ctx, tx, req.ClientID)
		if err != nil {
			return err
		}
		final, discount := pricing.Price(service.Price, firstVisit, policy.Discount)

		status := model.BookingStatusPending
		if policy.AutoConfirm {
			status = model.BookingStatusConfirmed
		}

		b := &model.Booking{
			ID:         uuid.New(),
			ProviderID: provider.ID,
			ServiceID:  service.ID,
			ClientID:   req.ClientID,
			StartsAt:   start,
			EndsAt:     end,
			Status:     status,
			Price:      service.Price,
			Discount:   discount,
			Notes:      req.Notes,
		}

		if req.BonusPoints.IsPositive() {
			b.BonusPointsUsed = decimal.Min(req.BonusPoints, final)
			if err := l.ledger(tx).Spend(ctx, b.ClientID, b.ID, b.BonusPointsUsed); err != nil {
				return err
			}
		}

		if err := tx.Bookings.Create(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("booking created",
		zap.Stringer("booking_id", created.ID),
		zap.Stringer("provider_id", created.ProviderID),
		zap.Stringer("client_id", created.ClientID),
		zap.Time("starts_at", created.StartsAt),
		zap.String("status", string(created.Status)),
		zap.String("discount", created.Discount.StringFixed(2)),
	)
	l.afterWrite(ctx, created.ProviderID)
	l.publish(ctx, notify.NewEvent(notify.EventBookingCreated, created, l.now()))
	return created, nil
}

// Confirm: PENDING или RESCHEDULED -> CONFIRMED. Повторное подтверждение ничего не меняет.
func (l *Lifecycle) Confirm(ctx context.Context, bookingID uuid.UUID) (_ *model.Booking, err error) {
	ctx, span := l.startSpan(ctx, "booking.Confirm", attribute.String("booking.id", bookingID.String()))
	defer func() { endSpan(span, err) }()

	var changed bool
	b, err := l.transition(ctx, bookingID, func(ctx context.Context, tx repository.Repos, b *model.Booking) error {
		switch b.Status {
		case model.BookingStatusConfirmed:
			return nil
		case model.BookingStatusPending, model.BookingStatusRescheduled:
		default:
			return invalidTransition(b, model.BookingStatusConfirmed)
		}
		b.Status = model.BookingStatusConfirmed
		changed = true
		return tx.Bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		l.logger.Info("booking confirmed", zap.Stringer("booking_id", b.ID))
		l.publish(ctx, notify.NewEvent(notify.EventBookingConfirmed, b, l.now()))
	}
	return b, nil
}

// Cancel переводит незавершённую запись в CANCELLED и возвращает списанные бонусы.
func (l *Lifecycle) Cancel(ctx context.Context, bookingID uuid.UUID, actor calendar.Actor, reason string) (_ *model.Booking, err error) {
	ctx, span := l.startSpan(ctx, "booking.Cancel",
		attribute.String("booking.id", bookingID.String()),
		attribute.String("actor.role", string(actor.Role)),
	)
	defer func() { endSpan(span, err) }()

	current, err := l.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := calendar.AuthorizeCancel(actor, current); err != nil {
		return nil, err
	}

	var refunded decimal.Decimal
	b, err := l.transition(ctx, bookingID, func(ctx context.Context, tx repository.Repos, b *model.Booking) error {
		if b.Status.Terminal() {
			return invalidTransition(b, model.BookingStatusCancelled)
		}
		now := l.now().UTC().Truncate(time.Second)
		b.Status = model.BookingStatusCancelled
		b.CancellationReason = reason
		b.CancelledAt = &now

		if b.BonusPointsUsed.IsPositive() && l.ledger != nil {
			r, err := l.ledger(tx).Refund(ctx, b.ClientID, b.ID, b.BonusPointsUsed)
			if err != nil {
				return fmt.Errorf("refund credit: %w", err)
			}
			refunded = r
		}
		return tx.Bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("booking cancelled",
		zap.Stringer("booking_id", b.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.String("reason", reason),
		zap.String("refunded", refunded.StringFixed(2)),
	)
	l.afterWrite(ctx, b.ProviderID)
	l.publish(ctx, notify.NewEvent(notify.EventBookingCancelled, b, l.now()))
	return b, nil
}

// Reschedule переносит запись, сохраняя её идентичность. Перенос на то же время — no-op.
func (l *Lifecycle) Reschedule(ctx context.Context, bookingID uuid.UUID, newStart time.Time) (_ *model.Booking, err error) {
	ctx, span := l.startSpan(ctx, "booking.Reschedule", attribute.String("booking.id", bookingID.String()))
	defer func() { endSpan(span, err) }()

	newStart = newStart.UTC().Truncate(time.Second)

	var previous time.Time
	var moved bool
	b, err := l.transition(ctx, bookingID, func(ctx context.Context, tx repository.Repos, b *model.Booking) error {
		if b.Status.Terminal() {
			return invalidTransition(b, model.BookingStatusRescheduled)
		}

		service, err := tx.Services.GetByID(ctx, b.ServiceID)
		if err != nil {
			return notFoundOr(err, "service", b.ServiceID)
		}
		newEnd := newStart.Add(service.Duration())
		if newStart.Equal(b.StartsAt) && newEnd.Equal(b.EndsAt) {
			return nil
		}

		if err := l.validator(tx).Validate(ctx, b.ProviderID, newStart, newEnd, &b.ID); err != nil {
			return err
		}

		previous = b.StartsAt
		b.StartsAt = newStart
		b.EndsAt = newEnd
		if l.policy.MarkRescheduled && b.Status == model.BookingStatusConfirmed {
			b.Status = model.BookingStatusRescheduled
		}
		moved = true
		return tx.Bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if moved {
		l.logger.Info("booking rescheduled",
			zap.Stringer("booking_id", b.ID),
			zap.Time("from", previous),
			zap.Time("to", b.StartsAt),
			zap.String("status", string(b.Status)),
		)
		l.afterWrite(ctx, b.ProviderID)
		e := notify.NewEvent(notify.EventBookingRescheduled, b, l.now())
		e.PreviousStartsAt = &previous
		l.publish(ctx, e)
	}
	return b, nil
}

// Complete: CONFIRMED или RESCHEDULED -> COMPLETED, с начислением бонусов.
func (l *Lifecycle) Complete(ctx context.Context, bookingID uuid.UUID) (_ *model.Booking, err error) {
	ctx, span := l.startSpan(ctx, "booking.Complete", attribute.String("booking.id", bookingID.String()))
	defer func() { endSpan(span, err) }()

	var awarded decimal.Decimal
	b, err := l.transition(ctx, bookingID, func(ctx context.Context, tx repository.Repos, b *model.Booking) error {
		if !b.Status.ConfirmedEquivalent() {
			return invalidTransition(b, model.BookingStatusCompleted)
		}
		now := l.now().UTC().Truncate(time.Second)
		b.Status = model.BookingStatusCompleted
		b.CompletedAt = &now

		if l.ledger != nil {
			service, err := tx.Services.GetByID(ctx, b.ServiceID)
			if err != nil {
				return notFoundOr(err, "service", b.ServiceID)
			}
			awarded = b.FinalPrice().Mul(service.BonusPointsPercent).Div(decimal.NewFromInt(100)).Round(2)
			if err := l.ledger(tx).Award(ctx, b.ClientID, b.ID, awarded); err != nil {
				return fmt.Errorf("award credit: %w", err)
			}
		}
		return tx.Bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("booking completed",
		zap.Stringer("booking_id", b.ID),
		zap.String("awarded", awarded.StringFixed(2)),
	)
	l.afterWrite(ctx, b.ProviderID)
	l.publish(ctx, notify.NewEvent(notify.EventBookingCompleted, b, l.now()))
	return b, nil
}

// CompleteDue завершает все подтверждённые записи, закончившиеся к now.
// Ошибка по одной записи не останавливает остальные.
func (l *Lifecycle) CompleteDue(ctx context.Context, now time.Time) (int, error) {
	done := 0
	failed := make(map[uuid.UUID]struct{})
	for {
		due, err := l.repos.Bookings.ListDueForCompletion(ctx, now, completeBatch+len(failed))
		if err != nil {
			return done, fmt.Errorf("list due bookings: %w", err)
		}

		progressed := false
		for _, b := range due {
			if _, skip := failed[b.ID]; skip {
				continue
			}
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			if _, err := l.Complete(ctx, b.ID); err != nil {
				failed[b.ID] = struct{}{}
				l.logger.Warn("auto-complete failed", zap.Stringer("booking_id", b.ID), zap.Error(err))
				continue
			}
			done++
			progressed = true
		}

		if !progressed || len(due) < completeBatch+len(failed) {
			return done, nil
		}
	}
}

// Delete: административное удаление, в любом статусе.
func (l *Lifecycle) Delete(ctx context.Context, bookingID uuid.UUID) (err error) {
	ctx, span := l.startSpan(ctx, "booking.Delete", attribute.String("booking.id", bookingID.String()))
	defer func() { endSpan(span, err) }()

	b, err := l.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	err = l.withProvider(ctx, b.ProviderID, func(ctx context.Context, tx repository.Repos) error {
		ok, err := tx.Bookings.Delete(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		if !ok {
			return apperr.NotFound("booking %s not found", bookingID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("booking deleted", zap.Stringer("booking_id", bookingID), zap.String("status", string(b.Status)))
	l.afterWrite(ctx, b.ProviderID)
	return nil
}

func (l *Lifecycle) Get(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	b, err := l.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "booking", bookingID)
	}
	return b, nil
}

// transition перечитывает запись под блокировкой мастера и применяет fn в транзакции.
func (l *Lifecycle) transition(
	ctx context.Context,
	bookingID uuid.UUID,
	fn func(ctx context.Context, tx repository.Repos, b *model.Booking) error,
) (*model.Booking, error) {
	current, err := l.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var result *model.Booking
	err = l.withProvider(ctx, current.ProviderID, func(ctx context.Context, tx repository.Repos) error {
		b, err := tx.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return notFoundOr(err, "booking", bookingID)
		}
		if err := fn(ctx, tx, b); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Lifecycle) withProvider(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx repository.Repos) error) error {
	unlock, err := l.locks.Lock(ctx, providerID)
	if err != nil {
		return err
	}
	defer unlock()

	err = l.tx.WithinProvider(ctx, providerID, fn)
	if err != nil && apperr.KindOf(err) == "" && errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("provider %s not found", providerID)
	}
	return err
}

func (l *Lifecycle) validator(tx repository.Repos) *availability.Validator {
	return availability.NewValidator(tx, l.conv, l.now)
}

func (l *Lifecycle) afterWrite(ctx context.Context, providerID uuid.UUID) {
	if l.invalidator == nil {
		return
	}
	if err := l.invalidator.Invalidate(context.WithoutCancel(ctx), providerID); err != nil {
		l.logger.Warn("availability cache invalidation failed", zap.Stringer("provider_id", providerID), zap.Error(err))
	}
}

// publish не влияет на результат операции: ошибки только логируются.
func (l *Lifecycle) publish(ctx context.Context, e notify.Event) {
	if l.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.notifyTTL)
	defer cancel()

	if err := l.notifier.Notify(ctx, e); err != nil {
		l.logger.Warn("notification failed",
			zap.String("event", string(e.Type)),
			zap.Stringer("booking_id", e.BookingID),
			zap.Error(err),
		)
	}
}

func (l *Lifecycle) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func loadBookable(ctx context.Context, tx repository.Repos, providerID, serviceID uuid.UUID) (*model.Provider, *model.Service, error) {
	provider, err := tx.Providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, nil, notFoundOr(err, "provider", providerID)
	}
	service, err := tx.Services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, nil, notFoundOr(err, "service", serviceID)
	}
	if err := availability.CheckBookable(provider, service); err != nil {
		return nil, nil, err
	}
	return provider, service, nil
}

// Первый визит — у клиента нет записей, кроме отменённых.
func isFirstVisit(ctx context.Context, tx repository.Repos, clientID uuid.UUID) (bool, error) {
	n, err := tx.Bookings.CountNonCancelledByClient(ctx, clientID)
	if err != nil {
		return false, fmt.Errorf("count client bookings: %w", err)
	}
	return n == 0, nil
}

func invalidTransition(b *model.Booking, to model.BookingStatus) error {
	return apperr.Validation(apperr.ReasonInvalidTransition, "booking %s is %s and cannot become %s", b.ID, b.Status, to)
}

func notFoundOr(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}
