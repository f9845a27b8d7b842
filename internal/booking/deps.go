package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/loyalty"
	"github.com/Leganyst/master-booking/internal/notify"
	"github.com/Leganyst/master-booking/internal/pricing"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/timezone"
)

// Policy: настройки бронирования, приходят из конфигурации.
type Policy struct {
	// Новая запись сразу CONFIRMED, без подтверждения мастером.
	AutoConfirm bool
	// При переносе CONFIRMED становится RESCHEDULED. По умолчанию статус сохраняется.
	MarkRescheduled bool
	// Скидка на первый визит.
	Discount pricing.DiscountPolicy
}

// CreditLedger: бонусный счёт клиента.
type CreditLedger interface {
	Spend(ctx context.Context, clientID, bookingID uuid.UUID, amount decimal.Decimal) error
	Refund(ctx context.Context, clientID, bookingID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	Award(ctx context.Context, clientID, bookingID uuid.UUID, amount decimal.Decimal) error
}

// LedgerFactory привязывает счёт к репозиториям текущей транзакции,
// чтобы движения по бонусам коммитились вместе с записью.
type LedgerFactory func(tx repository.Repos) CreditLedger

// GormLedger: счёт поверх credit_entries.
func GormLedger(tx repository.Repos) CreditLedger {
	return loyalty.NewLedger(tx.Credits)
}

// Invalidator сбрасывает закэшированную доступность мастера.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID uuid.UUID) error
}

type Deps struct {
	Repos      repository.Repos
	Transactor repository.Transactor
	Converter  *timezone.Converter

	Ledger      LedgerFactory   // nil — бонусы не используются
	Notifier    notify.Notifier // nil — уведомления не шлются
	Invalidator Invalidator     // nil — кэша нет

	Logger        *zap.Logger
	Now           func() time.Time
	NotifyTimeout time.Duration
}
