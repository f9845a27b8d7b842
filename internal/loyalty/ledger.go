// Package loyalty keeps the client bonus-point ledger. The balance is the sum
// of signed entries; spending is negative, refunds and awards are positive.
package loyalty

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/repository"
)

type Ledger struct {
	credits repository.CreditRepository
}

func NewLedger(credits repository.CreditRepository) *Ledger {
	return &Ledger{credits: credits}
}

func (l *Ledger) Balance(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	return l.credits.Balance(ctx, clientID)
}

// Spend списывает amount баллов в счёт записи. Записи к разным мастерам
// идут под разными блокировками, поэтому проверка баланса и списание
// делаются под блокировкой клиента.
func (l *Ledger) Spend(ctx context.Context, clientID, bookingID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := l.credits.LockClient(ctx, clientID); err != nil {
		return fmt.Errorf("lock client credit: %w", err)
	}
	balance, err := l.credits.Balance(ctx, clientID)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if balance.LessThan(amount) {
		return apperr.Validation(apperr.ReasonInsufficientCredit,
			"insufficient bonus points: have %s, need %s", balance.StringFixed(2), amount.StringFixed(2))
	}
	return l.add(ctx, clientID, bookingID, model.CreditKindSpend, amount.Neg())
}

// Refund возвращает не больше, чем было списано по записи за вычетом уже возвращённого.
// Повторный вызов ничего не делает. Возвращает фактически возвращённую сумму.
func (l *Ledger) Refund(ctx context.Context, clientID, bookingID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	spent, err := l.credits.SumByBooking(ctx, bookingID, model.CreditKindSpend)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum spent: %w", err)
	}
	refunded, err := l.credits.SumByBooking(ctx, bookingID, model.CreditKindRefund)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum refunded: %w", err)
	}

	refundable := spent.Neg().Sub(refunded)
	amount = decimal.Min(amount, refundable)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	if err := l.add(ctx, clientID, bookingID, model.CreditKindRefund, amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Award начисляет баллы за завершённый визит, один раз на запись.
func (l *Ledger) Award(ctx context.Context, clientID, bookingID uuid.UUID, amount decimal.Decimal) error {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil
	}
	awarded, err := l.credits.SumByBooking(ctx, bookingID, model.CreditKindAward)
	if err != nil {
		return fmt.Errorf("sum awarded: %w", err)
	}
	if !awarded.IsZero() {
		return nil
	}
	return l.add(ctx, clientID, bookingID, model.CreditKindAward, amount)
}

func (l *Ledger) add(ctx context.Context, clientID, bookingID uuid.UUID, kind model.CreditKind, amount decimal.Decimal) error {
	entry := &model.CreditEntry{
		ClientID:  clientID,
		BookingID: &bookingID,
		Kind:      kind,
		Amount:    amount,
	}
	if err := l.credits.Create(ctx, entry); err != nil {
		return fmt.Errorf("create %s entry: %w", kind, err)
	}
	return nil
}

// Grant: ручное начисление (акции, перенос баланса), без привязки к записи.
func (l *Ledger) Grant(ctx context.Context, clientID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation(apperr.ReasonInvalidInput, "grant amount must be positive")
	}
	return l.credits.Create(ctx, &model.CreditEntry{ClientID: clientID, Kind: model.CreditKindAward, Amount: amount})
}
