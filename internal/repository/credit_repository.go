package repository

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/model"
)

type CreditRepository interface {
	Create(ctx context.Context, entry *model.CreditEntry) error
	// Сериализует списания клиента до конца текущей транзакции.
	LockClient(ctx context.Context, clientID uuid.UUID) error
	// Текущий баланс бонусов клиента.
	Balance(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error)
	// Сумма движений вида kind по записи (например, уже возвращённые бонусы).
	SumByBooking(ctx context.Context, bookingID uuid.UUID, kind model.CreditKind) (decimal.Decimal, error)
}

type GormCreditRepository struct {
	db *gorm.DB
}

func NewGormCreditRepository(db *gorm.DB) *GormCreditRepository {
	return &GormCreditRepository{db: db}
}

func (r *GormCreditRepository) Create(ctx context.Context, entry *model.CreditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// LockClient: на postgres pg_advisory_xact_lock по клиенту, снимается вместе
// с транзакцией. Вне транзакции держится только на время запроса.
// sqlite пишет одним писателем, там блокировка не нужна.
func (r *GormCreditRepository) LockClient(ctx context.Context, clientID uuid.UUID) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", ClientLockKey(clientID)).Error
}

// ClientLockKey: ключ advisory-блокировки из первых 8 байт uuid клиента.
func ClientLockKey(clientID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(clientID[:8]))
}

// Sums are done in Go on decimal values so that numeric affinity differences
// between drivers do not leak float rounding into balances.
func (r *GormCreditRepository) Balance(ctx context.Context, clientID uuid.UUID) (decimal.Decimal, error) {
	var entries []model.CreditEntry
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).Find(&entries).Error; err != nil {
		return decimal.Zero, err
	}
	return sumEntries(entries), nil
}

func (r *GormCreditRepository) SumByBooking(ctx context.Context, bookingID uuid.UUID, kind model.CreditKind) (decimal.Decimal, error) {
	var entries []model.CreditEntry
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND kind = ?", bookingID, kind).
		Find(&entries).Error
	if err != nil {
		return decimal.Zero, err
	}
	return sumEntries(entries), nil
}

func sumEntries(entries []model.CreditEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
