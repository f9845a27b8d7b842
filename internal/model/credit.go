package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Тип движения по бонусному счёту клиента.
type CreditKind string

const (
	CreditKindSpend  CreditKind = "spend"
	CreditKindRefund CreditKind = "refund"
	CreditKindAward  CreditKind = "award"
)

// credit_entries — журнал бонусных баллов. Баланс = сумма Amount по клиенту.
type CreditEntry struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ClientID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	BookingID *uuid.UUID `gorm:"type:uuid;index"`

	Kind CreditKind `gorm:"type:varchar(16);not null;index"`

	// Со знаком: списание отрицательное.
	Amount decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	CreatedAt time.Time `gorm:"not null;index"`
}

func (e *CreditEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
