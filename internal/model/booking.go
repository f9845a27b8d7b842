package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending     BookingStatus = "pending"
	BookingStatusConfirmed   BookingStatus = "confirmed"
	BookingStatusRescheduled BookingStatus = "rescheduled"
	BookingStatusCancelled   BookingStatus = "cancelled"
	BookingStatusCompleted   BookingStatus = "completed"
)

// OccupyingStatuses — статусы, которые занимают время мастера.
var OccupyingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusRescheduled,
}

func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// ConfirmedEquivalent is true for statuses that count as a confirmed visit.
func (s BookingStatus) ConfirmedEquivalent() bool {
	return s == BookingStatusConfirmed || s == BookingStatusRescheduled
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusRescheduled,
		BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// bookings
type Booking struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID  `gorm:"type:uuid;not null;index:idx_booking_provider_time"`
	ServiceID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	ClientID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	BundleID   *uuid.UUID `gorm:"type:uuid;index"`

	StartsAt time.Time `gorm:"not null;index:idx_booking_provider_time"`
	EndsAt   time.Time `gorm:"not null"`

	Status BookingStatus `gorm:"type:varchar(32);not null;index"`

	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Discount        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	BonusPointsUsed decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	CancellationReason string `gorm:"type:text"`
	Notes              string `gorm:"type:text"`

	CancelledAt *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Service  *Service  `gorm:"foreignKey:ServiceID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (b *Booking) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Instants are stored in UTC so that range predicates compare consistently on every driver.
func (b *Booking) BeforeSave(_ *gorm.DB) error {
	b.StartsAt = b.StartsAt.UTC()
	b.EndsAt = b.EndsAt.UTC()
	return nil
}

// FinalPrice — сумма к оплате после скидки и списанных бонусов.
func (b *Booking) FinalPrice() decimal.Decimal {
	final := b.Price.Sub(b.Discount).Sub(b.BonusPointsUsed)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}
