package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// bundles — комплексная запись: несколько услуг подряд одним действием клиента
// с общей скидкой.
type Bundle struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID `gorm:"type:uuid;not null;index"`
	ClientID   uuid.UUID `gorm:"type:uuid;not null;index"`

	// Порядок услуг совпадает с порядком записей.
	ServiceIDs datatypes.JSONSlice[uuid.UUID] `gorm:"not null"`
	BookingIDs datatypes.JSONSlice[uuid.UUID] `gorm:"not null"`

	TotalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TotalDiscount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`

	Bookings []Booking `gorm:"foreignKey:BundleID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (b *Bundle) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
