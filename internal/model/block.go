package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// block_intervals — отпуск, перерыв или админская блокировка, независимо от записей.
type BlockInterval struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID `gorm:"type:uuid;not null;index"`

	StartsAt time.Time `gorm:"not null;index"`
	EndsAt   time.Time `gorm:"not null;index"`

	Reason string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (b *BlockInterval) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *BlockInterval) BeforeSave(_ *gorm.DB) error {
	b.StartsAt = b.StartsAt.UTC()
	b.EndsAt = b.EndsAt.UTC()
	return nil
}
