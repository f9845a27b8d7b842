package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// services
type Service struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`

	// В минутах, строго больше нуля.
	DurationMin int64 `gorm:"not null"`

	Price decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	IsActive bool `gorm:"not null;default:true;index"`

	// Категория/родительская услуга, если есть.
	ParentID *uuid.UUID `gorm:"type:uuid;index"`

	// Процент от цены, начисляемый бонусами после завершения визита.
	BonusPointsPercent decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Parent    *Service   `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Providers []Provider `gorm:"many2many:provider_services;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (s *Service) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMin) * time.Minute
}

// provider_services — кастомная join-таблица многие-ко-многим.
type ProviderService struct {
	ProviderID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ServiceID  uuid.UUID `gorm:"type:uuid;primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Service  *Service  `gorm:"foreignKey:ServiceID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}
