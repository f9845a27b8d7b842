package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Provider — мастер, чьё время бронируется.
type Provider struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Имя/отображаемое название в интерфейсе.
	DisplayName string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`

	IsActive bool `gorm:"not null;default:true;index"`

	// Обязательный перерыв после каждой записи, в минутах. 0 — записи встык.
	BreakDurationMin int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Services  []Service      `gorm:"many2many:provider_services;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Schedules []WorkSchedule `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (p *Provider) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Provider) BreakDuration() time.Duration {
	return time.Duration(p.BreakDurationMin) * time.Minute
}

// Offers reports whether serviceID is among the preloaded Services.
func (p *Provider) Offers(serviceID uuid.UUID) bool {
	for _, s := range p.Services {
		if s.ID == serviceID {
			return true
		}
	}
	return false
}
