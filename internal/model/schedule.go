package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// work_schedules — недельный график мастера, по одной активной строке на день недели.
type WorkSchedule struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID `gorm:"type:uuid;not null;index:idx_schedule_provider_day"`

	// 1 = понедельник ... 7 = воскресенье.
	DayOfWeek int `gorm:"not null;index:idx_schedule_provider_day"`

	// Гражданское время в бизнес-таймзоне, "HH:MM".
	StartTime string `gorm:"type:varchar(5);not null"`
	EndTime   string `gorm:"type:varchar(5);not null"`

	IsActive bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (s *WorkSchedule) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
