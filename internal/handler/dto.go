package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/master-booking/internal/model"
)

type bookingResponse struct {
	ID                 uuid.UUID           `json:"id"`
	ProviderID         uuid.UUID           `json:"provider_id"`
	ServiceID          uuid.UUID           `json:"service_id"`
	ClientID           uuid.UUID           `json:"client_id"`
	BundleID           *uuid.UUID          `json:"bundle_id,omitempty"`
	StartsAt           time.Time           `json:"starts_at"`
	EndsAt             time.Time           `json:"ends_at"`
	Status             model.BookingStatus `json:"status"`
	Price              string              `json:"price"`
	Discount           string              `json:"discount"`
	BonusPointsUsed    string              `json:"bonus_points_used"`
	FinalPrice         string              `json:"final_price"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}

// Время отдаётся в бизнес-таймзоне, чтобы клиент видел локальные часы.
func toBookingResponse(b *model.Booking, loc *time.Location) bookingResponse {
	return bookingResponse{
		ID:                 b.ID,
		ProviderID:         b.ProviderID,
		ServiceID:          b.ServiceID,
		ClientID:           b.ClientID,
		BundleID:           b.BundleID,
		StartsAt:           b.StartsAt.In(loc),
		EndsAt:             b.EndsAt.In(loc),
		Status:             b.Status,
		Price:              b.Price.StringFixed(2),
		Discount:           b.Discount.StringFixed(2),
		BonusPointsUsed:    b.BonusPointsUsed.StringFixed(2),
		FinalPrice:         b.FinalPrice().StringFixed(2),
		CancellationReason: b.CancellationReason,
		Notes:              b.Notes,
		CancelledAt:        b.CancelledAt,
		CompletedAt:        b.CompletedAt,
		CreatedAt:          b.CreatedAt,
	}
}

func toBookingResponses(bookings []model.Booking, loc *time.Location) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i], loc))
	}
	return out
}

type bundleResponse struct {
	ID            uuid.UUID         `json:"id"`
	ProviderID    uuid.UUID         `json:"provider_id"`
	ClientID      uuid.UUID         `json:"client_id"`
	ServiceIDs    []uuid.UUID       `json:"service_ids"`
	TotalPrice    string            `json:"total_price"`
	TotalDiscount string            `json:"total_discount"`
	Bookings      []bookingResponse `json:"bookings"`
}

func toBundleResponse(b *model.Bundle, loc *time.Location) bundleResponse {
	return bundleResponse{
		ID:            b.ID,
		ProviderID:    b.ProviderID,
		ClientID:      b.ClientID,
		ServiceIDs:    b.ServiceIDs,
		TotalPrice:    b.TotalPrice.StringFixed(2),
		TotalDiscount: b.TotalDiscount.StringFixed(2),
		Bookings:      toBookingResponses(b.Bookings, loc),
	}
}

type blockResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Reason     string    `json:"reason,omitempty"`
}

type providerResponse struct {
	ID               uuid.UUID `json:"id"`
	DisplayName      string    `json:"display_name"`
	Description      string    `json:"description,omitempty"`
	IsActive         bool      `json:"is_active"`
	BreakDurationMin int64     `json:"break_duration_min"`
}

func toProviderResponse(p *model.Provider) providerResponse {
	return providerResponse{
		ID:               p.ID,
		DisplayName:      p.DisplayName,
		Description:      p.Description,
		IsActive:         p.IsActive,
		BreakDurationMin: p.BreakDurationMin,
	}
}

type serviceResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	DurationMin        int64      `json:"duration_min"`
	Price              string     `json:"price"`
	IsActive           bool       `json:"is_active"`
	ParentID           *uuid.UUID `json:"parent_id,omitempty"`
	BonusPointsPercent string     `json:"bonus_points_percent"`
}

func toServiceResponse(s *model.Service) serviceResponse {
	return serviceResponse{
		ID:                 s.ID,
		Name:               s.Name,
		Description:        s.Description,
		DurationMin:        s.DurationMin,
		Price:              s.Price.StringFixed(2),
		IsActive:           s.IsActive,
		ParentID:           s.ParentID,
		BonusPointsPercent: s.BonusPointsPercent.StringFixed(2),
	}
}

type scheduleResponse struct {
	ID        uuid.UUID `json:"id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	IsActive  bool      `json:"is_active"`
}
