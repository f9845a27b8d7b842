// Package notify delivers booking lifecycle events to whoever informs the
// client and the master. Delivery is best effort.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/master-booking/internal/model"
)

type EventType string

const (
	EventBookingCreated     EventType = "booking.created"
	EventBookingConfirmed   EventType = "booking.confirmed"
	EventBookingCancelled   EventType = "booking.cancelled"
	EventBookingRescheduled EventType = "booking.rescheduled"
	EventBookingCompleted   EventType = "booking.completed"
)

type Event struct {
	Type       EventType           `json:"type"`
	BookingID  uuid.UUID           `json:"booking_id"`
	ProviderID uuid.UUID           `json:"provider_id"`
	ClientID   uuid.UUID           `json:"client_id"`
	StartsAt   time.Time           `json:"starts_at"`
	EndsAt     time.Time           `json:"ends_at"`
	Status     model.BookingStatus `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	// Для переноса — прежнее время.
	PreviousStartsAt *time.Time `json:"previous_starts_at,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

func NewEvent(t EventType, b *model.Booking, at time.Time) Event {
	return Event{
		Type:       t,
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		ClientID:   b.ClientID,
		StartsAt:   b.StartsAt.UTC(),
		EndsAt:     b.EndsAt.UTC(),
		Status:     b.Status,
		Reason:     b.CancellationReason,
		OccurredAt: at.UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi рассылает событие всем получателям и возвращает первую ошибку.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
