package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/calendar"
)

// LogNotifier пишет события в лог. Используется, когда брокер не настроен.
type LogNotifier struct {
	logger *zap.Logger
	loc    *time.Location
}

func NewLogNotifier(logger *zap.Logger, loc *time.Location) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify"), loc: loc}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.Stringer("booking_id", e.BookingID),
		zap.Stringer("provider_id", e.ProviderID),
		zap.Stringer("client_id", e.ClientID),
		zap.String("status", string(e.Status)),
		zap.String("when", calendar.FormatForUser(calendar.TimeRange{Start: e.StartsAt, End: e.EndsAt}, n.loc)),
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if e.PreviousStartsAt != nil {
		fields = append(fields, zap.Time("previous_starts_at", *e.PreviousStartsAt))
	}
	n.logger.Info("booking event", fields...)
	return nil
}
