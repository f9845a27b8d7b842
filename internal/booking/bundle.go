package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/apperr"
	"github.com/Leganyst/master-booking/internal/availability"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/notify"
	"github.com/Leganyst/master-booking/internal/pricing"
	"github.com/Leganyst/master-booking/internal/repository"
)

// Максимум услуг в одной комплексной записи.
const maxBundleSize = 10

type BundleRequest struct {
	ProviderID uuid.UUID
	// Порядок задаёт порядок визитов.
	ServiceIDs []uuid.UUID
	ClientID   uuid.UUID
	StartsAt   time.Time
	Notes      string
	Policy     *Policy
}

// CreateBundle бронирует несколько услуг подряд у одного мастера: все или ничего.
// Скидка считается один раз от суммы и раскладывается по записям.
func (l *Lifecycle) CreateBundle(ctx context.Context, req BundleRequest) (_ *model.Bundle, err error) {
	ctx, span := l.startSpan(ctx, "booking.CreateBundle",
		attribute.String("provider.id", req.ProviderID.String()),
		attribute.Int("bundle.size", len(req.ServiceIDs)),
	)
	defer func() { endSpan(span, err) }()

	switch {
	case req.ClientID == uuid.Nil:
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "client id is required")
	case len(req.ServiceIDs) == 0:
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "bundle needs at least one service")
	case len(req.ServiceIDs) > maxBundleSize:
		return nil, apperr.Validation(apperr.ReasonInvalidInput, "bundle may hold at most %d services", maxBundleSize)
	}
	policy := l.policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	start := req.StartsAt.UTC().Truncate(time.Second)

	var bundle *model.Bundle
	err = l.withProvider(ctx, req.ProviderID, func(ctx context.Context, tx repository.Repos) error {
		provider, err := tx.Providers.GetByID(ctx, req.ProviderID)
		if err != nil {
			return notFoundOr(err, "provider", req.ProviderID)
		}

		services := make([]*model.Service, 0, len(req.ServiceIDs))
		prices := make([]decimal.Decimal, 0, len(req.ServiceIDs))
		for _, id := range req.ServiceIDs {
			s, err := tx.Services.GetByID(ctx, id)
			if err != nil {
				return notFoundOr(err, "service", id)
			}
			if err := availability.CheckBookable(provider, s); err != nil {
				return err
			}
			services = append(services, s)
			prices = append(prices, s.Price)
		}

		// Компоненты идут встык и друг с другом не пересекаются,
		// поэтому каждый достаточно проверить против уже существующих записей.
		validator := l.validator(tx)
		cursor := start
		bookings := make([]*model.Booking, 0, len(services))
		for _, s := range services {
			end := cursor.Add(s.Duration())
			if err := validator.Validate(ctx, provider.ID, cursor, end, nil); err != nil {
				return fmt.Errorf("service %s at %s: %w", s.Name, cursor.Format(time.RFC3339), err)
			}
			bookings = append(bookings, &model.Booking{
				ID:         uuid.New(),
				ProviderID: provider.ID,
				ServiceID:  s.ID,
				ClientID:   req.ClientID,
				StartsAt:   cursor,
				EndsAt:     end,
				Price:      s.Price,
				Notes:      req.Notes,
			})
			cursor = end
		}

		firstVisit, err := isFirstVisit(ctx, tx, req.ClientID)
		if err != nil {
			return err
		}
		quote := pricing.Bundle(prices, firstVisit, policy.Discount)

		status := model.BookingStatusPending
		if policy.AutoConfirm {
			status = model.BookingStatusConfirmed
		}

		bundle = &model.Bundle{
			ID:            uuid.New(),
			ProviderID:    provider.ID,
			ClientID:      req.ClientID,
			ServiceIDs:    append([]uuid.UUID(nil), req.ServiceIDs...),
			BookingIDs:    make([]uuid.UUID, 0, len(bookings)),
			TotalPrice:    quote.Total,
			TotalDiscount: quote.Discount,
		}
		for _, b := range bookings {
			bundle.BookingIDs = append(bundle.BookingIDs, b.ID)
		}
		if err := tx.Bundles.Create(ctx, bundle); err != nil {
			return fmt.Errorf("create bundle: %w", err)
		}

		for i, b := range bookings {
			b.BundleID = &bundle.ID
			b.Status = status
			b.Discount = quote.Discounts[i]
			if err := tx.Bookings.Create(ctx, b); err != nil {
				return fmt.Errorf("create bundle booking: %w", err)
			}
			bundle.Bookings = append(bundle.Bookings, *b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("bundle created",
		zap.Stringer("bundle_id", bundle.ID),
		zap.Stringer("provider_id", bundle.ProviderID),
		zap.Int("bookings", len(bundle.Bookings)),
		zap.String("total", bundle.TotalPrice.StringFixed(2)),
		zap.String("discount", bundle.TotalDiscount.StringFixed(2)),
	)
	l.afterWrite(ctx, bundle.ProviderID)
	for i := range bundle.Bookings {
		l.publish(ctx, notify.NewEvent(notify.EventBookingCreated, &bundle.Bookings[i], l.now()))
	}
	return bundle, nil
}

func (l *Lifecycle) GetBundle(ctx context.Context, bundleID uuid.UUID) (*model.Bundle, error) {
	b, err := l.repos.Bundles.GetByID(ctx, bundleID)
	if err != nil {
		return nil, notFoundOr(err, "bundle", bundleID)
	}
	return b, nil
}
