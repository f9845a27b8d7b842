package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/booking"
	"github.com/Leganyst/master-booking/internal/calendar"
)

type BookingHandler struct {
	lc     *booking.Lifecycle
	loc    *time.Location
	logger *zap.Logger
}

func NewBookingHandler(lc *booking.Lifecycle, loc *time.Location, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{lc: lc, loc: loc, logger: logger}
}

// POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var in struct {
		ProviderID  uuid.UUID `json:"provider_id" binding:"required"`
		ServiceID   uuid.UUID `json:"service_id"  binding:"required"`
		ClientID    uuid.UUID `json:"client_id"`
		StartsAt    time.Time `json:"starts_at"   binding:"required"` // RFC3339
		Notes       string    `json:"notes"`
		BonusPoints string    `json:"bonus_points"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	clientID := in.ClientID
	if actor, ok := actorFrom(c); ok && clientID == uuid.Nil && actor.Role == calendar.ActorRoleClient {
		clientID = actor.ID
	}
	bonus := decimal.Zero
	if in.BonusPoints != "" {
		v, err := decimal.NewFromString(in.BonusPoints)
		if err != nil {
			badRequest(c, "bonus_points must be a decimal number")
			return
		}
		bonus = v
	}

	b, err := h.lc.Create(c.Request.Context(), booking.CreateRequest{
		ProviderID:  in.ProviderID,
		ServiceID:   in.ServiceID,
		ClientID:    clientID,
		StartsAt:    in.StartsAt,
		Notes:       in.Notes,
		BonusPoints: bonus,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b, h.loc))
}

// POST /v1/bookings/:id/confirm
func (h *BookingHandler) Confirm(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	b, err := h.lc.Confirm(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b, h.loc))
}

// POST /v1/bookings/:id/cancel (клиент — свои, мастер — к себе, админ — любые)
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	// тело необязательно
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	actor, _ := actorFrom(c)
	b, err := h.lc.Cancel(c.Request.Context(), id, actor, in.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b, h.loc))
}

// POST /v1/bookings/:id/reschedule
func (h *BookingHandler) Reschedule(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var in struct {
		StartsAt time.Time `json:"starts_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := h.lc.Reschedule(c.Request.Context(), id, in.StartsAt)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b, h.loc))
}

// POST /v1/bookings/:id/complete (admin)
func (h *BookingHandler) Complete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	b, err := h.lc.Complete(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b, h.loc))
}

// DELETE /v1/bookings/:id (admin)
func (h *BookingHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.lc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	b, err := h.lc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b, h.loc))
}

// POST /v1/bundles
func (h *BookingHandler) CreateBundle(c *gin.Context) {
	var in struct {
		ProviderID uuid.UUID   `json:"provider_id" binding:"required"`
		ServiceIDs []uuid.UUID `json:"service_ids" binding:"required"`
		ClientID   uuid.UUID   `json:"client_id"`
		StartsAt   time.Time   `json:"starts_at"   binding:"required"`
		Notes      string      `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	clientID := in.ClientID
	if actor, ok := actorFrom(c); ok && clientID == uuid.Nil && actor.Role == calendar.ActorRoleClient {
		clientID = actor.ID
	}

	bundle, err := h.lc.CreateBundle(c.Request.Context(), booking.BundleRequest{
		ProviderID: in.ProviderID,
		ServiceIDs: in.ServiceIDs,
		ClientID:   clientID,
		StartsAt:   in.StartsAt,
		Notes:      in.Notes,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toBundleResponse(bundle, h.loc))
}

// GET /v1/bundles/:id
func (h *BookingHandler) GetBundle(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	bundle, err := h.lc.GetBundle(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBundleResponse(bundle, h.loc))
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
