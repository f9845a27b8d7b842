package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/service"
	"github.com/Leganyst/master-booking/internal/timezone"
)

type CalendarHandler struct {
	svc    *service.CalendarService
	loc    *time.Location
	logger *zap.Logger
}

func NewCalendarHandler(svc *service.CalendarService, loc *time.Location, logger *zap.Logger) *CalendarHandler {
	return &CalendarHandler{svc: svc, loc: loc, logger: logger}
}

// GET /v1/availability?provider_id=...&service_id=...&date=YYYY-MM-DD
func (h *CalendarHandler) Availability(c *gin.Context) {
	providerID, err := uuid.Parse(c.Query("provider_id"))
	if err != nil {
		badRequest(c, "invalid provider_id")
		return
	}
	serviceID, err := uuid.Parse(c.Query("service_id"))
	if err != nil {
		badRequest(c, "invalid service_id")
		return
	}
	date, err := timezone.ParseDate(c.Query("date"))
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.svc.Availability(c.Request.Context(), providerID, serviceID, date)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.In(h.loc))
	}
	c.JSON(http.StatusOK, gin.H{
		"provider_id": providerID,
		"service_id":  serviceID,
		"date":        date.String(),
		"timezone":    h.loc.String(),
		"slots":       out,
	})
}

// GET /v1/bookings?provider_id&client_id&status&from&to&page&limit
func (h *CalendarHandler) List(c *gin.Context) {
	var filter repository.BookingFilter
	var err error
	if v := c.Query("provider_id"); v != "" {
		if filter.ProviderID, err = uuid.Parse(v); err != nil {
			badRequest(c, "invalid provider_id")
			return
		}
	}
	if v := c.Query("client_id"); v != "" {
		if filter.ClientID, err = uuid.Parse(v); err != nil {
			badRequest(c, "invalid client_id")
			return
		}
	}
	filter.Status = model.BookingStatus(c.Query("status"))
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, p.name+" must be RFC3339")
			return
		}
		*p.dst = &t
	}
	// нечисловые значения трактуются как отсутствующие и зажимаются
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.svc.ListBookings(c.Request.Context(), filter, page, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, calendar.Page[bookingResponse]{
		Items:    toBookingResponses(res.Items, h.loc),
		Page:     res.Page,
		PageSize: res.PageSize,
		HasNext:  res.HasNext,
		HasPrev:  res.HasPrev,
		Total:    res.Total,
	})
}

// POST /v1/providers/:id/blocks (admin)
func (h *CalendarHandler) AddBlock(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var in struct {
		StartsAt time.Time `json:"starts_at" binding:"required"`
		EndsAt   time.Time `json:"ends_at"   binding:"required"`
		Reason   string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	block, err := h.svc.AddBlock(c.Request.Context(), providerID, in.StartsAt, in.EndsAt, in.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, blockResponse{
		ID:         block.ID,
		ProviderID: block.ProviderID,
		StartsAt:   block.StartsAt.In(h.loc),
		EndsAt:     block.EndsAt.In(h.loc),
		Reason:     block.Reason,
	})
}

// DELETE /v1/providers/:id/blocks/:blockId (admin)
func (h *CalendarHandler) RemoveBlock(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	blockID, ok := pathUUID(c, "blockId")
	if !ok {
		return
	}
	if err := h.svc.RemoveBlock(c.Request.Context(), providerID, blockID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
