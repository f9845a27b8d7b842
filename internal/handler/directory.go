package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/calendar"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/service"
)

type DirectoryHandler struct {
	svc    *service.DirectoryService
	logger *zap.Logger
}

func NewDirectoryHandler(svc *service.DirectoryService, logger *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{svc: svc, logger: logger}
}

// POST /v1/providers (admin)
func (h *DirectoryHandler) CreateProvider(c *gin.Context) {
	var in struct {
		DisplayName      string `json:"display_name" binding:"required"`
		Description      string `json:"description"`
		BreakDurationMin int64  `json:"break_duration_min"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.svc.CreateProvider(c.Request.Context(), service.ProviderInput{
		DisplayName:      in.DisplayName,
		Description:      in.Description,
		BreakDurationMin: in.BreakDurationMin,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toProviderResponse(p))
}

// GET /v1/providers/:id
func (h *DirectoryHandler) GetProvider(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.svc.GetProvider(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProviderResponse(p))
}

// POST /v1/services (admin)
func (h *DirectoryHandler) CreateService(c *gin.Context) {
	var in struct {
		Name               string     `json:"name" binding:"required"`
		Description        string     `json:"description"`
		DurationMin        int64      `json:"duration_min" binding:"required"`
		Price              string     `json:"price"`
		BonusPointsPercent string     `json:"bonus_points_percent"`
		ParentID           *uuid.UUID `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	price, ok := decimalField(c, "price", in.Price)
	if !ok {
		return
	}
	bonus, ok := decimalField(c, "bonus_points_percent", in.BonusPointsPercent)
	if !ok {
		return
	}

	s, err := h.svc.CreateService(c.Request.Context(), service.ServiceInput{
		Name:               in.Name,
		Description:        in.Description,
		DurationMin:        in.DurationMin,
		Price:              price,
		BonusPointsPercent: bonus,
		ParentID:           in.ParentID,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toServiceResponse(s))
}

// GET /v1/services?active=true&parent_id&page&limit
func (h *DirectoryHandler) Catalog(c *gin.Context) {
	var filter repository.ServiceFilter
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "active must be a boolean")
			return
		}
		filter.OnlyActive = active
	}
	if v := c.Query("parent_id"); v != "" {
		parentID, err := uuid.Parse(v)
		if err != nil {
			badRequest(c, "invalid parent_id")
			return
		}
		filter.ParentID = &parentID
	}
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.svc.Catalog(c.Request.Context(), filter, page, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	items := make([]serviceResponse, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, toServiceResponse(&res.Items[i]))
	}
	c.JSON(http.StatusOK, calendar.Page[serviceResponse]{
		Items:    items,
		Page:     res.Page,
		PageSize: res.PageSize,
		HasNext:  res.HasNext,
		HasPrev:  res.HasPrev,
		Total:    res.Total,
	})
}

// PUT /v1/providers/:id/services/:serviceId (admin)
func (h *DirectoryHandler) AttachService(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	serviceID, ok := pathUUID(c, "serviceId")
	if !ok {
		return
	}
	if err := h.svc.AttachService(c.Request.Context(), providerID, serviceID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/providers/:id/services?page&limit
func (h *DirectoryHandler) ListServices(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	services, err := h.svc.ListServices(c.Request.Context(), providerID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for i := range services {
		out = append(out, toServiceResponse(&services[i]))
	}
	// у мастера немного услуг, страница режется в памяти
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	c.JSON(http.StatusOK, calendar.Paginate(out, page, limit))
}

// PUT /v1/providers/:id/schedule/:day (admin)
func (h *DirectoryHandler) SetSchedule(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		badRequest(c, "day must be 1..7")
		return
	}
	var in struct {
		StartTime string `json:"start_time" binding:"required"`
		EndTime   string `json:"end_time"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	s, err := h.svc.SetSchedule(c.Request.Context(), providerID, service.ScheduleInput{
		DayOfWeek: day,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse{
		ID:        s.ID,
		DayOfWeek: s.DayOfWeek,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		IsActive:  s.IsActive,
	})
}

// DELETE /v1/providers/:id/schedule/:day (admin) — выходной
func (h *DirectoryHandler) DayOff(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		badRequest(c, "day must be 1..7")
		return
	}
	if err := h.svc.DayOff(c.Request.Context(), providerID, day); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/providers/:id/schedule
func (h *DirectoryHandler) ListSchedules(c *gin.Context) {
	providerID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	schedules, err := h.svc.ListSchedules(c.Request.Context(), providerID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]scheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, scheduleResponse{
			ID:        s.ID,
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			IsActive:  s.IsActive,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func decimalField(c *gin.Context, name, raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, true
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		badRequest(c, name+" must be a decimal number")
		return decimal.Zero, false
	}
	return v, true
}
