package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Leganyst/master-booking/internal/booking"
	"github.com/Leganyst/master-booking/internal/loyalty"
	"github.com/Leganyst/master-booking/internal/service"
)

type RouterDeps struct {
	Lifecycle *booking.Lifecycle
	Calendar  *service.CalendarService
	Directory *service.DirectoryService
	Loyalty   *loyalty.Ledger
	Location  *time.Location
	Logger    *zap.Logger

	RateLimitPerMin int
	// Ping проверяет зависимости для /healthz; nil — всегда ok.
	Ping func(ctx context.Context) error
}

func NewRouter(d RouterDeps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", HeaderActorID, HeaderActorRole},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(RateLimit(d.RateLimitPerMin, logger))

	r.GET("/healthz", func(c *gin.Context) {
		if d.Ping != nil {
			if err := d.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	bh := NewBookingHandler(d.Lifecycle, d.Location, logger)
	ch := NewCalendarHandler(d.Calendar, d.Location, logger)
	dh := NewDirectoryHandler(d.Directory, logger)
	lh := NewLoyaltyHandler(d.Loyalty, logger)
	admin := RequireAdmin(logger)

	v1 := r.Group("/v1")
	v1.Use(Actor())
	{
		v1.GET("/availability", ch.Availability)

		v1.POST("/bookings", bh.Create)
		v1.GET("/bookings", ch.List)
		v1.GET("/bookings/:id", bh.Get)
		v1.POST("/bookings/:id/confirm", bh.Confirm)
		v1.POST("/bookings/:id/cancel", bh.Cancel)
		v1.POST("/bookings/:id/reschedule", bh.Reschedule)
		v1.POST("/bookings/:id/complete", admin, bh.Complete)
		v1.DELETE("/bookings/:id", admin, bh.Delete)

		v1.POST("/bundles", bh.CreateBundle)
		v1.GET("/bundles/:id", bh.GetBundle)

		v1.POST("/providers", admin, dh.CreateProvider)
		v1.GET("/providers/:id", dh.GetProvider)
		v1.GET("/providers/:id/services", dh.ListServices)
		v1.PUT("/providers/:id/services/:serviceId", admin, dh.AttachService)
		v1.GET("/providers/:id/schedule", dh.ListSchedules)
		v1.PUT("/providers/:id/schedule/:day", admin, dh.SetSchedule)
		v1.DELETE("/providers/:id/schedule/:day", admin, dh.DayOff)
		v1.POST("/providers/:id/blocks", admin, ch.AddBlock)
		v1.DELETE("/providers/:id/blocks/:blockId", admin, ch.RemoveBlock)

		v1.GET("/clients/:id/credit", lh.Balance)
		v1.POST("/clients/:id/credit", admin, lh.Grant)

		v1.GET("/services", dh.Catalog)
		v1.POST("/services", admin, dh.CreateService)
	}
	return r
}
