package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Leganyst/master-booking/internal/calendar"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	actorKey = "actor"
)

// RequestLogger пишет одну строку на запрос.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// Через limiterIdleTTL без запросов ведро IP заведомо полное, и его
// можно выбросить: новый лимитер ведёт себя так же.
const limiterIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMin    int
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(perMin int, now func() time.Time) *limiterStore {
	if now == nil {
		now = time.Now
	}
	return &limiterStore{visitors: make(map[string]*visitor), perMin: perMin, lastSweep: now(), now: now}
}

func (s *limiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= limiterIdleTTL {
		s.sweep(now)
	}

	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep вызывается под s.mu.
func (s *limiterStore) sweep(now time.Time) {
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) >= limiterIdleTTL {
			delete(s.visitors, ip)
		}
	}
	s.lastSweep = now
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit ограничивает число запросов с одного IP в минуту. 0 — без ограничений.
func RateLimit(perMin int, logger *zap.Logger) gin.HandlerFunc {
	if perMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	store := newLimiterStore(perMin, nil)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !store.get(ip).Allow() {
			logger.Warn("rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Message: "rate limit exceeded. try again later"})
			return
		}
		c.Next()
	}
}

// Actor разбирает заголовки шлюза. Без заголовков актор не выставляется,
// а операции, которым он нужен, отвечают 403.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID, rawRole := c.GetHeader(HeaderActorID), c.GetHeader(HeaderActorRole)
		if rawID == "" && rawRole == "" {
			c.Next()
			return
		}
		actor, err := calendar.ValidateActor(rawID, rawRole)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) (calendar.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return calendar.Actor{}, false
	}
	actor, ok := v.(calendar.Actor)
	return actor, ok
}

// RequireAdmin пропускает только администратора.
func RequireAdmin(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := actorFrom(c)
		if err := calendar.RequireAdmin(actor); err != nil {
			writeError(c, logger, err)
			return
		}
		c.Next()
	}
}
