package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"github.com/Leganyst/master-booking/internal/availability"
	"github.com/Leganyst/master-booking/internal/booking"
	"github.com/Leganyst/master-booking/internal/cache"
	"github.com/Leganyst/master-booking/internal/completion"
	"github.com/Leganyst/master-booking/internal/config"
	"github.com/Leganyst/master-booking/internal/db"
	"github.com/Leganyst/master-booking/internal/handler"
	"github.com/Leganyst/master-booking/internal/loyalty"
	"github.com/Leganyst/master-booking/internal/model"
	"github.com/Leganyst/master-booking/internal/notify"
	"github.com/Leganyst/master-booking/internal/obs"
	"github.com/Leganyst/master-booking/internal/pricing"
	"github.com/Leganyst/master-booking/internal/repository"
	"github.com/Leganyst/master-booking/internal/service"
	"github.com/Leganyst/master-booking/internal/timezone"
)

const serviceName = "master-booking"

func main() {
	// 1. Конфиг из env (.env необязателен).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}

	// 2. Бизнес-таймзона: неизвестная зона — ошибка конфигурации, дальше не идём.
	conv, err := timezone.NewConverter(cfg.Booking.BusinessTimezone)
	if err != nil {
		logger.Fatal("business timezone", zap.Error(err))
	}
	discount, err := pricing.ParsePolicy(cfg.Booking.DiscountEnabled, cfg.Booking.DiscountType, cfg.Booking.DiscountValue)
	if err != nil {
		logger.Fatal("discount policy", zap.Error(err))
	}

	// 3. БД и миграции.
	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		logger.Fatal("init db", zap.Error(err))
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		logger.Fatal("auto migrate", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("sql DB", zap.Error(err))
	}
	defer sqlDB.Close()

	// 4. Кэш доступности и уведомления — необязательные.
	var (
		slotCache   service.SlotCache
		invalidator booking.Invalidator
	)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, availability cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			c := cache.NewAvailabilityCache(rdb, cfg.Redis.TTL())
			slotCache, invalidator = c, c
		}
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger.Named("notify"), conv.Location())}
	if cfg.Notify.RabbitURL != "" {
		pub, err := notify.NewPublisher(cfg.Notify.RabbitURL, cfg.Notify.BookingExchange)
		if err != nil {
			logger.Fatal("rabbitmq publisher", zap.Error(err))
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}

	// 5. Ядро: репозитории, жизненный цикл записей, слоты.
	repos := repository.NewGormRepos(gormDB)
	lifecycle := booking.NewLifecycle(booking.Deps{
		Repos:         repos,
		Transactor:    repository.NewGormTransactor(gormDB),
		Converter:     conv,
		Ledger:        booking.GormLedger,
		Notifier:      notifiers,
		Invalidator:   invalidator,
		Logger:        logger,
		NotifyTimeout: cfg.Notify.Timeout(),
	}, booking.Policy{
		AutoConfirm:     cfg.Booking.AutoConfirm,
		MarkRescheduled: cfg.Booking.MarkRescheduled,
		Discount:        discount,
	})
	slots := availability.NewSlotGenerator(repos, conv, cfg.Booking.LeadTime(), nil)
	calendarSvc := service.NewCalendarService(repos, slots, slotCache, conv, logger, nil)
	directorySvc := service.NewDirectoryService(repos, slotCache, logger)

	sweeper := completion.NewSweeper(lifecycle, logger, nil)
	if err := sweeper.Start(cfg.CompletionCron); err != nil {
		logger.Fatal("completion sweeper", zap.Error(err))
	}

	// 6. HTTP.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterDeps{
		Lifecycle:       lifecycle,
		Calendar:        calendarSvc,
		Directory:       directorySvc,
		Loyalty:         loyalty.NewLedger(repos.Credits),
		Location:        conv.Location(),
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Ping:            sqlDB.PingContext,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	// 7. gRPC: health + reflection для оркестратора.
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	go watchDB(ctx, gormDB, healthSrv, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("grpc serve", zap.Error(err))
		}
	}()

	// 8. Грейсфул-шатдаун по сигналу.
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	healthSrv.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	sweeper.Stop(shutdownCtx)
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

// watchDB отражает доступность БД в статусе gRPC health.
func watchDB(ctx context.Context, gormDB *gorm.DB, srv *health.Server, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		sqlDB, err := gormDB.DB()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = sqlDB.PingContext(pingCtx)
			cancel()
		}
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("db ping failed", zap.Error(err))
		}
		srv.SetServingStatus("", status)
		srv.SetServingStatus(serviceName, status)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
