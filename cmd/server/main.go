package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/availability"
	"github.com/iliyamo/trainer-booking/internal/booking"
	"github.com/iliyamo/trainer-booking/internal/calendar"
	"github.com/iliyamo/trainer-booking/internal/config"
	"github.com/iliyamo/trainer-booking/internal/database"
	"github.com/iliyamo/trainer-booking/internal/gateway"
	"github.com/iliyamo/trainer-booking/internal/handler"
	"github.com/iliyamo/trainer-booking/internal/lock"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/metrics"
	"github.com/iliyamo/trainer-booking/internal/middleware"
	"github.com/iliyamo/trainer-booking/internal/notify"
	"github.com/iliyamo/trainer-booking/internal/queue"
	"github.com/iliyamo/trainer-booking/internal/repository"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/router"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

const bookingLogPath = "logs/booking.log"

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load()
	logger.InitLogger(cfg.Env)
	log := logger.GetLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	schedule, err := config.LoadSchedule(cfg.SchedulePath, cfg.Timezone)
	if err != nil {
		log.Fatal("invalid schedule", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	rdb := config.NewRedisClient(config.LoadRedis())
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting off")
	} else {
		defer rdb.Close()
	}

	reservations := repository.NewReservationRepo(db)
	holds := repository.NewSlotHoldRepo(db)
	txLogs := repository.NewTransactionLogRepo(db)
	retryLogs := repository.NewRetryLogRepo(db)
	publisher := notify.NewAMQPPublisher(cfg.RabbitURL, notify.WithLogger(log))

	square := gateway.NewSquareClient(cfg.Square.BaseURL, cfg.Square.AccessToken, cfg.Square.APIVersion,
		cfg.Square.Timeout, gateway.WithLogger(log))
	executor := retry.NewExecutor(config.LoadRetryPolicies(),
		retry.WithLogger(log), retry.WithLogStore(retryLogs), retry.WithAlerter(publisher), retry.WithMetrics(m))
	coordinator := saga.NewCoordinator(saga.WithLogStore(txLogs), saga.WithLogger(log), saga.WithMetrics(m))

	svc := booking.New(booking.Deps{
		Reservations: reservations,
		Payments:     repository.NewPaymentRepo(db),
		Sales:        repository.NewSaleRepo(db),
		Holds:        holds,
		Gateway:      square,
		Calendar:     newCalendar(ctx, cfg.Calendar, log),
		Notifier:     publisher,
		Events:       publisher,
		Lock:         newLocker(cfg, rdb, m, log),
		LockTimeout:  cfg.LockTimeout,
		Coordinator:  coordinator,
		Retry:        executor,
		Engine:       availability.NewEngine(schedule, time.Now),
		Pricing:      booking.Pricing{LessonCents: cfg.LessonPrice, MultiDogSurcharge: cfg.MultiDogSurcharge},
		Currency:     cfg.Square.Currency,
		HoldTTL:      cfg.HoldTTL,
		Logger:       log,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	bookingHandler := handler.NewBookingHandler(svc, log)
	router.RegisterRoutes(e, &handler.HealthHandler{DB: db}, prometheus.DefaultGatherer)
	router.RegisterPublic(e, bookingHandler)
	router.RegisterCustomer(e, bookingHandler, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterAdmin(e, handler.NewAdminHandler(txLogs, retryLogs, svc, log), cfg.AdminKeyHash)

	go func() {
		err := queue.NewBookingLogConsumer(cfg.RabbitURL, bookingLogPath, log).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("booking log consumer stopped", zap.Error(err))
		}
	}()
	go sweepHolds(ctx, holds, log)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// newLocker picks the booking lock backend.  The Redis lock is shared
// across instances; the local one only serializes this process.
func newLocker(cfg config.Config, rdb *redis.Client, m *metrics.Metrics, log *zap.Logger) lock.Locker {
	if cfg.LockBackend == "redis" {
		if rdb != nil {
			return lock.NewRedis(rdb, cfg.LockName, lock.WithTTL(cfg.LockTTL),
				lock.WithRedisMetrics(m), lock.WithRedisLogger(log))
		}
		log.Warn("LOCK_BACKEND=redis but redis is unavailable; using in-process lock")
	}
	return lock.Named(cfg.LockName).WithMetrics(m)
}

func newCalendar(ctx context.Context, cfg config.CalendarConfig, log *zap.Logger) calendar.Service {
	if cfg.CredentialsFile == "" {
		log.Info("calendar sync disabled")
		return calendar.Disabled{}
	}
	ts, err := calendar.TokenSourceFromFile(ctx, cfg.CredentialsFile)
	if err != nil {
		log.Fatal("calendar credentials", zap.Error(err))
	}
	return calendar.NewGoogleClient(cfg.BaseURL, cfg.CalendarID, ts, cfg.Timeout, log)
}

// sweepHolds deletes expired slot holds once a minute.
func sweepHolds(ctx context.Context, holds *repository.SlotHoldRepo, log *zap.Logger) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := holds.DeleteExpired(ctx); err != nil {
				log.Warn("sweep slot holds", zap.Error(err))
			} else if n > 0 {
				log.Debug("expired slot holds removed", zap.Int64("count", n))
			}
		}
	}
}
