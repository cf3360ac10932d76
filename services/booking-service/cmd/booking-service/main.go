package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/redisx"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb, err := redisx.Open(ctx, redisx.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb, lock.RedisConfig{TTL: cfg.LockTTL, Wait: cfg.LockWait})
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "booking:rl")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR not set; booking locks are process-local")
	}

	repo := storage.NewRepository(pool)
	catalog := storage.NewCachedCatalog(repo, cfg.CacheSize, cfg.CacheTTL)
	store := storage.NewAppointmentStore(pool, repo)
	engine := availability.NewEngine(catalog, nil)
	controller := lifecycle.NewController(catalog, store, locker, logger, lifecycle.Options{})

	if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(outbox.NewRepository(pool), writer, logger, outbox.PublisherConfig{
			PollEvery: cfg.OutboxPollEvery,
			BatchSize: cfg.OutboxBatchSize,
		})
		go publisher.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true})
	} else {
		logger.Warn("KAFKA_BROKERS not set; lifecycle events stay in the outbox")
	}

	booking := handlers.NewBookingHandler(engine, controller, repo, logger)
	clinics := handlers.NewClinicHandler(repo, catalog, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", booking.Slots)
	mux.HandleFunc("/api/v1/public/reschedule-slots", booking.RescheduleSlots)
	mux.HandleFunc("/api/v1/public/book", booking.Book)
	mux.HandleFunc("/api/v1/appointments", booking.List)
	mux.HandleFunc("/api/v1/appointments/cancel", booking.Cancel())
	mux.HandleFunc("/api/v1/appointments/confirm", booking.Confirm())
	mux.HandleFunc("/api/v1/appointments/complete", booking.Complete())
	mux.HandleFunc("/api/v1/appointments/no-show", booking.NoShow())
	mux.HandleFunc("/api/v1/appointments/reschedule", booking.Reschedule)
	mux.HandleFunc("/api/v1/blocks", booking.Block)
	mux.HandleFunc("/api/v1/clinics/overrides", clinics.PutOverride)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSFromList(cfg.CORSOrigins)),
		httpx.Only("/api/v1/public/", httpx.RateLimit(limiter, logger, true)),
		httpx.WithBodyLimit(1<<20),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	_ = runtime.Serve(ctx, srv, logger, 10*time.Second)
}
