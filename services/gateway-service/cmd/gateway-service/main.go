package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/redisx"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
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

	verifierCfg := auth.VerifierConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: 30 * time.Second}
	if cfg.JWKSURL != "" {
		verifierCfg.JWKS = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSTTL)
	}
	verifier, err := auth.NewVerifier(verifierCfg)
	if err != nil {
		logger.Error("token verification not configured; set JWT_SECRET or JWKS_URL", "err", err)
		panic(err)
	}

	booking, err := newProxy(cfg.BookingURL, logger)
	if err != nil {
		panic(err)
	}
	scheduler, err := newProxy(cfg.SchedulerURL, logger)
	if err != nil {
		panic(err)
	}

	rdb, err := redisx.Open(ctx, redisx.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	var readyChecks []runtime.ReadyCheck
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "gateway:rl")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb), Optional: true})
		logger.Info("rate limiting enabled (redis)", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow)
	} else {
		logger.Info("rate limiting enabled (in-memory)", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	registerRoutes(mux, upstreams{booking: booking, scheduler: scheduler}, verifier)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSFromList(cfg.CORSOrigins)),
		httpx.Only("/api/v1/public/", httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen)),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "gateway"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	_ = runtime.Serve(ctx, srv, logger, 10*time.Second)
}
