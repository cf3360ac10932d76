package main

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

type Config struct {
	Service string
	Port    string

	BookingURL   string
	SchedulerURL string

	JWTSecret   string
	JWKSURL     string
	JWKSTTL     time.Duration
	JWTIssuer   string
	JWTAudience string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit         int
	RateLimitWindow   time.Duration
	RateLimitFailOpen bool

	CORSOrigins    string
	BodyLimit      int64
	RequestTimeout time.Duration
}

func loadConfig() (Config, error) {
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Service:           config.String("SERVICE_NAME", "gateway-service"),
		Port:              port,
		BookingURL:        config.String("BOOKING_URL", "http://booking-service:8083"),
		SchedulerURL:      config.String("SCHEDULER_URL", "http://scheduler-service:8087"),
		JWTSecret:         config.String("JWT_SECRET", ""),
		JWKSURL:           config.String("JWKS_URL", ""),
		JWKSTTL:           config.Duration("JWKS_CACHE_TTL", 5*time.Minute),
		JWTIssuer:         config.String("JWT_ISSUER", ""),
		JWTAudience:       config.String("JWT_AUDIENCE", ""),
		RedisAddr:         config.String("REDIS_ADDR", ""),
		RedisPassword:     config.String("REDIS_PASSWORD", ""),
		RedisDB:           config.Int("REDIS_DB", 0),
		RateLimit:         config.Int("RATE_LIMIT", 60),
		RateLimitWindow:   config.Duration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitFailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		CORSOrigins:       config.String("CORS_ALLOWED_ORIGINS", ""),
		BodyLimit:         int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		RequestTimeout:    config.Duration("REQUEST_TIMEOUT", 10*time.Second),
	}, nil
}
