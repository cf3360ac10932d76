package main

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

type Config struct {
	Service     string
	Port        string
	DatabaseURL string
	DBMaxConns  int

	KafkaBrokers string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheSize int
	CacheTTL  time.Duration

	LockTTL  time.Duration
	LockWait time.Duration

	OutboxPollEvery time.Duration
	OutboxBatchSize int

	RateLimit       int
	RateLimitWindow time.Duration
	CORSOrigins     string
}

func loadConfig() (Config, error) {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return Config{}, err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Service:         config.String("SERVICE_NAME", "booking-service"),
		Port:            port,
		DatabaseURL:     dbURL,
		DBMaxConns:      config.Int("DB_MAX_CONNS", 10),
		KafkaBrokers:    config.String("KAFKA_BROKERS", ""),
		RedisAddr:       config.String("REDIS_ADDR", ""),
		RedisPassword:   config.String("REDIS_PASSWORD", ""),
		RedisDB:         config.Int("REDIS_DB", 0),
		CacheSize:       config.Int("CATALOG_CACHE_SIZE", 256),
		CacheTTL:        config.Duration("CATALOG_CACHE_TTL", time.Minute),
		LockTTL:         config.Duration("BOOKING_LOCK_TTL", 10*time.Second),
		LockWait:        config.Duration("BOOKING_LOCK_WAIT", 3*time.Second),
		OutboxPollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		OutboxBatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		RateLimit:       config.Int("PUBLIC_RATE_LIMIT", 120),
		RateLimitWindow: config.Duration("PUBLIC_RATE_LIMIT_WINDOW", time.Minute),
		CORSOrigins:     config.String("CORS_ALLOWED_ORIGINS", ""),
	}, nil
}
