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

	KafkaBrokers     string
	ConsumerGroup    string
	ConsumerAttempts int
	ConsumerBackoff  time.Duration

	DispatchInterval    time.Duration
	DispatchBatchSize   int
	DispatchSendTimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPUseTLS   bool

	SMSWebhookURL   string
	SMSWebhookToken string
	SMSRegion       string

	LinePushURL      string
	LineChannelToken string

	CORSOrigins string
}

func loadConfig() (Config, error) {
	port, err := config.Port("PORT", "8087")
	if err != nil {
		return Config{}, err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Service:             config.String("SERVICE_NAME", "scheduler-service"),
		Port:                port,
		DatabaseURL:         dbURL,
		DBMaxConns:          config.Int("DB_MAX_CONNS", 10),
		KafkaBrokers:        config.String("KAFKA_BROKERS", ""),
		ConsumerGroup:       config.String("KAFKA_GROUP_ID", "scheduler-service"),
		ConsumerAttempts:    config.Int("CONSUMER_MAX_ATTEMPTS", 3),
		ConsumerBackoff:     config.Duration("CONSUMER_RETRY_BACKOFF", 500*time.Millisecond),
		DispatchInterval:    config.Duration("DISPATCH_INTERVAL", 5*time.Second),
		DispatchBatchSize:   config.Int("DISPATCH_BATCH_SIZE", 50),
		DispatchSendTimeout: config.Duration("DISPATCH_SEND_TIMEOUT", 15*time.Second),
		SMTPHost:            config.String("SMTP_HOST", ""),
		SMTPPort:            config.Int("SMTP_PORT", 1025),
		SMTPUsername:        config.String("SMTP_USERNAME", ""),
		SMTPPassword:        config.String("SMTP_PASSWORD", ""),
		SMTPFrom:            config.String("SMTP_FROM", "no-reply@clinicbook.local"),
		SMTPUseTLS:          config.Bool("SMTP_USE_TLS", false),
		SMSWebhookURL:       config.String("SMS_WEBHOOK_URL", ""),
		SMSWebhookToken:     config.String("SMS_WEBHOOK_TOKEN", ""),
		SMSRegion:           config.String("SMS_DEFAULT_REGION", "JP"),
		LinePushURL:         config.String("LINE_PUSH_URL", ""),
		LineChannelToken:    config.String("LINE_CHANNEL_TOKEN", ""),
		CORSOrigins:         config.String("CORS_ALLOWED_ORIGINS", ""),
	}, nil
}
