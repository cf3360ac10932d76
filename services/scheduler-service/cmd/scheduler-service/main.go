package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/events"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/jobs"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/sender"
	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/storage"
)

// errBadEvent marks payloads that can never be handled.
var errBadEvent = errors.New("bad event")

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

	repo := storage.NewRepository(pool)
	scheduler := notify.New(repo, logger, notify.Options{})

	worker := jobs.NewWorker(jobs.NewRepository(pool), repo, buildSenders(cfg, logger), logger, jobs.WorkerConfig{
		Interval:    cfg.DispatchInterval,
		BatchSize:   cfg.DispatchBatchSize,
		SendTimeout: cfg.DispatchSendTimeout,
	})
	go worker.Run(ctx)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		reader := consumer.NewReader(consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ConsumerGroup,
			Topics:  events.AppointmentTopics,
		})
		c := consumer.New(reader, inbox.NewRepository(pool), logger, eventHandler(scheduler), consumer.Options{
			MaxAttempts:  cfg.ConsumerAttempts,
			RetryBackoff: cfg.ConsumerBackoff,
			Permanent: func(err error) bool {
				return errors.Is(err, errBadEvent) || errors.Is(err, model.ErrInvalidInput)
			},
		})
		go c.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true})
	} else {
		logger.Warn("KAFKA_BROKERS not set; lifecycle events are not consumed")
	}

	notifications := handlers.NewNotificationHandler(repo, repo, scheduler, logger)
	clinicConfig := handlers.NewConfigHandler(repo, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/notification-preferences", notifications.Preferences)
	mux.HandleFunc("/api/v1/notifications", notifications.List)
	mux.HandleFunc("/api/v1/patients/link-established", notifications.LinkEstablished)
	mux.HandleFunc("/api/v1/notification-templates", clinicConfig.PutTemplate)
	mux.HandleFunc("/api/v1/notification-settings", clinicConfig.PutSettings)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSFromList(cfg.CORSOrigins)),
		httpx.WithBodyLimit(1<<20),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "scheduler"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	_ = runtime.Serve(ctx, srv, logger, 10*time.Second)
}

func eventHandler(s *notify.Scheduler) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, err := events.DecodeAppointment(msg.Value)
		if err != nil {
			return errors.Join(errBadEvent, err)
		}
		_, err = s.HandleEvent(ctx, msg.Topic, evt)
		return err
	}
}

// buildSenders wires one sender per configured channel. Unconfigured channels
// are left out so their rows fail instead of being reported as sent.
func buildSenders(cfg Config, logger *slog.Logger) map[model.Channel]sender.Sender {
	senders := map[model.Channel]sender.Sender{}
	if cfg.SMTPHost != "" {
		senders[model.ChannelEmail] = sender.NewEmailSender(sender.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			UseTLS:   cfg.SMTPUseTLS,
			Timeout:  cfg.DispatchSendTimeout,
		})
	}
	if cfg.SMSWebhookURL != "" {
		senders[model.ChannelSMS] = sender.NewSMSSender(cfg.SMSWebhookURL, cfg.SMSWebhookToken, cfg.SMSRegion)
	}
	if cfg.LineChannelToken != "" {
		senders[model.ChannelLine] = sender.NewLineSender(cfg.LinePushURL, cfg.LineChannelToken)
	}
	for _, ch := range []model.Channel{model.ChannelEmail, model.ChannelSMS, model.ChannelLine} {
		if s, ok := senders[ch]; ok {
			logger.Info("notification channel ready", "channel", ch, "provider", s.ProviderID())
		} else {
			logger.Warn("notification channel has no provider, its notifications will fail", "channel", ch)
		}
	}
	return senders
}
