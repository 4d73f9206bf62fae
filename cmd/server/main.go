package main

import (
	"context"
	"net/http"
	"time"

	"rent_notifications/internal/cache"
	"rent_notifications/internal/config"
	"rent_notifications/internal/handlers"
	"rent_notifications/internal/kafka"
	"rent_notifications/internal/mailer"
	"rent_notifications/internal/metrics"
	"rent_notifications/internal/repository"
	"rent_notifications/internal/service"
	"rent_notifications/internal/sms"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// ---------- config ----------
	cfg := config.Load()

	// ---------- logger ----------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ---------- db ----------
	pool, err := repository.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	// ---------- redis ----------
	rcache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rcache.Close()

	// ---------- repositories ----------
	dueRepo := repository.NewDueRepository(pool)
	logRepo := repository.NewNotificationRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool, cfg.OutboxMaxRetries)

	// ---------- kafka producer + outbox flusher ----------
	producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	defer producer.Close()

	outboxSender := service.NewOutboxSender(
		outboxRepo,
		producer,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxRetentionDays,
		cfg.OutboxMaxRetries,
		logger,
	)
	outboxSender.Start(ctx)

	// ---------- transports ----------
	sender := sms.NewTwilioSender(
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioMessagingServiceSID,
		cfg.AlphaSenderName,
		cfg.UseAlphanumericSender,
		logger,
	)
	mail := mailer.NewSendGridMailer(cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFromAddr)

	// ---------- services ----------
	guard := service.NewGuard(logRepo, rcache, cfg.CacheTTL, logger)
	events := service.NewOutboxSink(outboxRepo, cfg.KafkaTopic)
	dispatcher := service.NewDispatcher(dueRepo, guard, sender, events, logger)
	reminders := service.NewReminderService(dueRepo, guard, mail, cfg.OwnerEmail, logger)

	// ---------- metrics ----------
	metrics.Register()
	metrics.StartDBCollectors(ctx, pool, 10*time.Second, logger)
	cache.StartRedisSizeCollector(ctx, rcache.RawClient(), 30*time.Second, logger)

	// ---------- handlers ----------
	h := handlers.NewNotifyHandler(dispatcher, reminders, cfg.ExpiryThresholdDays, logger)
	auth := handlers.RequireCronSecret(cfg.CronSecret, logger)

	// ---------- router ----------
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	handlers.RegisterNotificationRoutes(r, h, auth)

	// ---------- start server ----------
	addr := ":" + cfg.HTTPPort
	logger.Info("server starting", zap.String("addr", addr))

	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
