package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rent_notifications/internal/kafka"
	"rent_notifications/internal/metrics"
	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"

	"go.uber.org/zap"
)

// OutboxSender flushes pending notification events to Kafka in the
// background. Events are keyed by idempotency key so the reporting consumer
// sees all attempts for one logical notification on one partition.
type OutboxSender struct {
	repo          *repository.OutboxRepository
	producer      *kafka.Producer
	pollInterval  time.Duration
	batchSize     int
	retentionDays int
	maxRetries    int
	logger        *zap.Logger

	cleanupEvery time.Duration
}

func NewOutboxSender(
	repo *repository.OutboxRepository,
	producer *kafka.Producer,
	pollInterval time.Duration,
	batchSize int,
	retentionDays int,
	maxRetries int,
	logger *zap.Logger,
) *OutboxSender {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if retentionDays < 0 {
		retentionDays = 0
	}

	return &OutboxSender{
		repo:          repo,
		producer:      producer,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		retentionDays: retentionDays,
		maxRetries:    maxRetries,
		logger:        logger,
		// cleanup runs much less often than the flush loop
		cleanupEvery: 1 * time.Hour,
	}
}

// Start launches the background flush loop.
func (s *OutboxSender) Start(ctx context.Context) {
	go func() {
		s.logger.Info("outbox sender started")
		defer s.logger.Info("outbox sender stopped")

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		cleanupTicker := time.NewTicker(s.cleanupEvery)
		defer cleanupTicker.Stop()

		s.flushOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.flushOnce(ctx)
			case <-cleanupTicker.C:
				s.cleanupOnce(ctx)
			}
		}
	}()
}

func (s *OutboxSender) flushOnce(ctx context.Context) {
	events, err := s.repo.GetPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("outbox get pending failed", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	for _, ev := range events {
		if err := s.sendOne(ev); err != nil {
			if err2 := s.repo.MarkFailed(ctx, ev.EventID, err.Error()); err2 != nil {
				s.logger.Error("outbox mark failed error", zap.Error(err2))
			}
			if ev.RetryCount+1 >= s.maxRetries {
				metrics.IncOutboxFailed()
			}
			continue
		}
		if err := s.repo.MarkSent(ctx, ev.EventID); err != nil {
			s.logger.Error("outbox mark sent failed", zap.Error(err))
		}
	}
}

func (s *OutboxSender) sendOne(ev *models.NotificationEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if ev.Topic == "" {
		return fmt.Errorf("event topic is empty")
	}
	if len(ev.Payload) == 0 {
		return fmt.Errorf("event payload is empty")
	}

	metrics.ObserveOutboxLagSeconds(time.Since(ev.CreatedAt).Seconds())

	start := time.Now()

	key, err := extractIdempotencyKey(ev.Payload)
	if err != nil {
		metrics.IncKafkaError("producer", "prepare")
		metrics.ObserveOutboxProcessing(time.Since(start))
		return fmt.Errorf("extract idempotency_key: %w", err)
	}

	if err := s.producer.SendRaw(ev.Topic, key, ev.Payload); err != nil {
		metrics.IncKafkaError("producer", "send")
		metrics.IncOutboxRetry()
		metrics.ObserveOutboxProcessing(time.Since(start))
		return fmt.Errorf("kafka send failed: %w", err)
	}

	metrics.IncKafkaSent()
	metrics.IncOutboxSent()
	metrics.ObserveOutboxProcessing(time.Since(start))

	return nil
}

func (s *OutboxSender) cleanupOnce(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}
	n, err := s.repo.Cleanup(ctx, s.retentionDays)
	if err != nil {
		s.logger.Error("outbox cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("outbox cleanup", zap.Int("deleted", n))
	}
}

func extractIdempotencyKey(payload []byte) (string, error) {
	var x struct {
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.Unmarshal(payload, &x); err != nil {
		return "", err
	}
	if x.IdempotencyKey == "" {
		return "", fmt.Errorf("idempotency_key is empty in payload")
	}
	return x.IdempotencyKey, nil
}
