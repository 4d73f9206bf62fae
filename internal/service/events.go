package service

import (
	"context"
	"encoding/json"
	"fmt"

	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"
)

// OutboxSink stores outcome payloads in the notification_events outbox; the
// background sender flushes them to Kafka.
type OutboxSink struct {
	repo  *repository.OutboxRepository
	topic string
}

func NewOutboxSink(repo *repository.OutboxRepository, topic string) *OutboxSink {
	return &OutboxSink{repo: repo, topic: topic}
}

func (s *OutboxSink) Publish(ctx context.Context, p models.OutcomePayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal outcome payload: %w", err)
	}
	return s.repo.Enqueue(ctx, &models.NotificationEvent{
		Topic:   s.topic,
		Payload: b,
	})
}
