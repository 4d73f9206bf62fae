package models

import (
	"encoding/json"
	"time"
)

// NotificationEvent is a transactional-outbox row carrying a notification
// outcome to Kafka for the reporting pipeline. The audit table stays the
// source of truth; this feed is best effort.
type NotificationEvent struct {
	ID      int             `db:"id"`
	EventID string          `db:"event_id"` // UUID
	Topic   string          `db:"topic"`
	Payload json.RawMessage `db:"payload"` // JSONB

	Status     string     `db:"status"` // pending, sent, failed
	RetryCount int        `db:"retry_count"`
	CreatedAt  time.Time  `db:"created_at"`
	SentAt     *time.Time `db:"sent_at"`
	LastError  *string    `db:"last_error"`
}

// OutcomePayload is the JSON body of a NotificationEvent.
type OutcomePayload struct {
	RunID          string    `json:"run_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Channel        string    `json:"channel"`
	Type           string    `json:"notification_type"`
	Recipient      string    `json:"recipient"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	At             time.Time `json:"at"`
}
