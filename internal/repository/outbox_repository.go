package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"rent_notifications/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// OutboxRepository stores notification outcome events until the background
// sender flushes them to Kafka.
type OutboxRepository struct {
	db         *pgxpool.Pool
	sb         sq.StatementBuilderType
	maxRetries int
}

func NewOutboxRepository(db *pgxpool.Pool, maxRetries int) *OutboxRepository {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &OutboxRepository{
		db:         db,
		sb:         sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		maxRetries: maxRetries,
	}
}

// Enqueue stores an event as pending. Best effort from the dispatcher's
// point of view: a failure here never affects the send outcome.
func (r *OutboxRepository) Enqueue(ctx context.Context, ev *models.NotificationEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if ev.Topic == "" {
		return fmt.Errorf("topic is empty")
	}
	if len(ev.Payload) == 0 {
		return fmt.Errorf("payload is empty")
	}
	if !json.Valid(ev.Payload) {
		return fmt.Errorf("payload is not valid json")
	}

	q := r.sb.
		Insert("notification_events").
		Columns("topic", "payload", "status", "retry_count").
		Values(ev.Topic, ev.Payload, OutboxStatusPending, 0).
		Suffix("RETURNING id, event_id::text, created_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build event insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&id, &ev.EventID, &ev.CreatedAt); err != nil {
		return fmt.Errorf("insert notification event: %w", err)
	}

	ev.ID = int(id)
	ev.Status = OutboxStatusPending
	ev.RetryCount = 0
	ev.SentAt = nil
	ev.LastError = nil
	return nil
}

// GetPending returns up to limit pending events, oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*models.NotificationEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	q := r.sb.
		Select(
			"id",
			"event_id::text",
			"topic",
			"payload",
			"status",
			"retry_count",
			"created_at",
			"sent_at",
			"last_error",
		).
		From("notification_events").
		Where(sq.Eq{"status": OutboxStatusPending}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event select pending: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	res := make([]*models.NotificationEvent, 0, limit)

	for rows.Next() {
		var (
			ev        models.NotificationEvent
			id        int64
			payload   []byte
			sentAt    pgtype.Timestamptz
			lastError pgtype.Text
		)

		if err := rows.Scan(
			&id,
			&ev.EventID,
			&ev.Topic,
			&payload,
			&ev.Status,
			&ev.RetryCount,
			&ev.CreatedAt,
			&sentAt,
			&lastError,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		ev.ID = int(id)
		ev.Payload = payload

		if sentAt.Valid {
			t := sentAt.Time
			ev.SentAt = &t
		}
		if lastError.Valid {
			s := lastError.String
			ev.LastError = &s
		}

		res = append(res, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return res, nil
}

// MarkSent sets status sent and clears the retry state.
func (r *OutboxRepository) MarkSent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("eventID is empty")
	}

	q := r.sb.
		Update("notification_events").
		Set("status", OutboxStatusSent).
		Set("sent_at", sq.Expr("NOW()")).
		Set("retry_count", 0).
		Set("last_error", nil).
		Where(sq.Eq{"event_id": eventID})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build event mark sent: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed bumps the retry counter; past the limit the event goes failed.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID string, errorMsg string) error {
	if eventID == "" {
		return fmt.Errorf("eventID is empty")
	}
	if errorMsg == "" {
		errorMsg = "unknown error"
	}

	q := r.sb.
		Update("notification_events").
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("last_error", errorMsg).
		Set("status", sq.Expr(
			"CASE WHEN (retry_count + 1) >= ? THEN ? ELSE ? END",
			r.maxRetries, OutboxStatusFailed, OutboxStatusPending,
		)).
		Where(sq.Eq{"event_id": eventID})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build event mark failed: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cleanup deletes sent events older than retentionDays.
func (r *OutboxRepository) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	q := r.sb.
		Delete("notification_events").
		Where(sq.Eq{"status": OutboxStatusSent}).
		Where(sq.Expr("created_at < NOW() - (? * INTERVAL '1 day')", retentionDays))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build event cleanup: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup events: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CountByStatus returns event counts per status for the metrics collector.
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM notification_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query event counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, 3)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}
