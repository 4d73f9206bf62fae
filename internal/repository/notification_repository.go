package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rent_notifications/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository is the notification log store: the append-only
// rent_notifications table that doubles as the idempotency record.
//
// The table carries a partial unique index on idempotency_key restricted to
// status='sent'; RecordSent relies on it to make the sent-once guarantee
// atomic across concurrent runs.
type NotificationRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// HasSucceeded reports whether a sent row exists for the idempotency key.
func (r *NotificationRepository) HasSucceeded(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("idempotency key is empty")
	}

	q := r.sb.
		Select("1").
		From("rent_notifications").
		Where(sq.Eq{"idempotency_key": key, "status": models.StatusSent}).
		Limit(1)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build has-succeeded sql: %w", err)
	}

	var one int
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query has-succeeded: %w", err)
	}
	return true, nil
}

// RecordSent appends a sent row. The insert is conditional on the partial
// unique index: if another run already recorded a sent row for the same key,
// nothing is written and ErrDuplicateSent is returned.
func (r *NotificationRepository) RecordSent(ctx context.Context, rec *models.NotificationRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if rec.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is empty")
	}

	now := time.Now().UTC()

	q := r.sb.
		Insert("rent_notifications").
		Columns(
			"property_id",
			"channel",
			"recipient",
			"status",
			"message_sid",
			"idempotency_key",
			"notification_type",
			"message_body",
			"sent_at",
		).
		Values(
			rec.PropertyID,
			rec.Channel,
			rec.Recipient,
			models.StatusSent,
			rec.MessageSID,
			rec.IdempotencyKey,
			rec.NotificationType,
			rec.MessageBody,
			now,
		).
		Suffix(`ON CONFLICT (idempotency_key) WHERE status = 'sent' DO NOTHING`)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build record sent sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("insert sent notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateSent
	}

	rec.Status = models.StatusSent
	rec.SentAt = &now
	return nil
}

// RecordFailed appends a failed row. Failed rows never block a retry under
// the same key.
func (r *NotificationRepository) RecordFailed(ctx context.Context, rec *models.NotificationRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if rec.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is empty")
	}

	now := time.Now().UTC()

	q := r.sb.
		Insert("rent_notifications").
		Columns(
			"property_id",
			"channel",
			"recipient",
			"status",
			"error_code",
			"error_message",
			"idempotency_key",
			"notification_type",
			"message_body",
			"failed_at",
		).
		Values(
			rec.PropertyID,
			rec.Channel,
			rec.Recipient,
			models.StatusFailed,
			rec.ErrorCode,
			rec.ErrorMessage,
			rec.IdempotencyKey,
			rec.NotificationType,
			rec.MessageBody,
			now,
		)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build record failed sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert failed notification: %w", err)
	}

	rec.Status = models.StatusFailed
	rec.FailedAt = &now
	return nil
}

// CountByStatus returns row counts per status, used by the metrics collector.
func (r *NotificationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM rent_notifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query notification counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, 2)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan notification count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification counts: %w", err)
	}
	return counts, nil
}
