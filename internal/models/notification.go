package models

import "time"

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"

	StatusSent   = "sent"
	StatusFailed = "failed"

	// notification_type values stored on the audit row
	TypeRentDue        = "rent_due"
	TypeContractExpiry = "contract_expiry"
)

// Idempotency key kinds. The key is the sole dedup mechanism:
// channel-kind-YYYYMMDD-identity, where identity is the property id for
// tenant messages and the recipient phone/e-mail for consolidated ones.
const (
	KindTenantDue         = "tenant-due"
	KindOwnerConsolidated = "owner-consolidated"
	KindTenantExpiry      = "tenant-expiry"
	KindOwnerExpiry       = "owner-expiry"
)

// NotificationRecord is an append-only audit row in rent_notifications.
// A row is written on every send attempt, success or failure; rows are
// never updated or deleted.
type NotificationRecord struct {
	ID               int64      `db:"id"`
	PropertyID       *string    `db:"property_id"` // nil for consolidated messages
	Channel          string     `db:"channel"`
	Recipient        string     `db:"recipient"`
	Status           string     `db:"status"`
	MessageSID       *string    `db:"message_sid"` // set on success only
	ErrorCode        *int       `db:"error_code"`
	ErrorMessage     *string    `db:"error_message"`
	IdempotencyKey   string     `db:"idempotency_key"`
	NotificationType string     `db:"notification_type"`
	MessageBody      string     `db:"message_body"`
	SentAt           *time.Time `db:"sent_at"`
	FailedAt         *time.Time `db:"failed_at"`
	CreatedAt        time.Time  `db:"created_at"`
}
