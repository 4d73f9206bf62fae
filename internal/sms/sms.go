package sms

import (
	"context"
	"fmt"
)

// Message is a single outbound text message.
type Message struct {
	To   string // E.164
	Body string
}

// Result is what the transport reports back on success.
type Result struct {
	SID    string
	Status string
}

// Sender is the message transport consumed by the dispatcher.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// SendError carries the transport's numeric error code so the audit row can
// record it.
type SendError struct {
	Code    int
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sms send failed (code %d): %s", e.Code, e.Message)
}
