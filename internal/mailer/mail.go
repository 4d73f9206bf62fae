package mailer

import "context"

// Email is one outbound message. Text and HTML are alternative bodies;
// either may be empty.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}
