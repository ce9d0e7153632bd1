package mail

import "context"

// Message is a composed email ready for delivery.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	IsHTML  bool
}

// Sender defines an interface for delivering mail.
// This keeps the engine independent of the SMTP client in use.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
