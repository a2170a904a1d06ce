package serviceinterfaces

import (
	"context"

	"collegefeedback/internal/models"
)

// TicketObserver receives ticket events after the change has been committed.
// Errors are logged by the dispatcher and never reach the acting user.
type TicketObserver interface {
	Name() string
	Notify(ctx context.Context, event models.TicketEvent) error
}

// OutgoingEmail is one rendered-on-send message
type OutgoingEmail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]interface{}
}

// Mailer delivers OutgoingEmail values. A disabled mailer accepts and drops them.
type Mailer interface {
	Send(ctx context.Context, msg OutgoingEmail) error
	IsEnabled() bool
}
