package services

import (
	"context"
	"sync"
	"time"

	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher fans committed ticket events out to observers. Delivery runs in
// the background; observer failures are logged and never returned.
type Dispatcher struct {
	observers []serviceinterfaces.TicketObserver
	logger    *observability.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with the given observers
func NewDispatcher(logger *observability.Logger, observers ...serviceinterfaces.TicketObserver) *Dispatcher {
	if logger == nil {
		panic("NewDispatcher: logger is nil")
	}
	return &Dispatcher{
		observers: observers,
		logger:    logger,
		timeout:   config.NotificationSendTimeout,
	}
}

// Register adds an observer. It must be called before events are dispatched.
func (d *Dispatcher) Register(o serviceinterfaces.TicketObserver) {
	d.observers = append(d.observers, o)
}

// Dispatch delivers the event asynchronously. The request context is only used
// to carry the trace link; delivery is not cancelled when the request ends.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.TicketEvent) {
	if d == nil || len(d.observers) == 0 || len(event.Recipients) == 0 {
		return
	}
	link := trace.LinkFromContext(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		bg, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		bg, span := observability.TraceNotificationFunction(bg, "dispatch_ticket_event",
			observability.AttributeFeedbackID(event.Feedback.ID),
			attribute.String("event.type", string(event.Type)),
			attribute.Int("event.recipients", len(event.Recipients)),
		)
		span.AddLink(link)
		defer span.End()

		d.deliver(bg, event)
	}()
}

// DispatchSync delivers the event on the caller's goroutine
func (d *Dispatcher) DispatchSync(ctx context.Context, event models.TicketEvent) {
	if d == nil || len(event.Recipients) == 0 {
		return
	}
	d.deliver(ctx, event)
}

func (d *Dispatcher) deliver(ctx context.Context, event models.TicketEvent) {
	for _, o := range d.observers {
		err := d.safeNotify(ctx, o, event)
		observability.RecordNotification(ctx, o.Name(), string(event.Type), err == nil)
		if err != nil {
			d.logger.Error(ctx, "Ticket observer failed", err, map[string]interface{}{
				"observer":    o.Name(),
				"event_type":  string(event.Type),
				"feedback_id": event.Feedback.ID,
			})
		}
	}
}

func (d *Dispatcher) safeNotify(ctx context.Context, o serviceinterfaces.TicketObserver, event models.TicketEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = contextutils.ErrorWithContextf("observer %s panicked: %v", o.Name(), r)
		}
	}()
	return o.Notify(ctx, event)
}

// Wait blocks until in-flight deliveries finish, or ctx ends
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
