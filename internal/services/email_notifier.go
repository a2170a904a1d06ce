package services

import (
	"context"
	"fmt"
	"strings"

	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

var _ serviceinterfaces.TicketObserver = (*EmailNotifier)(nil)

// EmailNotifier mails ticket events to their recipients
type EmailNotifier struct {
	mailer  serviceinterfaces.Mailer
	users   serviceinterfaces.UserServiceInterface
	logger  *observability.Logger
	baseURL string
}

// NewEmailNotifier creates an EmailNotifier. baseURL is the frontend root used for ticket links.
func NewEmailNotifier(mailer serviceinterfaces.Mailer, users serviceinterfaces.UserServiceInterface, logger *observability.Logger, baseURL string) *EmailNotifier {
	if mailer == nil {
		panic("NewEmailNotifier: mailer is nil")
	}
	if users == nil {
		panic("NewEmailNotifier: users is nil")
	}
	return &EmailNotifier{
		mailer:  mailer,
		users:   users,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name identifies the observer
func (n *EmailNotifier) Name() string { return "email" }

var eventSubjects = map[models.NotificationType]string{
	models.NotificationFeedbackCreated:       "New feedback submitted",
	models.NotificationFeedbackStatusChanged: "Feedback status updated",
	models.NotificationFeedbackAssigned:      "Feedback assigned",
	models.NotificationFeedbackComment:       "New comment on feedback",
	models.NotificationFeedbackRated:         "Feedback rated",
}

// Notify sends one email per recipient. The first failure is returned after
// every recipient has been tried.
func (n *EmailNotifier) Notify(ctx context.Context, event models.TicketEvent) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "email_ticket_event",
		observability.AttributeFeedbackID(event.Feedback.ID),
		attribute.String("event.type", string(event.Type)),
	)
	defer observability.FinishSpan(span, &err)

	if !n.mailer.IsEnabled() {
		return nil
	}

	subject := fmt.Sprintf("%s: #%d %s", eventSubjects[event.Type], event.Feedback.ID, event.Feedback.Title)
	var firstErr error
	for _, id := range event.Recipients {
		u, err := n.users.GetUserByID(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = contextutils.WrapErrorf(err, "load recipient %d", id)
			}
			continue
		}
		if !u.IsActive {
			continue
		}
		data := map[string]interface{}{
			"Subject":     subject,
			"FeedbackID":  event.Feedback.ID,
			"Name":        displayName(u),
			"Message":     event.Message,
			"Status":      string(event.Feedback.Status),
			"Priority":    string(event.Feedback.Priority),
			"FeedbackURL": fmt.Sprintf("%s/feedback/%d", n.baseURL, event.Feedback.ID),
		}
		msg := serviceinterfaces.OutgoingEmail{To: u.Email, Subject: subject, Template: TemplateFeedbackEvent, Data: data}
		if err := n.mailer.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}
