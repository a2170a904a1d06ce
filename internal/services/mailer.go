package services

import (
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"sync"

	"collegefeedback/internal/config"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/mail.v2"
)

// TemplateFeedbackEvent renders a ticket event notification
const TemplateFeedbackEvent = "feedback_event"

var (
	_ serviceinterfaces.Mailer = (*SMTPMailer)(nil)
	_ serviceinterfaces.Mailer = (*RecordingMailer)(nil)
)

// NewMailer picks the mailer for cfg. Test runs record messages in memory.
func NewMailer(cfg *config.Config, logger *observability.Logger) serviceinterfaces.Mailer {
	if cfg.IsTest {
		logger.Info(context.Background(), "Recording outgoing email in memory", map[string]interface{}{"test_mode": true})
		return NewRecordingMailer(logger)
	}
	return NewSMTPMailer(cfg.Email, logger)
}

// SMTPMailer sends mail through the configured SMTP relay
type SMTPMailer struct {
	from   string
	dialer *mail.Dialer
	logger *observability.Logger
}

// NewSMTPMailer returns a mailer that is disabled unless cfg enables it and names a host
func NewSMTPMailer(cfg config.EmailConfig, logger *observability.Logger) *SMTPMailer {
	m := &SMTPMailer{
		from:   fmt.Sprintf("%s <%s>", cfg.SMTP.FromName, cfg.SMTP.FromAddress),
		logger: logger,
	}
	if cfg.Enabled && cfg.SMTP.Host != "" {
		m.dialer = mail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	}
	return m
}

// IsEnabled reports whether a relay is configured
func (m *SMTPMailer) IsEnabled() bool { return m.dialer != nil }

// Send renders msg.Template and delivers it
func (m *SMTPMailer) Send(ctx context.Context, msg serviceinterfaces.OutgoingEmail) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "smtp_send",
		attribute.String("email.template", msg.Template),
	)
	defer observability.FinishSpan(span, &err)

	if !m.IsEnabled() {
		m.logger.Debug(ctx, "Email disabled, dropping message", map[string]interface{}{"template": msg.Template})
		return nil
	}

	body, err := renderEmail(msg.Template, msg.Data)
	if err != nil {
		return err
	}

	out := mail.NewMessage()
	out.SetHeader("From", m.from)
	out.SetHeader("To", msg.To)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/html", body)

	if err = m.dialer.DialAndSend(out); err != nil {
		m.logger.Error(ctx, "SMTP delivery failed", err, map[string]interface{}{"template": msg.Template})
		return contextutils.WrapError(err, "failed to send email")
	}
	m.logger.Debug(ctx, "Email delivered", map[string]interface{}{"template": msg.Template})
	return nil
}

// RecordingMailer keeps every message in memory instead of sending it
type RecordingMailer struct {
	logger *observability.Logger

	mu   sync.Mutex
	sent []serviceinterfaces.OutgoingEmail
}

// NewRecordingMailer creates an empty RecordingMailer
func NewRecordingMailer(logger *observability.Logger) *RecordingMailer {
	return &RecordingMailer{logger: logger}
}

// IsEnabled is always true so callers exercise the send path
func (r *RecordingMailer) IsEnabled() bool { return true }

// Send renders the message to catch template errors, then stores it
func (r *RecordingMailer) Send(ctx context.Context, msg serviceinterfaces.OutgoingEmail) error {
	if _, err := renderEmail(msg.Template, msg.Data); err != nil {
		return err
	}
	r.logger.Info(ctx, "Recorded email", map[string]interface{}{
		"to":        msg.To,
		"template":  msg.Template,
		"data_keys": sortedKeys(msg.Data),
	})

	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages
func (r *RecordingMailer) Sent() []serviceinterfaces.OutgoingEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]serviceinterfaces.OutgoingEmail(nil), r.sent...)
}

func sortedKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const feedbackEventTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Subject}}</title>
</head>
<body style="font-family: Arial, sans-serif; color: #1f2937; max-width: 600px; margin: 0 auto;">
<h2 style="background: #1E3A8A; color: #fff; padding: 16px;">{{.Subject}}</h2>
<p>Hello {{.Name}},</p>
<p>{{.Message}}</p>
<table>
<tr><td><strong>Status</strong></td><td>{{.Status}}</td></tr>
<tr><td><strong>Priority</strong></td><td>{{.Priority}}</td></tr>
</table>
<p><a href="{{.FeedbackURL}}">Open feedback #{{.FeedbackID}}</a></p>
<p style="font-size: 12px; color: #6b7280;">You receive these emails because you submitted or manage this feedback.</p>
</body>
</html>`

var emailTemplates = map[string]*template.Template{
	TemplateFeedbackEvent: template.Must(template.New(TemplateFeedbackEvent).Parse(feedbackEventTemplate)),
}

func renderEmail(name string, data map[string]interface{}) (string, error) {
	tmpl, ok := emailTemplates[name]
	if !ok {
		return "", contextutils.ErrorWithContextf("unknown email template %q", name)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapErrorf(err, "render email template %q", name)
	}
	return buf.String(), nil
}
