package services

import (
	"context"
	"errors"
	"testing"

	"collegefeedback/internal/config"
	"collegefeedback/internal/models"
	"collegefeedback/internal/serviceinterfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.EmailConfig
		expected bool
	}{
		{"relay configured", config.EmailConfig{Enabled: true, SMTP: config.SMTPConfig{Host: "smtp.college.edu", Port: 587}}, true},
		{"disabled", config.EmailConfig{Enabled: false, SMTP: config.SMTPConfig{Host: "smtp.college.edu"}}, false},
		{"no host", config.EmailConfig{Enabled: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewSMTPMailer(tt.cfg, testLogger()).IsEnabled())
		})
	}
}

func TestSMTPMailer_DisabledDropsMessage(t *testing.T) {
	m := NewSMTPMailer(config.EmailConfig{}, testLogger())
	err := m.Send(context.Background(), serviceinterfaces.OutgoingEmail{To: "a@college.edu", Template: "missing"})
	assert.NoError(t, err)
}

func TestNewMailer(t *testing.T) {
	assert.IsType(t, &RecordingMailer{}, NewMailer(&config.Config{IsTest: true}, testLogger()))
	assert.IsType(t, &SMTPMailer{}, NewMailer(&config.Config{}, testLogger()))
}

func TestRenderEmail(t *testing.T) {
	content, err := renderEmail(TemplateFeedbackEvent, map[string]interface{}{
		"Subject":     "Feedback assigned: #4 Wifi",
		"Name":        "Ada",
		"Message":     "<script>alert(1)</script>",
		"Status":      "in_progress",
		"Priority":    "high",
		"FeedbackID":  4,
		"FeedbackURL": "https://feedback.college.edu/feedback/4",
	})
	require.NoError(t, err)
	assert.Contains(t, content, "Hello Ada,")
	assert.Contains(t, content, "Open feedback #4")
	assert.Contains(t, content, "in_progress")
	assert.NotContains(t, content, "<script>")

	_, err = renderEmail("daily_reminder", nil)
	assert.ErrorContains(t, err, "unknown email template")
}

func TestRecordingMailer_RejectsUnknownTemplate(t *testing.T) {
	m := NewRecordingMailer(testLogger())
	err := m.Send(context.Background(), serviceinterfaces.OutgoingEmail{To: "a@college.edu", Template: "nope"})
	require.Error(t, err)
	assert.Empty(t, m.Sent())
}

type failingMailer struct{ calls int }

func (m *failingMailer) Send(context.Context, serviceinterfaces.OutgoingEmail) error {
	m.calls++
	return errors.New("smtp down")
}
func (m *failingMailer) IsEnabled() bool { return true }

func TestEmailNotifier_SendsToActiveRecipients(t *testing.T) {
	mailer := NewRecordingMailer(testLogger())
	users := &stubUsers{users: map[int]*models.User{
		1:  {ID: 1, Email: "student@college.edu", FirstName: "Ada", LastName: "Lovelace", IsActive: true},
		10: {ID: 10, Email: "gone@college.edu", IsActive: false},
	}}
	notifier := NewEmailNotifier(mailer, users, testLogger(), "https://feedback.college.edu/")

	err := notifier.Notify(context.Background(), models.TicketEvent{
		Type:       models.NotificationFeedbackStatusChanged,
		Feedback:   sampleTicket(4, models.StatusResolved),
		Recipients: []int{1, 10},
		Message:    "resolved",
	})
	require.NoError(t, err)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "student@college.edu", sent[0].To)
	assert.Equal(t, "Feedback status updated: #4 Projector broken in room 101", sent[0].Subject)
	assert.Equal(t, "Ada Lovelace", sent[0].Data["Name"])
	assert.Equal(t, "https://feedback.college.edu/feedback/4", sent[0].Data["FeedbackURL"])
	assert.Equal(t, []string{"FeedbackID", "FeedbackURL", "Message", "Name", "Priority", "Status", "Subject"}, sortedKeys(sent[0].Data))
}

func TestEmailNotifier_TriesEveryRecipient(t *testing.T) {
	mailer := &failingMailer{}
	users := &stubUsers{users: map[int]*models.User{
		1: {ID: 1, Email: "a@college.edu", IsActive: true},
		2: {ID: 2, Email: "b@college.edu", IsActive: true},
	}}
	notifier := NewEmailNotifier(mailer, users, testLogger(), "")

	err := notifier.Notify(context.Background(), models.TicketEvent{
		Type:       models.NotificationFeedbackComment,
		Feedback:   sampleTicket(4, models.StatusInProgress),
		Recipients: []int{1, 2, 3},
	})
	require.Error(t, err)
	assert.Equal(t, 2, mailer.calls)
}
