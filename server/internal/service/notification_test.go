package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	sent []notify.Email
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, email notify.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type recordingSMS struct {
	to   []string
	body []string
	err  error
}

func (s *recordingSMS) Send(ctx context.Context, to string, body string) error {
	if s.err != nil {
		return s.err
	}
	s.to = append(s.to, to)
	s.body = append(s.body, body)
	return nil
}

func notificationFixture(t *testing.T) (*recordingMailer, *recordingSMS, *notificationService, *dbmodel.Users, *dbmodel.CalendarEvents) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	mailer := &recordingMailer{}
	sms := &recordingSMS{}
	start := time.Date(2025, 3, 14, 14, 30, 0, 0, time.UTC)
	svc := NewNotificationService(mailer, sms, loc, testLogger).(*notificationService)
	svc.now = func() time.Time { return start.Add(-2 * time.Hour) }

	user := &dbmodel.Users{
		ID:          3,
		Email:       "someone@example.com",
		PhoneNumber: "+15551234567",
		SMSEnabled:  true,
		SMSConsent:  true,
	}
	event := &dbmodel.CalendarEvents{
		ID:        9,
		EventID:   "evt-9",
		Summary:   "Dentist",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
	return mailer, sms, svc, user, event
}

func TestSendEmailComposesReminder(t *testing.T) {
	mailer, _, svc, user, event := notificationFixture(t)

	require.True(t, svc.SendEmail(context.Background(), user, event))
	require.Len(t, mailer.sent, 1)

	email := mailer.sent[0]
	assert.Equal(t, "someone@example.com", email.To)
	assert.Equal(t, "Reminder: Dentist in 2 hours", email.Subject)
	assert.Contains(t, email.Body, "Dentist")
	assert.Contains(t, email.Body, "When: Friday, March 14, 2025 @ 10:30 AM EDT to 11:30 AM EDT")
	require.NotNil(t, email.Invite)
	assert.Equal(t, "evt-9", email.Invite.UID)
}

func TestSendSMSComposesReminder(t *testing.T) {
	_, sms, svc, user, event := notificationFixture(t)

	require.True(t, svc.SendSMS(context.Background(), user, event))
	assert.Equal(t, []string{"+15551234567"}, sms.to)
	assert.Equal(t, []string{"Reminder: Dentist starts at 10:30 AM on Mar 14, 2025"}, sms.body)
}

func TestSendSMSRequiresConsentAndNumber(t *testing.T) {
	_, sms, svc, user, event := notificationFixture(t)

	user.SMSConsent = false
	assert.False(t, svc.SendSMS(context.Background(), user, event))
	user.SMSConsent = true
	user.SMSEnabled = false
	assert.False(t, svc.SendSMS(context.Background(), user, event))
	user.SMSEnabled = true
	user.PhoneNumber = ""
	assert.False(t, svc.SendSMS(context.Background(), user, event))
	assert.Empty(t, sms.to)
}

func TestTransportFailuresReportFalse(t *testing.T) {
	mailer, sms, svc, user, event := notificationFixture(t)
	mailer.err = errors.New("smtp: 421 service not available")
	sms.err = errors.New("twilio: 21211 invalid number")

	assert.False(t, svc.SendEmail(context.Background(), user, event))
	assert.False(t, svc.SendSMS(context.Background(), user, event))

	unconfigured := NewNotificationService(nil, nil, nil, testLogger)
	assert.False(t, unconfigured.SendEmail(context.Background(), user, event))
	assert.False(t, unconfigured.SendSMS(context.Background(), user, event))
}

func TestHumanizeLead(t *testing.T) {
	cases := map[time.Duration]string{
		30 * time.Second:   "1 minute",
		-5 * time.Minute:   "1 minute",
		15 * time.Minute:   "15 minutes",
		60 * time.Minute:   "1 hour",
		3 * time.Hour:      "3 hours",
		90 * time.Minute:   "90 minutes",
		1440 * time.Minute: "24 hours",
	}
	for in, want := range cases {
		assert.Equal(t, want, humanizeLead(in), in.String())
	}
}
