package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sshindanai/google-calendar-reminders/server/constant"
	"github.com/sshindanai/google-calendar-reminders/server/helper"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/notify"
	"go.uber.org/zap"
)

// NotificationService delivers one reminder over one channel. Transport errors are logged
// and reported as false.
type NotificationService interface {
	SendEmail(ctx context.Context, user *dbmodel.Users, event *dbmodel.CalendarEvents) bool
	SendSMS(ctx context.Context, user *dbmodel.Users, event *dbmodel.CalendarEvents) bool
}

type notificationService struct {
	mailer   notify.Mailer
	sms      notify.SMSSender
	location *time.Location
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewNotificationService accepts nil transports; the matching channel then always fails.
func NewNotificationService(mailer notify.Mailer, sms notify.SMSSender, location *time.Location, logger *zap.SugaredLogger) NotificationService {
	if location == nil {
		location = time.UTC
	}
	return &notificationService{
		mailer:   mailer,
		sms:      sms,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *notificationService) SendEmail(ctx context.Context, user *dbmodel.Users, event *dbmodel.CalendarEvents) bool {
	if n.mailer == nil {
		n.logger.Warnw("email transport not configured", "user_id", user.ID, "event_id", event.ID)
		return false
	}
	if user.Email == "" {
		n.logger.Warnw("user has no email address", "user_id", user.ID)
		return false
	}

	email := n.composeEmail(user, event)
	if err := n.mailer.Send(ctx, email); err != nil {
		n.logger.Errorw("error sending reminder email", "user_id", user.ID, "event_id", event.ID, "err", err.Error())
		return false
	}
	n.logger.Infow("sent reminder email", "user_id", user.ID, "event_id", event.ID)
	return true
}

func (n *notificationService) SendSMS(ctx context.Context, user *dbmodel.Users, event *dbmodel.CalendarEvents) bool {
	if user.PhoneNumber == "" || !user.SMSEnabled {
		return false
	}
	// consent may have been revoked after the reminder was queued
	if !user.SMSConsent {
		n.logger.Infow("skipping sms without consent", "user_id", user.ID, "event_id", event.ID)
		return false
	}
	if n.sms == nil {
		n.logger.Warnw("sms transport not configured", "user_id", user.ID, "event_id", event.ID)
		return false
	}

	if err := n.sms.Send(ctx, user.PhoneNumber, n.composeSMS(event)); err != nil {
		n.logger.Errorw("error sending reminder sms", "user_id", user.ID, "phone", helper.MaskPhone(user.PhoneNumber), "err", err.Error())
		return false
	}
	n.logger.Infow("sent reminder sms", "user_id", user.ID, "phone", helper.MaskPhone(user.PhoneNumber), "event_id", event.ID)
	return true
}

func (n *notificationService) composeEmail(user *dbmodel.Users, event *dbmodel.CalendarEvents) notify.Email {
	start := event.StartTime.In(n.location)
	end := event.EndTime.In(n.location)

	var body strings.Builder
	fmt.Fprintf(&body, "%s\n\n", event.Summary)
	fmt.Fprintf(&body, "When: %s @ %s", start.Format(constant.DATE_FORMAT), start.Format(constant.TIME_FORMAT))
	if end.After(start) {
		fmt.Fprintf(&body, " to %s", end.Format(constant.TIME_FORMAT))
	}
	body.WriteString("\n")

	return notify.Email{
		To:      user.Email,
		Subject: fmt.Sprintf("Reminder: %s in %s", event.Summary, humanizeLead(event.StartTime.Sub(n.now()))),
		Body:    body.String(),
		Invite: &notify.Invite{
			UID:     event.EventID,
			Summary: event.Summary,
			Start:   event.StartTime,
			End:     event.EndTime,
		},
	}
}

func (n *notificationService) composeSMS(event *dbmodel.CalendarEvents) string {
	return fmt.Sprintf("Reminder: %s starts at %s", event.Summary, event.StartTime.In(n.location).Format(constant.SMS_TIME_FORMAT))
}

// humanizeLead renders the time left before an event, rounded to whole minutes.
func humanizeLead(d time.Duration) string {
	minutes := int(math.Round(d.Minutes()))
	switch {
	case minutes <= 1:
		return "1 minute"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	case minutes == 60:
		return "1 hour"
	case minutes%60 == 0:
		return fmt.Sprintf("%d hours", minutes/60)
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}
