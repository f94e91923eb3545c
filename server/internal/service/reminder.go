package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
)

type ReminderService interface {
	// DueReminders returns unsent reminders whose event starts within the scan window after now
	// and whose fire time is at or before now.
	DueReminders(ctx context.Context, now time.Time) ([]dbmodel.EventReminders, error)
	// Dispatch sends the reminder on each of its channels and then marks it sent, whatever
	// the outcome of the sends.
	Dispatch(ctx context.Context, reminderID uint) error
}

type reminderService struct {
	reminderRepo repository.EventReminderRepository
	eventRepo    repository.CalendarEventRepository
	userRepo     repository.UserRepository
	notifier     NotificationService
	logger       *zap.SugaredLogger
	now          func() time.Time
}

func NewReminderService(reminderRepo repository.EventReminderRepository, eventRepo repository.CalendarEventRepository,
	userRepo repository.UserRepository, notifier NotificationService, logger *zap.SugaredLogger) ReminderService {
	return &reminderService{
		reminderRepo: reminderRepo,
		eventRepo:    eventRepo,
		userRepo:     userRepo,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

func (r *reminderService) DueReminders(ctx context.Context, now time.Time) ([]dbmodel.EventReminders, error) {
	candidates, err := r.reminderRepo.PendingInWindow(now, now.Add(constant.REMINDER_SCAN_WINDOW))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load pending reminders")
	}

	due := make([]dbmodel.EventReminders, 0, len(candidates))
	for _, reminder := range candidates {
		if reminder.Sent || reminder.CalendarEvent == nil {
			continue
		}
		if claimHeld(&reminder, now) {
			continue
		}
		// fire time depends on the per-row offset
		if now.Before(reminder.FireTime(reminder.CalendarEvent.StartTime)) {
			continue
		}
		due = append(due, reminder)
	}
	return due, nil
}

func (r *reminderService) Dispatch(ctx context.Context, reminderID uint) error {
	reminder, err := r.reminderRepo.FindByID(reminderID)
	if err != nil {
		return errors.Wrap(err, "failed to find reminder")
	}
	if reminder == nil {
		return errors.Wrapf(models.ErrNotFound, "reminder %d", reminderID)
	}
	if reminder.Sent {
		// redelivered job
		return nil
	}
	now := r.now()
	claimed, err := r.reminderRepo.Claim(reminder.ID, now, now.Add(-constant.REMINDER_CLAIM_LEASE))
	if err != nil {
		return errors.Wrap(err, "failed to claim reminder")
	}
	if !claimed {
		r.logger.Debugw("reminder already being dispatched", "reminder_id", reminder.ID)
		return nil
	}

	event := reminder.CalendarEvent
	if event == nil {
		if event, err = r.eventRepo.FindByID(reminder.CalendarEventID); err != nil {
			return errors.Wrap(err, "failed to find event")
		}
		if event == nil {
			return errors.Wrapf(models.ErrNotFound, "event %d", reminder.CalendarEventID)
		}
	}
	user, err := r.userRepo.FindByID(event.UserID)
	if err != nil {
		return errors.Wrap(err, "failed to find user")
	}
	if user == nil {
		return errors.Wrapf(models.ErrNotFound, "user %d", event.UserID)
	}

	channel := reminder.NotificationType
	if channel == constant.NOTIFY_EMAIL || channel == constant.NOTIFY_BOTH {
		if !r.notifier.SendEmail(ctx, user, event) {
			r.logger.Warnw("reminder email not delivered", "reminder_id", reminder.ID, "user_id", user.ID)
		}
	}
	if channel == constant.NOTIFY_SMS || channel == constant.NOTIFY_BOTH {
		switch {
		case user.PhoneNumber == "":
			r.logger.Infow("skipping sms, no phone number", "reminder_id", reminder.ID, "user_id", user.ID)
		case !user.SMSEnabled:
			r.logger.Infow("skipping sms, sms disabled", "reminder_id", reminder.ID, "user_id", user.ID)
		default:
			if !r.notifier.SendSMS(ctx, user, event) {
				r.logger.Warnw("reminder sms not delivered", "reminder_id", reminder.ID, "user_id", user.ID)
			}
		}
	}

	// marked sent even when a channel failed
	if err := r.reminderRepo.MarkSent(reminder.ID); err != nil {
		return errors.Wrap(err, "failed to mark reminder sent")
	}
	r.logger.Infow("dispatched reminder", "reminder_id", reminder.ID, "event_id", event.ID, "channel", channel)
	return nil
}

// claimHeld reports whether another worker claimed reminder within the lease.
func claimHeld(reminder *dbmodel.EventReminders, now time.Time) bool {
	return reminder.DispatchingAt != nil && !reminder.DispatchingAt.Before(now.Add(-constant.REMINDER_CLAIM_LEASE))
}
