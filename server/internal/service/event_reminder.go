package service

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
)

// EventReminderService manages the reminders a user attaches to one of their events.
type EventReminderService interface {
	List(userID uint, eventID uint) ([]models.ReminderDto, error)
	Create(userID uint, eventID uint, in models.CreateReminder) (models.ReminderDto, error)
	Delete(userID uint, eventID uint, reminderID uint) error
}

type eventReminderService struct {
	userRepo     repository.UserRepository
	eventRepo    repository.CalendarEventRepository
	reminderRepo repository.EventReminderRepository
	logger       *zap.SugaredLogger
}

func NewEventReminderService(userRepo repository.UserRepository, eventRepo repository.CalendarEventRepository,
	reminderRepo repository.EventReminderRepository, logger *zap.SugaredLogger) EventReminderService {
	return &eventReminderService{
		userRepo:     userRepo,
		eventRepo:    eventRepo,
		reminderRepo: reminderRepo,
		logger:       logger,
	}
}

func (e *eventReminderService) List(userID uint, eventID uint) ([]models.ReminderDto, error) {
	event, err := e.findEvent(userID, eventID)
	if err != nil {
		return nil, err
	}
	reminders, err := e.reminderRepo.ListByEvent(event.ID)
	if err != nil {
		return nil, err
	}
	result := make([]models.ReminderDto, 0, len(reminders))
	for i := range reminders {
		result = append(result, toReminderDto(&reminders[i]))
	}
	return result, nil
}

func (e *eventReminderService) Create(userID uint, eventID uint, in models.CreateReminder) (models.ReminderDto, error) {
	if in.MinutesBefore < constant.MIN_REMINDER_OFFSET || in.MinutesBefore > constant.MAX_REMINDER_OFFSET {
		return models.ReminderDto{}, models.NewValidationError("minutes_before",
			fmt.Sprintf("must be between %d and %d", constant.MIN_REMINDER_OFFSET, constant.MAX_REMINDER_OFFSET))
	}
	if in.NotificationType != "" && !isValidChannel(in.NotificationType) {
		return models.ReminderDto{}, models.NewValidationError("notification_type", "must be one of email, sms, both")
	}

	user, err := e.userRepo.FindByID(userID)
	if err != nil {
		return models.ReminderDto{}, err
	}
	if user == nil {
		return models.ReminderDto{}, errors.Wrap(models.ErrNotFound, constant.INTERNAL_ERR_USER_NOT_FOUND)
	}
	event, err := e.findEvent(userID, eventID)
	if err != nil {
		return models.ReminderDto{}, err
	}

	count, err := e.reminderRepo.CountByEvent(event.ID)
	if err != nil {
		return models.ReminderDto{}, err
	}
	if count >= constant.MAX_REMINDERS_PER_EVENT {
		return models.ReminderDto{}, models.NewValidationError("reminders",
			fmt.Sprintf("maximum %d reminders per event", constant.MAX_REMINDERS_PER_EVENT))
	}

	channel := in.NotificationType
	if channel == "" {
		channel = preferredChannel(user)
	}
	reminder := &dbmodel.EventReminders{
		CalendarEventID:  event.ID,
		MinutesBefore:    in.MinutesBefore,
		NotificationType: channel,
	}
	if err := e.reminderRepo.Create(reminder); err != nil {
		e.logger.Errorw("error when create reminder", "user_id", userID, "event_id", eventID, "err", err.Error())
		return models.ReminderDto{}, err
	}
	return toReminderDto(reminder), nil
}

func (e *eventReminderService) Delete(userID uint, eventID uint, reminderID uint) error {
	event, err := e.findEvent(userID, eventID)
	if err != nil {
		return err
	}
	deleted, err := e.reminderRepo.Delete(event.ID, reminderID)
	if err != nil {
		return err
	}
	if !deleted {
		return errors.Wrapf(models.ErrNotFound, "reminder %d", reminderID)
	}
	return nil
}

func (e *eventReminderService) findEvent(userID uint, eventID uint) (*dbmodel.CalendarEvents, error) {
	event, err := e.eventRepo.FindForUser(userID, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errors.Wrapf(models.ErrNotFound, "event %d", eventID)
	}
	return event, nil
}
