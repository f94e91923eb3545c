package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	"github.com/sshindanai/google-calendar-reminders/server/helper"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/queue"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
)

type UserService interface {
	// UpsertFromOAuth stores the account after a successful sign in and queues its first sync
	// and watch setup. The bool is true when an existing user was updated.
	UpsertFromOAuth(ctx context.Context, in models.UpsertUser) (*models.UserDataDto, bool, error)
	GetUserByID(userID uint) (models.UserDataDto, error)
	UpdateSettings(userID uint, in models.UpdateSettings) (models.UserDataDto, error)
	UpcomingEvents(userID uint) ([]models.EventDto, error)
	DeleteUserData(userID uint) error
	List(opts models.ListUsersOption) (models.ListUsersResult, error)
}

type userService struct {
	userRepo  repository.UserRepository
	eventRepo repository.CalendarEventRepository
	jobs      queue.Queue
	secret    string
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewUserService(userRepo repository.UserRepository, eventRepo repository.CalendarEventRepository, jobs queue.Queue, secret string, logger *zap.SugaredLogger) UserService {
	return &userService{
		userRepo:  userRepo,
		eventRepo: eventRepo,
		jobs:      jobs,
		secret:    secret,
		logger:    logger,
		now:       time.Now,
	}
}

func (u *userService) UpsertFromOAuth(ctx context.Context, in models.UpsertUser) (*models.UserDataDto, bool, error) {
	isUpdate := false
	if in.GoogleID == "" || in.Email == "" || in.AccessToken == "" {
		return nil, isUpdate, models.NewValidationError("credentials", "google id, email and access token are required")
	}

	accessToken, err := helper.Encrypt(in.AccessToken, u.secret)
	if err != nil {
		u.logger.Errorw("error when encrypt access token", "err", err.Error())
		return nil, isUpdate, err
	}
	refreshToken, err := helper.Encrypt(in.RefreshToken, u.secret)
	if err != nil {
		u.logger.Errorw("error when encrypt refresh token", "err", err.Error())
		return nil, isUpdate, err
	}

	// is user exist?
	currUser, err := u.userRepo.FindByGoogleID(in.GoogleID)
	if err != nil {
		u.logger.Errorw("error when find user by google id", "err", err.Error())
		return nil, isUpdate, err
	}

	var saved *dbmodel.Users
	if currUser == nil {
		created, err := u.userRepo.Create(dbmodel.Users{
			GoogleID:           in.GoogleID,
			Email:              in.Email,
			AccessToken:        accessToken,
			RefreshToken:       refreshToken,
			TokenExpiresAt:     in.ExpiresAt,
			NotificationMethod: constant.NOTIFY_BOTH,
		})
		if err != nil {
			u.logger.Errorw("error when create user", "err", err.Error())
			return nil, isUpdate, err
		}
		saved = &created
	} else {
		isUpdate = true
		// an empty refresh token keeps the stored one
		saved, err = u.userRepo.Update(currUser, &dbmodel.Users{
			Email:          in.Email,
			AccessToken:    accessToken,
			RefreshToken:   refreshToken,
			TokenExpiresAt: in.ExpiresAt,
		})
		if err != nil {
			u.logger.Errorw("error when update user tokens", "user_id", currUser.ID, "err", err.Error())
			return nil, isUpdate, err
		}
	}

	for _, job := range []queue.Job{
		{Kind: constant.JOB_SYNC_USER, UserID: saved.ID},
		{Kind: constant.JOB_SETUP_WATCH, UserID: saved.ID},
	} {
		if !u.jobs.Enqueue(ctx, job) {
			u.logger.Warnw("error enqueuing job after sign in", "job", job.String())
		}
	}

	dto := toUserDto(saved)
	return &dto, isUpdate, nil
}

func (u *userService) GetUserByID(userID uint) (models.UserDataDto, error) {
	user, err := u.findUser(userID)
	if err != nil {
		return models.UserDataDto{}, err
	}
	return toUserDto(user), nil
}

// UpdateSettings applies a partial settings change. Revoking consent always disables SMS and
// clears the consent date; enabling SMS without consent is rejected.
func (u *userService) UpdateSettings(userID uint, in models.UpdateSettings) (models.UserDataDto, error) {
	user, err := u.findUser(userID)
	if err != nil {
		return models.UserDataDto{}, err
	}
	updated := *user

	if in.PhoneNumber != nil {
		phone := helper.NormalizePhone(*in.PhoneNumber)
		if phone != "" && !helper.IsValidPhone(phone) {
			return models.UserDataDto{}, models.NewValidationError("phone_number", "must be a valid phone number")
		}
		updated.PhoneNumber = phone
	}
	if in.NotificationMethod != nil {
		if !isValidChannel(*in.NotificationMethod) {
			return models.UserDataDto{}, models.NewValidationError("notification_method", "must be one of email, sms, both")
		}
		updated.NotificationMethod = *in.NotificationMethod
	}
	if in.SMSEnabled != nil {
		updated.SMSEnabled = *in.SMSEnabled
	}

	revoked := false
	if in.SMSConsent != nil {
		if *in.SMSConsent && !user.SMSConsent {
			now := u.now()
			updated.SMSConsentDate = &now
		}
		if !*in.SMSConsent {
			updated.SMSConsentDate = nil
			revoked = true
		}
		updated.SMSConsent = *in.SMSConsent
	}

	if revoked {
		updated.SMSEnabled = false
	} else if updated.SMSEnabled && !updated.SMSConsent {
		return models.UserDataDto{}, models.NewValidationError("sms_enabled", "sms requires consent")
	}

	if err := u.userRepo.UpdateSettings(&updated); err != nil {
		u.logger.Errorw("error when update settings", "user_id", userID, "err", err.Error())
		return models.UserDataDto{}, err
	}
	u.logger.Infow("updated settings", "user_id", userID, "sms_enabled", updated.SMSEnabled,
		"notification_method", updated.NotificationMethod, "phone", maskedPhone(updated.PhoneNumber))
	return toUserDto(&updated), nil
}

func (u *userService) UpcomingEvents(userID uint) ([]models.EventDto, error) {
	if _, err := u.findUser(userID); err != nil {
		return nil, err
	}
	events, err := u.eventRepo.ListUpcoming(userID, u.now(), constant.UPCOMING_EVENTS_MAX)
	if err != nil {
		return nil, err
	}
	result := make([]models.EventDto, 0, len(events))
	for i := range events {
		result = append(result, toEventDto(&events[i]))
	}
	return result, nil
}

func (u *userService) DeleteUserData(userID uint) error {
	if _, err := u.findUser(userID); err != nil {
		return err
	}
	if err := u.userRepo.Delete(userID); err != nil {
		return err
	}

	return nil
}

func (u *userService) List(opts models.ListUsersOption) (models.ListUsersResult, error) {
	result, err := u.userRepo.List(opts)
	if err != nil || result == nil {
		return models.ListUsersResult{}, err
	}
	users, ok := result.Rows.([]dbmodel.Users)
	if !ok {
		return models.ListUsersResult{}, errors.New("error when convert interface to []dbmodel.Users")
	}

	userDataDtos := make([]models.UserDataDto, 0, len(users))
	for i := range users {
		userDataDtos = append(userDataDtos, toUserDto(&users[i]))
	}
	return models.ListUsersResult{
		Users:      userDataDtos,
		TotalRows:  result.TotalRows,
		TotalPages: result.TotalPages,
	}, nil
}

func (u *userService) findUser(userID uint) (*dbmodel.Users, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.Wrap(models.ErrNotFound, constant.INTERNAL_ERR_USER_NOT_FOUND)
	}
	return user, nil
}

func toUserDto(user *dbmodel.Users) models.UserDataDto {
	return models.UserDataDto{
		ID:                 user.ID,
		Email:              user.Email,
		PhoneNumber:        user.PhoneNumber,
		SMSEnabled:         user.SMSEnabled,
		NotificationMethod: user.NotificationMethod,
		SMSConsent:         user.SMSConsent,
		SMSConsentDate:     user.SMSConsentDate,
		CreatedAt:          user.CreatedAt,
	}
}

func toEventDto(event *dbmodel.CalendarEvents) models.EventDto {
	reminders := make([]models.ReminderDto, 0, len(event.Reminders))
	for i := range event.Reminders {
		reminders = append(reminders, toReminderDto(&event.Reminders[i]))
	}
	return models.EventDto{
		ID:        event.ID,
		EventID:   event.EventID,
		Summary:   event.Summary,
		StartTime: event.StartTime,
		EndTime:   event.EndTime,
		Reminders: reminders,
	}
}

func toReminderDto(reminder *dbmodel.EventReminders) models.ReminderDto {
	return models.ReminderDto{
		ID:               reminder.ID,
		MinutesBefore:    reminder.MinutesBefore,
		NotificationType: reminder.NotificationType,
		Sent:             reminder.Sent,
	}
}

func isValidChannel(channel string) bool {
	switch channel {
	case constant.NOTIFY_EMAIL, constant.NOTIFY_SMS, constant.NOTIFY_BOTH:
		return true
	}
	return false
}

func maskedPhone(phone string) string {
	if phone == "" {
		return ""
	}
	return helper.MaskPhone(phone)
}
