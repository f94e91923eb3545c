package service

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	"github.com/sshindanai/google-calendar-reminders/server/internal/gcal"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
)

type SyncService interface {
	// SyncUpcoming mirrors the user's events for the next month into storage and returns them
	// ordered by start time. Provider failures other than auth yield an empty result.
	SyncUpcoming(ctx context.Context, userID uint) ([]dbmodel.CalendarEvents, error)
}

type syncService struct {
	userRepo  repository.UserRepository
	eventRepo repository.CalendarEventRepository
	vault     TokenVault
	clients   CalendarClients
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewSyncService(userRepo repository.UserRepository, eventRepo repository.CalendarEventRepository,
	vault TokenVault, clients CalendarClients, logger *zap.SugaredLogger) SyncService {
	return &syncService{
		userRepo:  userRepo,
		eventRepo: eventRepo,
		vault:     vault,
		clients:   clients,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *syncService) SyncUpcoming(ctx context.Context, userID uint) ([]dbmodel.CalendarEvents, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	if user == nil {
		return nil, errors.Wrapf(models.ErrNotFound, "user %d", userID)
	}

	client, err := s.clients.ClientFor(ctx, userID)
	if err != nil {
		s.logger.Errorw("error creating calendar client", "user_id", userID, "err", err.Error())
		return []dbmodel.CalendarEvents{}, nil
	}

	now := s.now()
	timeMax := now.AddDate(0, constant.SYNC_HORIZON_MONTHS, 0)

	var items []*calendar.Event
	err = callWithRefresh(ctx, s.vault, client, userID, func(c gcal.Client) error {
		var err error
		items, err = c.ListUpcoming(ctx, now, timeMax)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrAuth) || errors.Is(err, models.ErrNotFound) {
			s.logger.Errorw("authorization error fetching events", "user_id", userID, "err", err.Error())
			return nil, err
		}
		s.logger.Errorw("error fetching calendar events", "user_id", userID, "err", err.Error())
		return []dbmodel.CalendarEvents{}, nil
	}

	events := make([]dbmodel.CalendarEvents, 0, len(items))
	failed := 0
	for _, item := range items {
		if item == nil || item.Id == "" || item.Status == constant.EV_STATUS_CANCELLED {
			continue
		}
		start, ok := parseEventTime(item.Start)
		if !ok {
			s.logger.Warnw("skipping event with unparseable start", "user_id", userID, "event_id", item.Id)
			continue
		}
		end, ok := parseEventTime(item.End)
		if !ok {
			end = start
		}

		event, err := s.upsert(user, item, start, end)
		if err != nil {
			s.logger.Errorw("error saving event", "user_id", userID, "event_id", item.Id, "err", err.Error())
			failed++
			continue
		}
		events = append(events, *event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	s.logger.Debugw("synced calendar", "user_id", userID, "events", len(events), "failed", failed)
	if failed > 0 {
		// the next sync retries them
		return events, errors.Errorf("failed to save %d of %d events", failed, len(items))
	}
	return events, nil
}

// upsert is keyed on (user, provider event id). A newly created event is stored together
// with its default reminder, or not at all.
func (s *syncService) upsert(user *dbmodel.Users, item *calendar.Event, start time.Time, end time.Time) (*dbmodel.CalendarEvents, error) {
	existing, err := s.eventRepo.FindByEventID(user.ID, item.Id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.updateDetails(existing, item.Summary, start, end)
	}

	event := &dbmodel.CalendarEvents{
		UserID:    user.ID,
		EventID:   item.Id,
		Summary:   item.Summary,
		StartTime: start,
		EndTime:   end,
	}
	created, err := s.eventRepo.Create(event, defaultReminder(user))
	if err != nil {
		return nil, err
	}
	if !created {
		// a concurrent sync inserted it first
		existing, err := s.eventRepo.FindByEventID(user.ID, item.Id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.Wrapf(models.ErrNotFound, "event %s", item.Id)
		}
		return s.updateDetails(existing, item.Summary, start, end)
	}
	return event, nil
}

func (s *syncService) updateDetails(event *dbmodel.CalendarEvents, summary string, start time.Time, end time.Time) (*dbmodel.CalendarEvents, error) {
	if event.Summary == summary && event.StartTime.Equal(start) && event.EndTime.Equal(end) {
		return event, nil
	}
	event.Summary = summary
	event.StartTime = start
	event.EndTime = end
	if err := s.eventRepo.UpdateDetails(event); err != nil {
		return nil, err
	}
	return event, nil
}

// defaultReminder is stored together with a newly created event.
func defaultReminder(user *dbmodel.Users) dbmodel.EventReminders {
	return dbmodel.EventReminders{
		MinutesBefore:    constant.DEFAULT_REMINDER_MINUTES,
		NotificationType: preferredChannel(user),
	}
}

// parseEventTime handles both timed (RFC3339) and all-day (date only) events.
func parseEventTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	if dt.Date != "" {
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func preferredChannel(user *dbmodel.Users) string {
	switch user.NotificationMethod {
	case constant.NOTIFY_EMAIL, constant.NOTIFY_SMS, constant.NOTIFY_BOTH:
		return user.NotificationMethod
	}
	return constant.NOTIFY_BOTH
}
