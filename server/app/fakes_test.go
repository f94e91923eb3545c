package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sshindanai/google-calendar-reminders/server/config"
	"github.com/sshindanai/google-calendar-reminders/server/internal/gcal"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type fakeUserService struct {
	mu       sync.Mutex
	users    []models.UserDataDto
	events   map[uint][]models.EventDto
	upserts  []models.UpsertUser
	settings map[uint]models.UpdateSettings
	deleted  []uint
	listErr  error
}

func (f *fakeUserService) UpsertFromOAuth(_ context.Context, in models.UpsertUser) (*models.UserDataDto, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, in)
	user := models.UserDataDto{ID: uint(len(f.users) + 1), Email: in.Email}
	f.users = append(f.users, user)
	return &user, false, nil
}

func (f *fakeUserService) find(userID uint) (models.UserDataDto, error) {
	for _, user := range f.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return models.UserDataDto{}, models.ErrNotFound
}

func (f *fakeUserService) GetUserByID(userID uint) (models.UserDataDto, error) {
	return f.find(userID)
}

func (f *fakeUserService) UpdateSettings(userID uint, in models.UpdateSettings) (models.UserDataDto, error) {
	user, err := f.find(userID)
	if err != nil {
		return user, err
	}
	if in.NotificationMethod != nil {
		if *in.NotificationMethod != "email" && *in.NotificationMethod != "sms" && *in.NotificationMethod != "both" {
			return user, models.NewValidationError("notification_method", "must be one of email, sms, both")
		}
		user.NotificationMethod = *in.NotificationMethod
	}
	if f.settings == nil {
		f.settings = map[uint]models.UpdateSettings{}
	}
	f.settings[userID] = in
	return user, nil
}

func (f *fakeUserService) UpcomingEvents(userID uint) ([]models.EventDto, error) {
	if _, err := f.find(userID); err != nil {
		return nil, err
	}
	return f.events[userID], nil
}

func (f *fakeUserService) DeleteUserData(userID uint) error {
	if _, err := f.find(userID); err != nil {
		return err
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeUserService) List(opts models.ListUsersOption) (models.ListUsersResult, error) {
	if f.listErr != nil {
		return models.ListUsersResult{}, f.listErr
	}
	total := len(f.users)
	pages := (total + opts.Limit - 1) / opts.Limit
	start := (opts.Page - 1) * opts.Limit
	if start >= total {
		return models.ListUsersResult{TotalRows: int64(total), TotalPages: pages}, nil
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return models.ListUsersResult{Users: f.users[start:end], TotalRows: int64(total), TotalPages: pages}, nil
}

type fakeEventReminderService struct {
	reminders map[uint][]models.ReminderDto
	nextID    uint
}

func (f *fakeEventReminderService) List(userID uint, eventID uint) ([]models.ReminderDto, error) {
	reminders, ok := f.reminders[eventID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return reminders, nil
}

func (f *fakeEventReminderService) Create(userID uint, eventID uint, in models.CreateReminder) (models.ReminderDto, error) {
	if _, ok := f.reminders[eventID]; !ok {
		return models.ReminderDto{}, models.ErrNotFound
	}
	if in.MinutesBefore < 1 || in.MinutesBefore > 1440 {
		return models.ReminderDto{}, models.NewValidationError("minutes_before", "must be between 1 and 1440")
	}
	f.nextID++
	reminder := models.ReminderDto{ID: f.nextID, MinutesBefore: in.MinutesBefore, NotificationType: in.NotificationType}
	f.reminders[eventID] = append(f.reminders[eventID], reminder)
	return reminder, nil
}

func (f *fakeEventReminderService) Delete(userID uint, eventID uint, reminderID uint) error {
	reminders := f.reminders[eventID]
	for i, reminder := range reminders {
		if reminder.ID == reminderID {
			f.reminders[eventID] = append(reminders[:i], reminders[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

type fakeWebhookService struct {
	result   models.WebhookResult
	received []models.WebhookNotification
}

func (f *fakeWebhookService) Handle(_ context.Context, notification models.WebhookNotification) models.WebhookResult {
	f.received = append(f.received, notification)
	return f.result
}

type fakeStateService struct {
	issued map[string]bool
}

func (f *fakeStateService) Create() (string, error) {
	state := "state-1"
	f.issued[state] = true
	return state, nil
}

func (f *fakeStateService) Consume(state string) (bool, error) {
	ok := f.issued[state]
	delete(f.issued, state)
	return ok, nil
}

type fakeAuthenticator struct {
	token    *oauth2.Token
	identity *gcal.Identity
	err      error
}

func (f *fakeAuthenticator) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeAuthenticator) Exchange(_ context.Context, code string) (*oauth2.Token, *gcal.Identity, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.token, f.identity, nil
}

type fakeSyncService struct {
	mu     sync.Mutex
	synced []uint
}

func (f *fakeSyncService) SyncUpcoming(_ context.Context, userID uint) ([]dbmodel.CalendarEvents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, userID)
	return nil, nil
}

type fakeWatchService struct {
	mu        sync.Mutex
	expiring  []dbmodel.Watches
	expired   []dbmodel.Watches
	active    map[uint]bool
	setupErr  map[uint]error
	setups    []uint
	renewed   []uint
	expires   []uint
	stopAll   []uint
	callbacks []string
}

func (f *fakeWatchService) Setup(_ context.Context, userID uint, callbackURL string) (*dbmodel.Watches, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callbackURL)
	if err := f.setupErr[userID]; err != nil {
		return nil, err
	}
	f.setups = append(f.setups, userID)
	return &dbmodel.Watches{UserID: userID, Active: true}, nil
}

func (f *fakeWatchService) Stop(_ context.Context, watch *dbmodel.Watches) bool {
	return true
}

func (f *fakeWatchService) Renew(_ context.Context, old *dbmodel.Watches, callbackURL string) (*dbmodel.Watches, error) {
	return &dbmodel.Watches{UserID: old.UserID, Active: true}, nil
}

func (f *fakeWatchService) RenewByID(_ context.Context, watchID uint, callbackURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewed = append(f.renewed, watchID)
	return nil
}

func (f *fakeWatchService) Expire(_ context.Context, watchID uint, callbackURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires = append(f.expires, watchID)
	return nil
}

func (f *fakeWatchService) ExpiringSoon() ([]dbmodel.Watches, error) {
	return f.expiring, nil
}

func (f *fakeWatchService) Expired() ([]dbmodel.Watches, error) {
	return f.expired, nil
}

func (f *fakeWatchService) HasActive(userID uint) (bool, error) {
	return f.active[userID], nil
}

func (f *fakeWatchService) StopAll(_ context.Context, userID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAll = append(f.stopAll, userID)
	if !f.active[userID] {
		return 0, nil
	}
	delete(f.active, userID)
	return 1, nil
}

type fakeReminderService struct {
	mu         sync.Mutex
	due        []dbmodel.EventReminders
	scannedAt  time.Time
	dispatched []uint
	dispatch   func(reminderID uint) error
}

func (f *fakeReminderService) DueReminders(_ context.Context, now time.Time) ([]dbmodel.EventReminders, error) {
	f.scannedAt = now
	return f.due, nil
}

func (f *fakeReminderService) Dispatch(_ context.Context, reminderID uint) error {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, reminderID)
	f.mu.Unlock()
	if f.dispatch != nil {
		return f.dispatch(reminderID)
	}
	return nil
}

type testFixture struct {
	app       *App
	jobs      queue.Queue
	users     *fakeUserService
	reminders *fakeEventReminderService
	webhook   *fakeWebhookService
	states    *fakeStateService
	auth      *fakeAuthenticator
	sync      *fakeSyncService
	watches   *fakeWatchService
	dispatch  *fakeReminderService
}

func newTestApp(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		jobs:      queue.NewInMemoryQueue(16),
		users:     &fakeUserService{events: map[uint][]models.EventDto{}},
		reminders: &fakeEventReminderService{reminders: map[uint][]models.ReminderDto{}},
		webhook:   &fakeWebhookService{},
		states:    &fakeStateService{issued: map[string]bool{}},
		auth:      &fakeAuthenticator{},
		sync:      &fakeSyncService{},
		watches:   &fakeWatchService{active: map[uint]bool{}, setupErr: map[uint]error{}},
		dispatch:  &fakeReminderService{},
	}
	t.Cleanup(func() { _ = f.jobs.Close() })

	f.app = &App{
		cfg: &config.Configuration{
			SiteUrl: "https://reminders.example.com",
			Workers: 2,
		},
		logger:  zap.NewNop().Sugar(),
		cronLog: zap.NewNop().Sugar(),
		services: &InternalService{
			jobs:                 f.jobs,
			authenticator:        f.auth,
			stateService:         f.states,
			userService:          f.users,
			eventReminderService: f.reminders,
			syncService:          f.sync,
			watchService:         f.watches,
			webhookService:       f.webhook,
			reminderService:      f.dispatch,
		},
		ping: func(context.Context) error { return nil },
		now:  time.Now,
	}
	f.app.registerRouter()
	return f
}

func (f *testFixture) drain() []queue.Job {
	var jobs []queue.Job
	for f.jobs.Depth() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		job, ok := f.jobs.Dequeue(ctx)
		cancel()
		if !ok {
			break
		}
		jobs = append(jobs, job)
	}
	return jobs
}
