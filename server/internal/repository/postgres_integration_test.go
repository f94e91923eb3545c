package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("CALREMIND_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set CALREMIND_TEST_POSTGRES_DSN to run Postgres integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&dbmodel.Users{},
		&dbmodel.CalendarEvents{},
		&dbmodel.EventReminders{},
		&dbmodel.Watches{},
		&dbmodel.ConnectStates{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createTestUser(t *testing.T, repo UserRepository) dbmodel.Users {
	t.Helper()
	suffix := uuid.New().String()
	user, err := repo.Create(dbmodel.Users{
		GoogleID:           "google-" + suffix,
		Email:              suffix + "@example.com",
		AccessToken:        "sealed-access",
		NotificationMethod: "both",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Delete(user.ID) })
	return user
}

func TestPostgresEventUpsertKeepsReminders(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	events := NewCalendarEventRepository(db)
	reminders := NewEventReminderRepository(db)
	user := createTestUser(t, users)

	start := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	event := &dbmodel.CalendarEvents{UserID: user.ID, EventID: "evt-1", Summary: "Dentist", StartTime: start, EndTime: start.Add(time.Hour)}
	created, err := events.Create(event, dbmodel.EventReminders{MinutesBefore: 60, NotificationType: "both"})
	require.NoError(t, err)
	require.True(t, created)

	again := &dbmodel.CalendarEvents{UserID: user.ID, EventID: "evt-1", Summary: "Dentist", StartTime: start, EndTime: start.Add(time.Hour)}
	created, err = events.Create(again, dbmodel.EventReminders{MinutesBefore: 30, NotificationType: "email"})
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := events.FindByEventID(user.ID, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	stored.Summary = "Dentist (moved)"
	stored.StartTime = start.Add(time.Hour)
	require.NoError(t, events.UpdateDetails(stored))

	list, err := reminders.ListByEvent(event.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	pending, err := reminders.PendingInWindow(time.Now(), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	var found *dbmodel.EventReminders
	for i := range pending {
		if pending[i].ID == list[0].ID {
			found = &pending[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.CalendarEvent)
	assert.Equal(t, "Dentist (moved)", found.CalendarEvent.Summary)

	now := time.Now()
	claimed, err := reminders.Claim(list[0].ID, now, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = reminders.Claim(list[0].ID, now, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)
	// a claim older than the lease can be taken over
	claimed, err = reminders.Claim(list[0].ID, now.Add(time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, reminders.MarkSent(list[0].ID))
	claimed, err = reminders.Claim(list[0].ID, now.Add(2*time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed)
	pending, err = reminders.PendingInWindow(time.Now(), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	for _, reminder := range pending {
		assert.NotEqual(t, list[0].ID, reminder.ID)
	}
}

func TestPostgresOneActiveWatchPerUser(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	watches := NewWatchRepository(db)
	user := createTestUser(t, users)

	expiration := time.Now().Add(7 * 24 * time.Hour).UTC()
	first := &dbmodel.Watches{UserID: user.ID, ChannelID: uuid.New().String(), ResourceID: "res-1", Token: "t1", Expiration: expiration, Active: true}
	require.NoError(t, watches.Create(first))

	second := &dbmodel.Watches{UserID: user.ID, ChannelID: uuid.New().String(), ResourceID: "res-2", Token: "t2", Expiration: expiration, Active: true}
	require.Error(t, watches.Create(second))

	require.NoError(t, watches.Deactivate(first.ID))
	second.ID = 0
	require.NoError(t, watches.Create(second))

	hasActive, err := watches.HasActive(user.ID)
	require.NoError(t, err)
	assert.True(t, hasActive)

	found, err := watches.FindActiveByChannel(first.ChannelID, first.ResourceID)
	require.NoError(t, err)
	assert.Nil(t, found)
	found, err = watches.FindActiveByChannel(second.ChannelID, second.ResourceID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "t2", found.Token)
}

func TestPostgresUserDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	events := NewCalendarEventRepository(db)
	reminders := NewEventReminderRepository(db)
	watches := NewWatchRepository(db)
	user := createTestUser(t, users)

	start := time.Now().Add(time.Hour).UTC()
	event := &dbmodel.CalendarEvents{UserID: user.ID, EventID: "evt-1", StartTime: start, EndTime: start}
	_, err := events.Create(event)
	require.NoError(t, err)
	reminder := &dbmodel.EventReminders{CalendarEventID: event.ID, MinutesBefore: 10, NotificationType: "email"}
	require.NoError(t, reminders.Create(reminder))
	watch := &dbmodel.Watches{UserID: user.ID, ChannelID: uuid.New().String(), ResourceID: "res", Expiration: start, Active: true}
	require.NoError(t, watches.Create(watch))

	require.NoError(t, users.Delete(user.ID))

	found, err := users.FindByID(user.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
	storedEvent, err := events.FindByID(event.ID)
	require.NoError(t, err)
	assert.Nil(t, storedEvent)
	storedReminder, err := reminders.FindByID(reminder.ID)
	require.NoError(t, err)
	assert.Nil(t, storedReminder)
	storedWatch, err := watches.FindByID(watch.ID)
	require.NoError(t, err)
	assert.Nil(t, storedWatch)
}

func TestPostgresConnectStateTakeOnce(t *testing.T) {
	db := openTestDB(t)
	states := NewConnectStateRepository(db)

	state := uuid.New().String()
	require.NoError(t, states.Insert(dbmodel.ConnectStates{State: state, CreatedAt: time.Now()}))

	ok, err := states.Take(state, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = states.Take(state, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	stale := uuid.New().String()
	require.NoError(t, states.Insert(dbmodel.ConnectStates{State: stale, CreatedAt: time.Now().Add(-time.Hour)}))
	ok, err = states.Take(stale, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}
