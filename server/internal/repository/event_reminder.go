package repository

import (
	"time"

	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventReminderRepository interface {
	Create(*dbmodel.EventReminders) error
	ListByEvent(calendarEventID uint) ([]dbmodel.EventReminders, error)
	CountByEvent(calendarEventID uint) (int64, error)
	FindByID(uint) (*dbmodel.EventReminders, error)
	Delete(calendarEventID uint, id uint) (bool, error)
	// PendingInWindow is the coarse storage-side filter: unsent reminders whose event starts in (from, to].
	PendingInWindow(from time.Time, to time.Time) ([]dbmodel.EventReminders, error)
	// Claim marks an unsent reminder as being dispatched at now. It reports false when the
	// reminder is sent or another claim made at or after staleBefore is still held.
	Claim(id uint, now time.Time, staleBefore time.Time) (bool, error)
	MarkSent(uint) error
}

type eventReminderRepository struct {
	db *gorm.DB
}

func NewEventReminderRepository(db *gorm.DB) EventReminderRepository {
	return &eventReminderRepository{
		db: db,
	}
}

func (e *eventReminderRepository) Create(reminder *dbmodel.EventReminders) error {
	return e.db.Omit(clause.Associations).Create(reminder).Error
}

func (e *eventReminderRepository) ListByEvent(calendarEventID uint) ([]dbmodel.EventReminders, error) {
	var reminders []dbmodel.EventReminders
	if err := e.db.Where("calendar_event_id = ?", calendarEventID).
		Order("minutes_before asc").Find(&reminders).Error; err != nil {
		return nil, err
	}
	return reminders, nil
}

func (e *eventReminderRepository) CountByEvent(calendarEventID uint) (int64, error) {
	var count int64
	if err := e.db.Model(&dbmodel.EventReminders{}).
		Where("calendar_event_id = ?", calendarEventID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (e *eventReminderRepository) FindByID(id uint) (*dbmodel.EventReminders, error) {
	var reminder dbmodel.EventReminders
	result := e.db.Preload("CalendarEvent").First(&reminder, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &reminder, nil
}

func (e *eventReminderRepository) Delete(calendarEventID uint, id uint) (bool, error) {
	result := e.db.Where("id = ? AND calendar_event_id = ?", id, calendarEventID).Delete(&dbmodel.EventReminders{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (e *eventReminderRepository) PendingInWindow(from time.Time, to time.Time) ([]dbmodel.EventReminders, error) {
	var reminders []dbmodel.EventReminders
	err := e.db.Preload("CalendarEvent").
		Joins("JOIN calendar_events ON calendar_events.id = event_reminders.calendar_event_id").
		Where("event_reminders.sent = ?", false).
		Where("calendar_events.start_time > ? AND calendar_events.start_time <= ?", from, to).
		Order("calendar_events.start_time asc").
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

func (e *eventReminderRepository) Claim(id uint, now time.Time, staleBefore time.Time) (bool, error) {
	result := e.db.Model(&dbmodel.EventReminders{}).
		Where("id = ? AND sent = ?", id, false).
		Where("dispatching_at IS NULL OR dispatching_at < ?", staleBefore).
		Updates(map[string]interface{}{"dispatching_at": now, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (e *eventReminderRepository) MarkSent(id uint) error {
	return e.db.Model(&dbmodel.EventReminders{}).Where("id = ?", id).
		Updates(map[string]interface{}{"sent": true, "updated_at": time.Now()}).Error
}
