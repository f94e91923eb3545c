package repository

import (
	"time"

	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CalendarEventRepository interface {
	// Create inserts event unless (user_id, event_id) already exists, and reports whether it did.
	// The given reminders are inserted for a new event in the same transaction.
	Create(event *dbmodel.CalendarEvents, reminders ...dbmodel.EventReminders) (bool, error)
	UpdateDetails(*dbmodel.CalendarEvents) error
	FindByID(uint) (*dbmodel.CalendarEvents, error)
	FindForUser(userID uint, id uint) (*dbmodel.CalendarEvents, error)
	FindByEventID(userID uint, eventID string) (*dbmodel.CalendarEvents, error)
	ListUpcoming(userID uint, from time.Time, limit int) ([]dbmodel.CalendarEvents, error)
}

type calendarEventRepository struct {
	db *gorm.DB
}

func NewCalendarEventRepository(db *gorm.DB) CalendarEventRepository {
	return &calendarEventRepository{
		db: db,
	}
}

func (c *calendarEventRepository) Create(event *dbmodel.CalendarEvents, reminders ...dbmodel.EventReminders) (bool, error) {
	created := false
	err := c.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_id"}},
			DoNothing: true,
		}).Create(event)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}
		for i := range reminders {
			reminders[i].CalendarEventID = event.ID
			if err := tx.Omit(clause.Associations).Create(&reminders[i]).Error; err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// UpdateDetails overwrites the fields mirrored from the provider. Reminder state is left alone.
func (c *calendarEventRepository) UpdateDetails(event *dbmodel.CalendarEvents) error {
	return c.db.Model(&dbmodel.CalendarEvents{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"summary":    event.Summary,
			"start_time": event.StartTime,
			"end_time":   event.EndTime,
			"updated_at": time.Now(),
		}).Error
}

func (c *calendarEventRepository) FindByID(id uint) (*dbmodel.CalendarEvents, error) {
	var event dbmodel.CalendarEvents
	result := c.db.First(&event, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &event, nil
}

func (c *calendarEventRepository) FindForUser(userID uint, id uint) (*dbmodel.CalendarEvents, error) {
	var event dbmodel.CalendarEvents
	result := c.db.First(&event, "id = ? AND user_id = ?", id, userID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &event, nil
}

func (c *calendarEventRepository) FindByEventID(userID uint, eventID string) (*dbmodel.CalendarEvents, error) {
	var event dbmodel.CalendarEvents
	result := c.db.First(&event, "user_id = ? AND event_id = ?", userID, eventID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &event, nil
}

// ListUpcoming returns the user's events starting after from, soonest first, with their reminders.
func (c *calendarEventRepository) ListUpcoming(userID uint, from time.Time, limit int) ([]dbmodel.CalendarEvents, error) {
	var events []dbmodel.CalendarEvents
	query := c.db.Preload("Reminders", func(db *gorm.DB) *gorm.DB {
		return db.Order("minutes_before asc")
	}).Where("user_id = ? AND start_time > ?", userID, from).Order("start_time asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
