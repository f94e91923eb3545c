package dbmodel

import (
	"time"
)

type EventReminders struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	CalendarEventID  uint      `json:"calendar_event_id" gorm:"not null;index"`
	MinutesBefore    int       `json:"minutes_before" gorm:"not null"`
	NotificationType string    `json:"notification_type" gorm:"type:VARCHAR(8);not null"`
	Sent             bool      `json:"sent" gorm:"not null;default:false;index"`

	// DispatchingAt is set by the worker that claimed the reminder for sending.
	DispatchingAt *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	CalendarEvent *CalendarEvents `json:"-" gorm:"foreignKey:CalendarEventID"`
}

func (*EventReminders) TableName() string {
	return "event_reminders"
}

// FireTime is the instant the reminder becomes due.
func (r *EventReminders) FireTime(start time.Time) time.Time {
	return start.Add(-time.Duration(r.MinutesBefore) * time.Minute)
}
