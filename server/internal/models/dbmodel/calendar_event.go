package dbmodel

import (
	"time"
)

type CalendarEvents struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_calendar_events_user_event,priority:1;index"`
	EventID   string    `json:"event_id" gorm:"type:VARCHAR(1024);not null;uniqueIndex:idx_calendar_events_user_event,priority:2"`
	Summary   string    `json:"summary" gorm:"type:TEXT"`
	StartTime time.Time `json:"start_time" gorm:"not null;index"`
	EndTime   time.Time `json:"end_time"`
	// ReminderSent is a leftover column from the single reminder model. Nothing reads it.
	ReminderSent bool      `json:"-" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Reminders []EventReminders `json:"reminders,omitempty" gorm:"foreignKey:CalendarEventID;constraint:OnDelete:CASCADE"`
}

func (*CalendarEvents) TableName() string {
	return "calendar_events"
}
