package model

import "time"

type EventDto struct {
	ID        uint          `json:"id"`
	EventID   string        `json:"eventId"`
	Summary   string        `json:"summary"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Reminders []ReminderDto `json:"reminders"`
}

type ReminderDto struct {
	ID               uint   `json:"id"`
	MinutesBefore    int    `json:"minutesBefore"`
	NotificationType string `json:"notificationType"`
	Sent             bool   `json:"sent"`
}

// CreateReminder is a user request to add a reminder to one event.
// An empty NotificationType falls back to the user's preference.
type CreateReminder struct {
	MinutesBefore    int    `json:"minutes_before"`
	NotificationType string `json:"notification_type"`
}
