package constant

import "time"

const (
	// Metadata
	GOOGLE_CALENDAR_API_URL = "https://www.googleapis.com/auth/calendar.readonly"
	PRIMARY_CALENDAR_ID     = "primary"
	WATCH_CHANNEL_TYPE      = "web_hook"
	WEBHOOK_PATH            = "/webhooks/google_calendar"
	OAUTH_CONNECT_PATH      = "/oauth/connect"
	OAUTH_COMPLETE_PATH     = "/oauth/complete"
	USERINFO_EMAIL_SCOPE    = "https://www.googleapis.com/auth/userinfo.email"

	// Set by the front end on every management request
	USER_ID_HEADER = "X-User-ID"

	// Webhook headers sent by the push service
	HEADER_CHANNEL_ID     = "X-Goog-Channel-ID"
	HEADER_CHANNEL_TOKEN  = "X-Goog-Channel-Token"
	HEADER_RESOURCE_ID    = "X-Goog-Resource-ID"
	HEADER_RESOURCE_STATE = "X-Goog-Resource-State"

	// Resource states
	RESOURCE_STATE_SYNC   = "sync"
	RESOURCE_STATE_EXISTS = "exists"

	// Date format
	DATE_FORMAT     = "Monday, January 2, 2006"
	TIME_FORMAT     = "3:04 PM MST"
	SMS_TIME_FORMAT = "3:04 PM on Jan 02, 2006"

	// Notification channels
	NOTIFY_EMAIL = "email"
	NOTIFY_SMS   = "sms"
	NOTIFY_BOTH  = "both"

	// Event status
	EV_STATUS_CANCELLED = "cancelled"

	// Reminder bounds
	MIN_REMINDER_OFFSET      = 1
	MAX_REMINDER_OFFSET      = 1440
	MAX_REMINDERS_PER_EVENT  = 4
	DEFAULT_REMINDER_MINUTES = 60

	// Windows
	SYNC_HORIZON_MONTHS  = 1
	REMINDER_SCAN_WINDOW = 24 * time.Hour
	WATCH_RENEW_WINDOW   = 24 * time.Hour
	WATCH_DEFAULT_TTL    = 7 * 24 * time.Hour
	REMINDER_CLAIM_LEASE = 10 * time.Minute
	UPCOMING_EVENTS_MAX  = 20

	// Job kinds
	JOB_SYNC_USER        = "sync_user"
	JOB_SEND_REMINDER    = "send_reminder"
	JOB_RENEW_WATCH      = "renew_watch"
	JOB_SETUP_WATCH      = "setup_watch"
	JOB_DEACTIVATE_WATCH = "deactivate_watch"

	// Error message
	INTERNAL_ERR_USER_NOT_FOUND = "user not found"

	DEFAULT_FROM_EMAIL = "noreply@calendarreminders.com"

	PHONE_REGEX = `^\+?[1-9][0-9]{6,14}$`
)
