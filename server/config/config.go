package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
)

// Configuration captures the settings the service needs at runtime. Values come from
// the process environment, optionally seeded from a .env file.
type Configuration struct {
	SiteUrl  string
	HTTPAddr string

	DbHost     string
	DbPort     string
	DbUser     string
	DbPassword string
	DbName     string
	DbSSLMode  string

	CalendarClientID     string
	CalendarClientSecret string
	EncryptionSecret     string

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	QueueDSN      string
	QueueCapacity int
	Workers       int

	SyncAllSchedule        string
	RenewWatchesSchedule   string
	CheckRemindersSchedule string

	DisplayTimezone string
	LogLevel        string
	LogFormat       string
}

// Load reads .env (when present) and then the environment.
func Load(envFiles ...string) (*Configuration, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to load env file")
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Configuration from the current environment, applying defaults.
func FromEnv() *Configuration {
	siteURL := os.Getenv("SITE_URL")
	if siteURL == "" {
		siteURL = os.Getenv("APP_URL")
	}
	return &Configuration{
		SiteUrl:  strings.TrimSuffix(siteURL, "/"),
		HTTPAddr: stringEnv("HTTP_ADDR", ":8080"),

		DbHost:     os.Getenv("DB_HOST"),
		DbPort:     stringEnv("DB_PORT", "5432"),
		DbUser:     os.Getenv("DB_USER"),
		DbPassword: os.Getenv("DB_PASSWORD"),
		DbName:     os.Getenv("DB_NAME"),
		DbSSLMode:  stringEnv("DB_SSLMODE", "disable"),

		CalendarClientID:     os.Getenv("CALENDAR_CLIENT_ID"),
		CalendarClientSecret: os.Getenv("CALENDAR_CLIENT_SECRET"),
		EncryptionSecret:     os.Getenv("ENCRYPTION_SECRET"),

		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      intEnv("SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFromEmail: stringEnv("SMTP_FROM_EMAIL", constant.DEFAULT_FROM_EMAIL),

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),

		QueueDSN:      stringEnv("QUEUE_DSN", "memory://"),
		QueueCapacity: intEnv("QUEUE_CAPACITY", 1024),
		Workers:       intEnv("WORKERS", 20),

		SyncAllSchedule:        stringEnv("SYNC_ALL_SCHEDULE", "@every 15m"),
		RenewWatchesSchedule:   stringEnv("RENEW_WATCHES_SCHEDULE", "@every 1h"),
		CheckRemindersSchedule: stringEnv("CHECK_REMINDERS_SCHEDULE", "@every 1m"),

		DisplayTimezone: stringEnv("DISPLAY_TIMEZONE", "UTC"),
		LogLevel:        stringEnv("LOG_LEVEL", "info"),
		LogFormat:       stringEnv("LOG_FORMAT", "console"),
	}
}

// IsValid reports the first required setting that is missing.
func (c *Configuration) IsValid() error {
	if c.SiteUrl == "" {
		return fmt.Errorf("environment variable SITE_URL is not set")
	}
	if c.DbHost == "" {
		return fmt.Errorf("environment variable DB_HOST is not set")
	}
	if c.DbUser == "" {
		return fmt.Errorf("environment variable DB_USER is not set")
	}
	if c.DbPassword == "" {
		return fmt.Errorf("environment variable DB_PASSWORD is not set")
	}
	if c.DbName == "" {
		return fmt.Errorf("environment variable DB_NAME is not set")
	}
	if c.CalendarClientID == "" {
		return fmt.Errorf("environment variable CALENDAR_CLIENT_ID is not set")
	}
	if c.CalendarClientSecret == "" {
		return fmt.Errorf("environment variable CALENDAR_CLIENT_SECRET is not set")
	}
	if c.EncryptionSecret == "" {
		return fmt.Errorf("environment variable ENCRYPTION_SECRET is not set")
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %v", c.DisplayTimezone, err)
	}
	return nil
}

// DSN returns the postgres connection string for gorm.
func (c *Configuration) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DbHost, c.DbUser, c.DbPassword, c.DbName, c.DbPort, c.DbSSLMode)
}

// WebhookURL is the callback address registered with every watch.
func (c *Configuration) WebhookURL() string {
	return c.SiteUrl + constant.WEBHOOK_PATH
}

func (c *Configuration) MailEnabled() bool {
	return c.SMTPHost != ""
}

func (c *Configuration) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// Location resolves DisplayTimezone, falling back to UTC.
func (c *Configuration) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func stringEnv(name, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
