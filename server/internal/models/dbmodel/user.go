package dbmodel

import (
	"time"
)

// Users holds the account and its OAuth credential. Tokens are stored encrypted.
type Users struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	GoogleID           string     `json:"google_id" gorm:"type:VARCHAR(255);not null;uniqueIndex"`
	Email              string     `json:"email" gorm:"type:VARCHAR(255);not null;uniqueIndex"`
	AccessToken        string     `json:"-" gorm:"type:TEXT"`
	RefreshToken       string     `json:"-" gorm:"type:TEXT"`
	TokenExpiresAt     *time.Time `json:"token_expires_at"`
	PhoneNumber        string     `json:"phone_number" gorm:"type:VARCHAR(32)"`
	SMSEnabled         bool       `json:"sms_enabled" gorm:"column:sms_enabled;not null;default:false"`
	NotificationMethod string     `json:"notification_method" gorm:"type:VARCHAR(8);not null;default:'both'"`
	SMSConsent         bool       `json:"sms_consent" gorm:"column:sms_consent;not null;default:false"`
	SMSConsentDate     *time.Time `json:"sms_consent_date" gorm:"column:sms_consent_date"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (*Users) TableName() string {
	return "users"
}

// TokenExpired is true when the expiry is missing or not in the future.
func (u *Users) TokenExpired(now time.Time) bool {
	return u.TokenExpiresAt == nil || !u.TokenExpiresAt.After(now)
}
