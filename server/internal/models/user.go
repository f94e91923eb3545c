package model

import "time"

type UserDataDto struct {
	ID                 uint       `json:"id"`
	Email              string     `json:"email"`
	PhoneNumber        string     `json:"phoneNumber,omitempty"`
	SMSEnabled         bool       `json:"smsEnabled"`
	NotificationMethod string     `json:"notificationMethod"`
	SMSConsent         bool       `json:"smsConsent"`
	SMSConsentDate     *time.Time `json:"smsConsentDate,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// UpsertUser is what the OAuth callback hands over after a successful sign in.
type UpsertUser struct {
	GoogleID     string     `json:"googleId"`
	Email        string     `json:"email"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

// UpdateSettings carries a partial settings change. Nil fields are left untouched.
type UpdateSettings struct {
	PhoneNumber        *string `json:"phone_number"`
	SMSEnabled         *bool   `json:"sms_enabled"`
	NotificationMethod *string `json:"notification_method"`
	SMSConsent         *bool   `json:"sms_consent"`
}

type ListUsersOption struct {
	Page           int  `json:"page"`
	Limit          int  `json:"limit"`
	HasAccessToken bool `json:"hasAccessToken"`
}

type ListUsersResult struct {
	Users      []UserDataDto `json:"users"`
	TotalRows  int64         `json:"total_rows"`
	TotalPages int           `json:"total_pages"`
}
