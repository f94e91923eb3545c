package dbmodel

import (
	"time"
)

// Watches are never deleted; a stopped or expired subscription is kept with Active set to false.
type Watches struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"not null;index:idx_watches_user_active,priority:1;uniqueIndex:idx_watches_one_active,where:active = true"`
	ChannelID  string    `json:"channel_id" gorm:"type:VARCHAR(64);not null;uniqueIndex"`
	ResourceID string    `json:"resource_id" gorm:"type:VARCHAR(255);not null"`
	Token      string    `json:"-" gorm:"type:VARCHAR(64)"`
	Expiration time.Time `json:"expiration" gorm:"not null;index"`
	Active     bool      `json:"active" gorm:"not null;index:idx_watches_user_active,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (*Watches) TableName() string {
	return "watches"
}
