package dbmodel

import (
	"time"
)

// Jobs backs the durable work queue.
type Jobs struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Kind      string    `gorm:"type:VARCHAR(32);not null"`
	Payload   string    `gorm:"type:TEXT;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (*Jobs) TableName() string {
	return "jobs"
}
