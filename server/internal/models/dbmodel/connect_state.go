package dbmodel

import "time"

// ConnectStates holds the anti-forgery state of an authorization in progress.
type ConnectStates struct {
	State     string    `json:"state" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (*ConnectStates) TableName() string {
	return "connect_states"
}
