package repository

import (
	"time"

	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"gorm.io/gorm"
)

type ConnectStateRepository interface {
	Insert(state dbmodel.ConnectStates) error
	// Take deletes state and reports whether it existed and was created at or after notBefore.
	Take(state string, notBefore time.Time) (bool, error)
	DeleteOlderThan(before time.Time) (int64, error)
}

type connectStateRepository struct {
	db *gorm.DB
}

func NewConnectStateRepository(db *gorm.DB) ConnectStateRepository {
	return &connectStateRepository{
		db: db,
	}
}

func (c *connectStateRepository) Insert(state dbmodel.ConnectStates) error {
	// insert state
	if err := c.db.Create(&state).Error; err != nil {
		return err
	}
	return nil
}

func (c *connectStateRepository) Take(state string, notBefore time.Time) (bool, error) {
	var taken []dbmodel.ConnectStates
	result := c.db.Raw("DELETE FROM connect_states WHERE state = ? RETURNING state, created_at", state).Scan(&taken)
	if result.Error != nil {
		return false, result.Error
	}
	if len(taken) == 0 {
		return false, nil
	}
	return !taken[0].CreatedAt.Before(notBefore), nil
}

func (c *connectStateRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := c.db.Where("created_at < ?", before).Delete(&dbmodel.ConnectStates{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
