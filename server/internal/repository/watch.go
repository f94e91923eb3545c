package repository

import (
	"time"

	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"gorm.io/gorm"
)

type WatchRepository interface {
	Create(*dbmodel.Watches) error
	FindByID(uint) (*dbmodel.Watches, error)
	FindActiveByChannel(channelID string, resourceID string) (*dbmodel.Watches, error)
	ListActiveByUser(userID uint) ([]dbmodel.Watches, error)
	HasActive(userID uint) (bool, error)
	// ListExpiringBetween returns active watches with from <= expiration < to.
	ListExpiringBetween(from time.Time, to time.Time) ([]dbmodel.Watches, error)
	ListExpired(now time.Time) ([]dbmodel.Watches, error)
	Deactivate(uint) error
}

type watchRepository struct {
	db *gorm.DB
}

func NewWatchRepository(db *gorm.DB) WatchRepository {
	return &watchRepository{
		db: db,
	}
}

func (w *watchRepository) Create(watch *dbmodel.Watches) error {
	return w.db.Create(watch).Error
}

func (w *watchRepository) FindByID(id uint) (*dbmodel.Watches, error) {
	var watch dbmodel.Watches
	result := w.db.First(&watch, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &watch, nil
}

func (w *watchRepository) FindActiveByChannel(channelID string, resourceID string) (*dbmodel.Watches, error) {
	var watch dbmodel.Watches
	result := w.db.First(&watch, "channel_id = ? AND resource_id = ? AND active = ?", channelID, resourceID, true)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &watch, nil
}

func (w *watchRepository) ListActiveByUser(userID uint) ([]dbmodel.Watches, error) {
	var watches []dbmodel.Watches
	if err := w.db.Where("user_id = ? AND active = ?", userID, true).Order("id asc").Find(&watches).Error; err != nil {
		return nil, err
	}
	return watches, nil
}

func (w *watchRepository) HasActive(userID uint) (bool, error) {
	var count int64
	if err := w.db.Model(&dbmodel.Watches{}).Where("user_id = ? AND active = ?", userID, true).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (w *watchRepository) ListExpiringBetween(from time.Time, to time.Time) ([]dbmodel.Watches, error) {
	var watches []dbmodel.Watches
	if err := w.db.Where("active = ? AND expiration >= ? AND expiration < ?", true, from, to).
		Order("expiration asc").Find(&watches).Error; err != nil {
		return nil, err
	}
	return watches, nil
}

func (w *watchRepository) ListExpired(now time.Time) ([]dbmodel.Watches, error) {
	var watches []dbmodel.Watches
	if err := w.db.Where("active = ? AND expiration < ?", true, now).
		Order("expiration asc").Find(&watches).Error; err != nil {
		return nil, err
	}
	return watches, nil
}

func (w *watchRepository) Deactivate(id uint) error {
	return w.db.Model(&dbmodel.Watches{}).Where("id = ?", id).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()}).Error
}
