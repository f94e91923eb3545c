package repository

import (
	"errors"
	"time"

	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/pagination"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(dbmodel.Users) (dbmodel.Users, error)
	Update(*dbmodel.Users, *dbmodel.Users) (*dbmodel.Users, error)
	UpdateTokens(userID uint, accessToken string, refreshToken string, expiresAt *time.Time) error
	UpdateSettings(*dbmodel.Users) error
	FindByID(uint) (*dbmodel.Users, error)
	FindByGoogleID(string) (*dbmodel.Users, error)
	List(opts models.ListUsersOption) (*pagination.Pagination, error)
	Delete(uint) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (u *userRepository) Create(user dbmodel.Users) (dbmodel.Users, error) {
	if err := u.db.Create(&user).Error; err != nil {
		return dbmodel.Users{}, err
	}
	return user, nil
}

// Update copies the non-empty identity and token fields of updateData onto user and saves it.
func (u *userRepository) Update(user *dbmodel.Users, updateData *dbmodel.Users) (*dbmodel.Users, error) {
	if updateData == nil {
		return nil, errors.New("update data is nil")
	}

	if updateData.Email != "" {
		user.Email = updateData.Email
	}
	if updateData.AccessToken != "" {
		user.AccessToken = updateData.AccessToken
	}
	if updateData.RefreshToken != "" {
		user.RefreshToken = updateData.RefreshToken
	}
	if updateData.TokenExpiresAt != nil {
		user.TokenExpiresAt = updateData.TokenExpiresAt
	}
	if err := u.db.Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateTokens writes only the credential columns so a concurrent settings change is not lost.
// An empty refreshToken keeps the stored one.
func (u *userRepository) UpdateTokens(userID uint, accessToken string, refreshToken string, expiresAt *time.Time) error {
	updates := map[string]interface{}{
		"access_token":     accessToken,
		"token_expires_at": expiresAt,
		"updated_at":       time.Now(),
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	result := u.db.Model(&dbmodel.Users{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateSettings persists the notification preference columns of user.
func (u *userRepository) UpdateSettings(user *dbmodel.Users) error {
	return u.db.Model(user).
		Select("phone_number", "sms_enabled", "notification_method", "sms_consent", "sms_consent_date", "updated_at").
		Updates(map[string]interface{}{
			"phone_number":        user.PhoneNumber,
			"sms_enabled":         user.SMSEnabled,
			"notification_method": user.NotificationMethod,
			"sms_consent":         user.SMSConsent,
			"sms_consent_date":    user.SMSConsentDate,
			"updated_at":          time.Now(),
		}).Error
}

func (u *userRepository) FindByID(id uint) (*dbmodel.Users, error) {
	var user dbmodel.Users
	result := u.db.First(&user, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		// other error
		return nil, result.Error
	}

	return &user, nil
}

func (u *userRepository) FindByGoogleID(googleID string) (*dbmodel.Users, error) {
	var user dbmodel.Users
	result := u.db.First(&user, "google_id = ?", googleID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}

	return &user, nil
}

func (u *userRepository) List(opts models.ListUsersOption) (*pagination.Pagination, error) {
	var users []dbmodel.Users
	paging := &pagination.Pagination{
		Limit: opts.Limit,
		Page:  opts.Page,
	}

	filter := u.db.Model(&dbmodel.Users{})
	if opts.HasAccessToken {
		filter = filter.Where("access_token IS NOT NULL AND access_token <> ''")
	}

	query := filter.Session(&gorm.Session{}).Scopes(pagination.Paginate(&dbmodel.Users{}, paging, filter.Session(&gorm.Session{})))
	// execute
	if err := query.Find(&users).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	paging.Rows = users
	return paging, nil
}

// Delete removes the user with every event, reminder, and watch they own.
func (u *userRepository) Delete(userID uint) (err error) {
	// start transaction
	tx := u.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}

		// commit
		err = tx.Commit().Error
	}()

	eventIDs := tx.Model(&dbmodel.CalendarEvents{}).Select("id").Where("user_id = ?", userID)

	// delete reminders
	if err = tx.Where("calendar_event_id IN (?)", eventIDs).Delete(&dbmodel.EventReminders{}).Error; err != nil {
		return err
	}

	// delete events
	if err = tx.Where("user_id = ?", userID).Delete(&dbmodel.CalendarEvents{}).Error; err != nil {
		return err
	}

	// delete watches
	if err = tx.Where("user_id = ?", userID).Delete(&dbmodel.Watches{}).Error; err != nil {
		return err
	}

	// delete user
	if err = tx.Where("id = ?", userID).Delete(&dbmodel.Users{}).Error; err != nil {
		return err
	}
	return nil
}
