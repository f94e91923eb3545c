package gcal

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// IsAuthError reports whether err means the credential was rejected or could not be obtained.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrAuth) {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	return false
}

// IsNotFound reports whether the provider says the resource does not exist or is gone.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

// ExpirationTime converts a channel expiration in epoch milliseconds to a time.
func ExpirationTime(channel *calendar.Channel) (time.Time, bool) {
	if channel == nil || channel.Expiration <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(channel.Expiration), true
}
