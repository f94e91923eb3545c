package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/internal/gcal"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
)

// CalendarClients hands out a calendar client bound to one user's vault credential.
type CalendarClients interface {
	ClientFor(ctx context.Context, userID uint) (gcal.Client, error)
}

type calendarClients struct {
	vault   TokenVault
	factory gcal.Factory
}

func NewCalendarClients(vault TokenVault, factory gcal.Factory) CalendarClients {
	return &calendarClients{
		vault:   vault,
		factory: factory,
	}
}

func (c *calendarClients) ClientFor(ctx context.Context, userID uint) (gcal.Client, error) {
	return c.factory.NewClient(ctx, c.vault.TokenSource(ctx, userID))
}

// callWithRefresh runs call and, when it fails with an auth error, refreshes the user's
// credential once and runs it one more time. A second auth failure, or a refresh already
// rejected inside the token source, is returned as ErrAuth.
// Other failures are returned as ErrProvider.
func callWithRefresh(ctx context.Context, vault TokenVault, client gcal.Client, userID uint, call func(gcal.Client) error) error {
	refreshed := false
	for {
		err := call(client)
		if err == nil {
			return nil
		}
		if !gcal.IsAuthError(err) {
			return errors.Wrapf(models.ErrProvider, "%v", err)
		}
		if refreshed {
			return errors.Wrapf(models.ErrAuth, "still unauthorized after refresh: %v", err)
		}
		if isRefreshRejected(err) {
			// the token source already tried the refresh token
			return errors.Wrap(err, "credential refresh rejected")
		}
		if _, err := vault.Refresh(ctx, userID); err != nil {
			return err
		}
		refreshed = true
	}
}
