package app

import (
	"context"
	"time"

	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
)

type BackfillReport struct {
	Success int
	Failed  int
	Skipped int
}

// BackfillWatches sets up a watch for every connected user that has none. Users are handled
// one at a time with a short pause in between to stay under the provider's rate limits.
func (a *App) BackfillWatches(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport
	first := true
	err := a.eachConnectedUser(func(user models.UserDataDto) error {
		hasActive, err := a.services.watchService.HasActive(user.ID)
		if err != nil {
			a.logger.Errorw("error checking active watch", "user_id", user.ID, "err", err.Error())
			report.Failed++
			return nil
		}
		if hasActive {
			report.Skipped++
			return nil
		}

		if !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.backfillDelay):
			}
		}
		first = false

		if _, err := a.services.watchService.Setup(ctx, user.ID, a.cfg.WebhookURL()); err != nil {
			a.logger.Errorw("error setting up watch", "user_id", user.ID, "err", err.Error())
			report.Failed++
			return nil
		}
		a.logger.Infow("set up watch", "user_id", user.ID, "email", user.Email)
		report.Success++
		return nil
	})
	a.logger.Infow("backfill finished", "success", report.Success, "failed", report.Failed, "skipped", report.Skipped)
	return report, err
}

// DeleteUser cancels the user's push channels and then removes the user together with
// their events, reminders and watches.
func (a *App) DeleteUser(ctx context.Context, userID uint) error {
	if _, err := a.services.userService.GetUserByID(userID); err != nil {
		return err
	}
	stopped, err := a.services.watchService.StopAll(ctx, userID)
	if err != nil {
		return err
	}
	if err := a.services.userService.DeleteUserData(userID); err != nil {
		return err
	}
	a.logger.Infow("deleted user", "user_id", userID, "stopped_watches", stopped)
	return nil
}
