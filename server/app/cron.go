package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/queue"
	"go.uber.org/zap"
)

const usersPageSize = 100

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "err", err.Error())...)
}

func (a *App) startCron(ctx context.Context) (*cron.Cron, error) {
	logger := cronLogger{logger: a.cronLog}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	entries := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"sync-all", a.cfg.SyncAllSchedule, a.SyncAll},
		{"renew-watches", a.cfg.RenewWatchesSchedule, a.RenewWatches},
		{"check-reminders", a.cfg.CheckRemindersSchedule, a.CheckReminders},
	}
	for _, entry := range entries {
		entry := entry
		_, err := c.AddFunc(entry.spec, func() {
			enqueued, err := entry.run(ctx)
			if err != nil {
				a.cronLog.Errorw("error running cron job", "job", entry.name, "err", err.Error())
				return
			}
			a.cronLog.Debugw("cron job done", "job", entry.name, "enqueued", enqueued)
		})
		if err != nil {
			a.cronLog.Errorw("error starting cron job", "job", entry.name, "err", err.Error())
			return nil, errors.Wrapf(err, "invalid schedule %q for %s", entry.spec, entry.name)
		}
	}
	c.Start()
	return c, nil
}

// SyncAll enqueues a sync for every user holding a credential.
func (a *App) SyncAll(ctx context.Context) (int, error) {
	enqueued := 0
	err := a.eachConnectedUser(func(user models.UserDataDto) error {
		if !a.enqueue(ctx, queue.Job{Kind: constant.JOB_SYNC_USER, UserID: user.ID}) {
			return ctx.Err()
		}
		enqueued++
		return nil
	})
	return enqueued, err
}

// RenewWatches enqueues a renewal for every watch expiring within the renewal window and a
// deactivation for every watch already past its expiration.
func (a *App) RenewWatches(ctx context.Context) (int, error) {
	expiring, err := a.services.watchService.ExpiringSoon()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list expiring watches")
	}
	expired, err := a.services.watchService.Expired()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list expired watches")
	}

	enqueued := 0
	for _, watch := range expiring {
		if a.enqueue(ctx, queue.Job{Kind: constant.JOB_RENEW_WATCH, UserID: watch.UserID, WatchID: watch.ID}) {
			enqueued++
		}
	}
	for _, watch := range expired {
		if a.enqueue(ctx, queue.Job{Kind: constant.JOB_DEACTIVATE_WATCH, UserID: watch.UserID, WatchID: watch.ID}) {
			enqueued++
		}
	}
	return enqueued, nil
}

// CheckReminders enqueues one send job per due reminder.
func (a *App) CheckReminders(ctx context.Context) (int, error) {
	due, err := a.services.reminderService.DueReminders(ctx, a.now())
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, reminder := range due {
		if a.enqueue(ctx, queue.Job{Kind: constant.JOB_SEND_REMINDER, ReminderID: reminder.ID}) {
			enqueued++
		}
	}
	return enqueued, nil
}

func (a *App) enqueue(ctx context.Context, job queue.Job) bool {
	if !a.services.jobs.Enqueue(ctx, job) {
		a.logger.Warnw("error enqueuing job", "job", job.String(), "depth", a.services.jobs.Depth())
		return false
	}
	return true
}

func (a *App) eachConnectedUser(fn func(models.UserDataDto) error) error {
	page := 1
	for {
		result, err := a.services.userService.List(models.ListUsersOption{
			Page:           page,
			Limit:          usersPageSize,
			HasAccessToken: true,
		})
		if err != nil {
			return errors.Wrap(err, "failed to list users")
		}
		if len(result.Users) == 0 {
			return nil
		}
		for _, user := range result.Users {
			if err := fn(user); err != nil {
				return err
			}
		}
		if page >= result.TotalPages {
			return nil
		}
		page++
	}
}
