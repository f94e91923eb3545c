package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/queue"
)

func (a *App) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	workers := a.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := a.services.jobs.Dequeue(ctx)
				if !ok {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				a.runJob(ctx, job)
			}
		}()
	}
	a.logger.Infow("started workers", "count", workers)
}

// runJob never lets one job take down its worker.
func (a *App) runJob(ctx context.Context, job queue.Job) {
	atomic.AddInt64(&a.inflight, 1)
	defer atomic.AddInt64(&a.inflight, -1)
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorw("panic running job", "job", job.String(), "panic", fmt.Sprint(r))
		}
	}()

	err := a.handleJob(ctx, job)
	switch {
	case err == nil:
		a.logger.Debugw("job done", "job", job.String())
	case errors.Is(err, models.ErrNotFound):
		// the row was deleted after the job was queued
		a.logger.Debugw("job target gone", "job", job.String(), "err", err.Error())
	default:
		a.logger.Errorw("error running job", "job", job.String(), "err", err.Error())
	}
}

func (a *App) handleJob(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case constant.JOB_SYNC_USER:
		_, err := a.services.syncService.SyncUpcoming(ctx, job.UserID)
		return err
	case constant.JOB_SEND_REMINDER:
		return a.services.reminderService.Dispatch(ctx, job.ReminderID)
	case constant.JOB_SETUP_WATCH:
		_, err := a.services.watchService.Setup(ctx, job.UserID, a.cfg.WebhookURL())
		return err
	case constant.JOB_RENEW_WATCH:
		return a.services.watchService.RenewByID(ctx, job.WatchID, a.cfg.WebhookURL())
	case constant.JOB_DEACTIVATE_WATCH:
		return a.services.watchService.Expire(ctx, job.WatchID, a.cfg.WebhookURL())
	default:
		return errors.Errorf("unknown job kind %q", job.Kind)
	}
}
