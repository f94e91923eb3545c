package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/sshindanai/google-calendar-reminders/server/constant"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/queue"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
)

type WebhookService interface {
	// Handle classifies one push notification and enqueues a sync when the calendar changed.
	// Duplicate notifications enqueue duplicate syncs; the sync itself is idempotent.
	Handle(ctx context.Context, notification models.WebhookNotification) models.WebhookResult
}

type webhookService struct {
	watchRepo repository.WatchRepository
	jobs      queue.Queue
	logger    *zap.SugaredLogger
}

func NewWebhookService(watchRepo repository.WatchRepository, jobs queue.Queue, logger *zap.SugaredLogger) WebhookService {
	return &webhookService{
		watchRepo: watchRepo,
		jobs:      jobs,
		logger:    logger,
	}
}

func (s *webhookService) Handle(ctx context.Context, n models.WebhookNotification) (result models.WebhookResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("panic processing webhook", "channel_id", n.ChannelID, "panic", fmt.Sprint(r))
			result = models.WebhookFailed
		}
	}()

	s.logger.Infow("received webhook", "channel_id", n.ChannelID, "state", n.ResourceState, "resource_id", n.ResourceID)

	// handshake sent when the channel is created
	if n.ResourceState == constant.RESOURCE_STATE_SYNC {
		return models.WebhookAcknowledged
	}

	watch, err := s.watchRepo.FindActiveByChannel(n.ChannelID, n.ResourceID)
	if err != nil {
		s.logger.Errorw("error finding watch", "channel_id", n.ChannelID, "err", err.Error())
		return models.WebhookFailed
	}
	if watch == nil {
		s.logger.Warnw("watch not found", "channel_id", n.ChannelID)
		return models.WebhookNotFound
	}
	if watch.Token != "" && subtle.ConstantTimeCompare([]byte(watch.Token), []byte(n.ChannelToken)) != 1 {
		s.logger.Warnw("channel token mismatch", "channel_id", n.ChannelID)
		return models.WebhookNotFound
	}

	if n.ResourceState != constant.RESOURCE_STATE_EXISTS {
		return models.WebhookAcknowledged
	}

	job := queue.Job{Kind: constant.JOB_SYNC_USER, UserID: watch.UserID}
	if !s.jobs.Enqueue(ctx, job) {
		s.logger.Errorw("error enqueuing sync", "user_id", watch.UserID, "channel_id", n.ChannelID)
		return models.WebhookFailed
	}
	s.logger.Infow("calendar changed, sync enqueued", "user_id", watch.UserID)
	return models.WebhookAcknowledged
}
