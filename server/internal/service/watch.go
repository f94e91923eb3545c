package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	"github.com/sshindanai/google-calendar-reminders/server/internal/gcal"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
)

type WatchService interface {
	// Setup retires every active watch of the user and registers a new one.
	Setup(ctx context.Context, userID uint, callbackURL string) (*dbmodel.Watches, error)
	// Stop cancels the channel with the provider and marks it inactive on success.
	Stop(ctx context.Context, watch *dbmodel.Watches) bool
	Renew(ctx context.Context, old *dbmodel.Watches, callbackURL string) (*dbmodel.Watches, error)
	RenewByID(ctx context.Context, watchID uint, callbackURL string) error
	// Expire deactivates a watch the provider has already dropped, without calling the provider,
	// and registers a replacement when the user has no other active watch.
	Expire(ctx context.Context, watchID uint, callbackURL string) error
	ExpiringSoon() ([]dbmodel.Watches, error)
	Expired() ([]dbmodel.Watches, error)
	HasActive(userID uint) (bool, error)
	// StopAll cancels every active channel of the user. Channels the provider refuses to stop
	// are still deactivated locally. It returns how many the provider confirmed.
	StopAll(ctx context.Context, userID uint) (int, error)
}

type watchService struct {
	watchRepo repository.WatchRepository
	userRepo  repository.UserRepository
	vault     TokenVault
	clients   CalendarClients
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewWatchService(watchRepo repository.WatchRepository, userRepo repository.UserRepository, vault TokenVault, clients CalendarClients, logger *zap.SugaredLogger) WatchService {
	return &watchService{
		watchRepo: watchRepo,
		userRepo:  userRepo,
		vault:     vault,
		clients:   clients,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *watchService) Setup(ctx context.Context, userID uint, callbackURL string) (*dbmodel.Watches, error) {
	user, err := w.userRepo.FindByID(userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	if user == nil {
		return nil, errors.Wrapf(models.ErrNotFound, "user %d", userID)
	}

	client, err := w.clients.ClientFor(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create calendar client")
	}

	actives, err := w.watchRepo.ListActiveByUser(userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active watches")
	}
	for i := range actives {
		if w.stopWith(ctx, client, &actives[i]) {
			continue
		}
		// keep one active watch per user even when the provider refused the stop
		w.logger.Warnw("previous watch not stopped, deactivating locally", "user_id", userID, "channel_id", actives[i].ChannelID)
		if err := w.watchRepo.Deactivate(actives[i].ID); err != nil {
			return nil, errors.Wrap(err, "failed to deactivate previous watch")
		}
	}

	channelID := uuid.New().String()
	token := uuid.New().String()
	var channel *calendar.Channel
	err = callWithRefresh(ctx, w.vault, client, userID, func(c gcal.Client) error {
		var err error
		channel, err = c.Watch(ctx, channelID, callbackURL, token)
		return err
	})
	if err != nil {
		w.logger.Errorw("error setting up calendar watch", "user_id", userID, "err", err.Error())
		return nil, err
	}

	expiration, ok := gcal.ExpirationTime(channel)
	if !ok {
		// no expiration reported, assume the provider's usual channel lifetime
		expiration = w.now().Add(constant.WATCH_DEFAULT_TTL)
	}
	watch := &dbmodel.Watches{
		UserID:     userID,
		ChannelID:  channelID,
		ResourceID: channel.ResourceId,
		Token:      token,
		Expiration: expiration,
		Active:     true,
	}
	if err := w.watchRepo.Create(watch); err != nil {
		w.logger.Errorw("error saving watch, stopping remote channel", "user_id", userID, "channel_id", channelID, "err", err.Error())
		if stopErr := client.Stop(ctx, channelID, channel.ResourceId); stopErr != nil {
			w.logger.Warnw("error stopping orphan channel", "channel_id", channelID, "err", stopErr.Error())
		}
		return nil, errors.Wrap(err, "failed to save watch")
	}

	w.logger.Infow("set up watch", "user_id", userID, "channel_id", channelID, "expiration", expiration)
	return watch, nil
}

func (w *watchService) Stop(ctx context.Context, watch *dbmodel.Watches) bool {
	client, err := w.clients.ClientFor(ctx, watch.UserID)
	if err != nil {
		w.logger.Errorw("error creating calendar client", "user_id", watch.UserID, "err", err.Error())
		return false
	}
	return w.stopWith(ctx, client, watch)
}

func (w *watchService) stopWith(ctx context.Context, client gcal.Client, watch *dbmodel.Watches) bool {
	err := callWithRefresh(ctx, w.vault, client, watch.UserID, func(c gcal.Client) error {
		return c.Stop(ctx, watch.ChannelID, watch.ResourceID)
	})
	if err != nil {
		w.logger.Errorw("error stopping watch", "user_id", watch.UserID, "channel_id", watch.ChannelID, "err", err.Error())
		return false
	}
	if err := w.watchRepo.Deactivate(watch.ID); err != nil {
		w.logger.Errorw("error deactivating stopped watch", "channel_id", watch.ChannelID, "err", err.Error())
		return false
	}
	watch.Active = false
	w.logger.Infow("stopped watch", "user_id", watch.UserID, "channel_id", watch.ChannelID)
	return true
}

func (w *watchService) Renew(ctx context.Context, old *dbmodel.Watches, callbackURL string) (*dbmodel.Watches, error) {
	if old.Active {
		w.Stop(ctx, old)
	}
	return w.Setup(ctx, old.UserID, callbackURL)
}

func (w *watchService) RenewByID(ctx context.Context, watchID uint, callbackURL string) error {
	watch, err := w.watchRepo.FindByID(watchID)
	if err != nil {
		return errors.Wrap(err, "failed to find watch")
	}
	if watch == nil {
		return errors.Wrapf(models.ErrNotFound, "watch %d", watchID)
	}
	if !watch.Active {
		// already replaced by an earlier delivery of this job
		return nil
	}
	_, err = w.Renew(ctx, watch, callbackURL)
	return err
}

func (w *watchService) Expire(ctx context.Context, watchID uint, callbackURL string) error {
	watch, err := w.watchRepo.FindByID(watchID)
	if err != nil {
		return errors.Wrap(err, "failed to find watch")
	}
	if watch == nil {
		return errors.Wrapf(models.ErrNotFound, "watch %d", watchID)
	}
	if watch.Active {
		w.logger.Warnw("deactivating expired watch", "user_id", watch.UserID, "channel_id", watch.ChannelID)
		if err := w.watchRepo.Deactivate(watch.ID); err != nil {
			return errors.Wrap(err, "failed to deactivate watch")
		}
	}

	hasActive, err := w.watchRepo.HasActive(watch.UserID)
	if err != nil {
		return errors.Wrap(err, "failed to check active watches")
	}
	if hasActive {
		return nil
	}
	_, err = w.Setup(ctx, watch.UserID, callbackURL)
	return err
}

func (w *watchService) ExpiringSoon() ([]dbmodel.Watches, error) {
	now := w.now()
	return w.watchRepo.ListExpiringBetween(now, now.Add(constant.WATCH_RENEW_WINDOW))
}

func (w *watchService) Expired() ([]dbmodel.Watches, error) {
	return w.watchRepo.ListExpired(w.now())
}

func (w *watchService) HasActive(userID uint) (bool, error) {
	return w.watchRepo.HasActive(userID)
}

func (w *watchService) StopAll(ctx context.Context, userID uint) (int, error) {
	actives, err := w.watchRepo.ListActiveByUser(userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active watches")
	}
	if len(actives) == 0 {
		return 0, nil
	}

	client, err := w.clients.ClientFor(ctx, userID)
	if err != nil {
		w.logger.Warnw("error creating calendar client, deactivating watches locally", "user_id", userID, "err", err.Error())
		client = nil
	}
	stopped := 0
	for i := range actives {
		if client != nil && w.stopWith(ctx, client, &actives[i]) {
			stopped++
			continue
		}
		if err := w.watchRepo.Deactivate(actives[i].ID); err != nil {
			return stopped, errors.Wrap(err, "failed to deactivate watch")
		}
	}
	return stopped, nil
}
