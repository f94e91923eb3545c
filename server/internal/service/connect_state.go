package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
)

const connectStateTTL = 10 * time.Minute

// ConnectStateService issues single-use state values for the authorization redirect.
type ConnectStateService interface {
	Create() (string, error)
	// Consume reports whether state was issued here and has not expired. A state can be consumed once.
	Consume(state string) (bool, error)
}

type connectStateService struct {
	connectStateRepository repository.ConnectStateRepository
	logger                 *zap.SugaredLogger
	now                    func() time.Time
}

func NewConnectStateService(connectStateRepository repository.ConnectStateRepository, logger *zap.SugaredLogger) ConnectStateService {
	return &connectStateService{
		connectStateRepository: connectStateRepository,
		logger:                 logger,
		now:                    time.Now,
	}
}

func (c *connectStateService) Create() (string, error) {
	now := c.now()
	if pruned, err := c.connectStateRepository.DeleteOlderThan(now.Add(-connectStateTTL)); err != nil {
		c.logger.Warnw("error when prune connect states", "err", err.Error())
	} else if pruned > 0 {
		c.logger.Debugw("pruned connect states", "count", pruned)
	}

	state := uuid.New().String()
	if err := c.connectStateRepository.Insert(dbmodel.ConnectStates{
		State:     state,
		CreatedAt: now,
	}); err != nil {
		c.logger.Errorw("error when insert connect state", "err", err.Error())
		return "", err
	}
	return state, nil
}

func (c *connectStateService) Consume(state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	return c.connectStateRepository.Take(state, c.now().Add(-connectStateTTL))
}
