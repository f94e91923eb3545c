package app

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/config"
	"go.uber.org/zap"
)

const (
	shutdownTimeout  = 10 * time.Second
	idlePollInterval = 200 * time.Millisecond
)

// App runs the worker pool, the periodic triggers and the HTTP surface on top of InternalService.
type App struct {
	cfg      *config.Configuration
	logger   *zap.SugaredLogger
	cronLog  *zap.SugaredLogger
	services *InternalService
	router   *mux.Router

	ping          func(ctx context.Context) error
	now           func() time.Time
	backfillDelay time.Duration
	inflight      int64
}

func New(cfg *config.Configuration, services *InternalService, log *zap.Logger) *App {
	a := &App{
		cfg:           cfg,
		logger:        log.Sugar(),
		cronLog:       log.Named("cron").Sugar(),
		services:      services,
		ping:          services.Ping,
		now:           time.Now,
		backfillDelay: 500 * time.Millisecond,
	}
	a.registerRouter()
	return a
}

func (a *App) Handler() http.Handler {
	return a.router
}

// Serve blocks until ctx is cancelled or the HTTP server fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	a.startWorkers(ctx, &wg)

	scheduler, err := a.startCron(ctx)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Infow("listening", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		serveErr = err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnw("error shutting down http server", "err", err.Error())
	}
	cancel()
	wg.Wait()

	if serveErr != nil {
		return errors.Wrap(serveErr, "http server failed")
	}
	a.logger.Info("stopped")
	return nil
}

// RunOnce starts the worker pool, runs trigger, and returns once the queue has drained.
func (a *App) RunOnce(ctx context.Context, trigger func(context.Context) error) error {
	workerCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	a.startWorkers(workerCtx, &wg)

	err := trigger(ctx)
	a.waitIdle(ctx)
	cancel()
	wg.Wait()
	return err
}

// waitIdle returns after two consecutive polls see an empty queue and no job in progress.
func (a *App) waitIdle(ctx context.Context) {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	idle := 0
	for idle < 2 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a.services.jobs.Depth() == 0 && atomic.LoadInt64(&a.inflight) == 0 {
			idle++
		} else {
			idle = 0
		}
	}
}
