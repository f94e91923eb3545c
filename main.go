package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/app"
	"github.com/sshindanai/google-calendar-reminders/server/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	cliApp := &cli.App{
		Name:  "calremind",
		Usage: "Mirror Google Calendar events and send email and SMS reminders.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: "Load variables from these files before reading the environment."},
			&cli.StringFlag{Name: "log-level", EnvVars: []string{"LOG_LEVEL"}, Usage: "debug, info, warn or error."},
			&cli.StringFlag{Name: "log-format", EnvVars: []string{"LOG_FORMAT"}, Usage: "console or json."},
		},
		Commands: []*cli.Command{
			serveCommand(),
			triggerCommand("sync-all", "Queue a calendar sync for every connected user and wait for it.", (*app.App).SyncAll),
			triggerCommand("renew-watches", "Renew watches close to expiry and replace expired ones.", (*app.App).RenewWatches),
			triggerCommand("check-reminders", "Send every reminder that is due now.", (*app.App).CheckReminders),
			backfillCommand(),
			migrateCommand(),
			deleteUserCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type environment struct {
	cfg    *config.Configuration
	logger *zap.Logger
}

func loadEnvironment(c *cli.Context) (*environment, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}
	// flags win over whatever the env file set
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return &environment{cfg: cfg, logger: logger}, nil
}

// withApp builds the services, runs fn and releases everything once it returns.
func withApp(c *cli.Context, fn func(ctx context.Context, a *app.App, env *environment) error) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	services, err := app.NewInternalService(env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			env.logger.Sugar().Warnw("error closing services", "err", err.Error())
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app.New(env.cfg, services, env.logger), env)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP endpoints, the workers and the periodic jobs.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", EnvVars: []string{"HTTP_ADDR"}, Usage: "Listen address."},
			&cli.IntFlag{Name: "workers", EnvVars: []string{"WORKERS"}, Usage: "Number of job workers."},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.App, env *environment) error {
				if c.IsSet("addr") {
					env.cfg.HTTPAddr = c.String("addr")
				}
				if c.IsSet("workers") {
					env.cfg.Workers = c.Int("workers")
				}
				return a.Serve(ctx)
			})
		},
	}
}

func triggerCommand(name, usage string, run func(*app.App, context.Context) (int, error)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.App, env *environment) error {
				return a.RunOnce(ctx, func(ctx context.Context) error {
					enqueued, err := run(a, ctx)
					env.logger.Sugar().Infow("queued jobs", "command", name, "enqueued", enqueued)
					return err
				})
			})
		},
	}
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill-watches",
		Usage: "Set up a watch for every connected user that has none.",
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.App, env *environment) error {
				report, err := a.BackfillWatches(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("success: %d, failed: %d, skipped: %d\n", report.Success, report.Failed, report.Skipped)
				return nil
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database tables and exit.",
		Action: func(c *cli.Context) error {
			env, err := loadEnvironment(c)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()

			db, err := app.ConnectDB(env.cfg, env.logger.Sugar())
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := app.Migrate(db); err != nil {
				return err
			}
			env.logger.Info("database is up to date")
			return nil
		},
	}
}

func deleteUserCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-user",
		Usage:     "Delete a user and everything stored for them.",
		ArgsUsage: "<user id>",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "id", Required: true, Usage: "User id to delete."},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *app.App, env *environment) error {
				userID := c.Uint("id")
				if err := a.DeleteUser(ctx, userID); err != nil {
					return errors.Wrapf(err, "failed to delete user %d", userID)
				}
				return nil
			})
		},
	}
}
