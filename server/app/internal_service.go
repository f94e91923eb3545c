package app

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/config"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	"github.com/sshindanai/google-calendar-reminders/server/internal/gcal"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/notify"
	"github.com/sshindanai/google-calendar-reminders/server/internal/queue"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"github.com/sshindanai/google-calendar-reminders/server/internal/service"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sharedQueueDSN stores jobs in the application database instead of a separate one.
const sharedQueueDSN = "database"

type InternalService struct {
	db            *gorm.DB
	jobs          queue.Queue
	authenticator gcal.Authenticator

	stateService         service.ConnectStateService
	userService          service.UserService
	eventReminderService service.EventReminderService
	syncService          service.SyncService
	watchService         service.WatchService
	webhookService       service.WebhookService
	reminderService      service.ReminderService
}

func ConnectDB(cfg *config.Configuration, log *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Errorw("failed to connect database", "err", err.Error())
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Errorw("failed to connect database", "err", err.Error())
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Errorw("failed to ping database", "err", err.Error())
		return nil, err
	}

	log.Info("connected to database successfully!")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&dbmodel.Users{},
		&dbmodel.CalendarEvents{},
		&dbmodel.EventReminders{},
		&dbmodel.Watches{},
		&dbmodel.Jobs{},
		&dbmodel.ConnectStates{},
	); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

func CalendarConfig(cfg *config.Configuration) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.CalendarClientID,
		ClientSecret: cfg.CalendarClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.SiteUrl + constant.OAUTH_COMPLETE_PATH,
		Scopes:       []string{constant.GOOGLE_CALENDAR_API_URL, constant.USERINFO_EMAIL_SCOPE},
	}
}

func NewInternalService(cfg *config.Configuration, log *zap.Logger) (*InternalService, error) {
	// check required config variable
	if err := cfg.IsValid(); err != nil {
		log.Sugar().Errorw("failed to check sanity", "err", err.Error())
		return nil, err
	}

	// set db connection
	db, err := ConnectDB(cfg, log.Sugar())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}

	jobs, err := buildQueue(cfg, db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build job queue")
	}

	// repositories
	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewCalendarEventRepository(db)
	reminderRepo := repository.NewEventReminderRepository(db)
	watchRepo := repository.NewWatchRepository(db)

	// provider access
	calendarConfig := CalendarConfig(cfg)
	vault := service.NewTokenVault(userRepo, service.NewOAuthRefresher(calendarConfig), cfg.EncryptionSecret, log.Named("vault").Sugar())
	clients := service.NewCalendarClients(vault, gcal.NewFactory())

	// transports
	var mailer notify.Mailer
	if cfg.MailEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFromEmail,
		})
	} else {
		log.Warn("SMTP_HOST is not set, email reminders are disabled")
	}
	var sms notify.SMSSender
	if cfg.SMSEnabled() {
		sms = notify.NewTwilioSender(notify.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioPhoneNumber,
		})
	} else {
		log.Warn("twilio is not configured, sms reminders are disabled")
	}
	notifier := service.NewNotificationService(mailer, sms, cfg.Location(), log.Named("notify").Sugar())

	return &InternalService{
		db:                   db,
		jobs:                 jobs,
		authenticator:        gcal.NewAuthenticator(calendarConfig),
		stateService:         service.NewConnectStateService(repository.NewConnectStateRepository(db), log.Named("oauth").Sugar()),
		userService:          service.NewUserService(userRepo, eventRepo, jobs, cfg.EncryptionSecret, log.Named("user").Sugar()),
		eventReminderService: service.NewEventReminderService(userRepo, eventRepo, reminderRepo, log.Named("reminder").Sugar()),
		syncService:          service.NewSyncService(userRepo, eventRepo, vault, clients, log.Named("sync").Sugar()),
		watchService:         service.NewWatchService(watchRepo, userRepo, vault, clients, log.Named("watch").Sugar()),
		webhookService:       service.NewWebhookService(watchRepo, jobs, log.Named("webhook").Sugar()),
		reminderService:      service.NewReminderService(reminderRepo, eventRepo, userRepo, notifier, log.Named("reminder").Sugar()),
	}, nil
}

func buildQueue(cfg *config.Configuration, db *gorm.DB) (queue.Queue, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.QueueDSN), sharedQueueDSN) {
		return queue.NewGormQueue(db, cfg.QueueCapacity)
	}
	return queue.BuildQueueFromDSN(cfg.QueueDSN, cfg.QueueCapacity)
}

// Ping reports whether the database answers.
func (s *InternalService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *InternalService) Close() error {
	if s.jobs != nil {
		if err := s.jobs.Close(); err != nil {
			return err
		}
	}
	if s.db == nil {
		return nil
	}
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}
	return nil
}
