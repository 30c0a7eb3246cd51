// Package shared wires the repositories and services used by the API server and the admin CLI.
package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
	"github.com/pqasys/langcsebkg5-sub007/core/dashboard"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
	"github.com/pqasys/langcsebkg5-sub007/core/tag"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	emailsvc "github.com/pqasys/langcsebkg5-sub007/services/email"
	"github.com/pqasys/langcsebkg5-sub007/services/scheduler"
	webhooksvc "github.com/pqasys/langcsebkg5-sub007/services/webhook"
	"github.com/pqasys/langcsebkg5-sub007/storage/database"
	inmemdb "github.com/pqasys/langcsebkg5-sub007/storage/database/inmem"
	boiledrepos "github.com/pqasys/langcsebkg5-sub007/storage/database/sqlboiler"
	sqlxrepos "github.com/pqasys/langcsebkg5-sub007/storage/database/sqlx"
)

// EngineMemory keeps every table in memory; nothing survives a restart.
const EngineMemory = "memory"

type (
	Repositories struct {
		Users         user.Repository
		Tenants       tenant.Repository
		Tags          tag.Repository
		ABTests       abtest.Repository
		Alerts        alert.Repository
		Metrics       alert.MetricSource
		Notifications notification.Repository
		Quizzes       quiz.Repository
		Subscriptions subscription.Repository
		Dashboard     dashboard.Repository
	}

	Container struct {
		Conf   *core.Config
		Logger core.Logger
		DB     *sqlx.DB // nil with the memory engine
		Repos  Repositories
		Mail   core.EmailService

		Users         *user.Service
		Tenants       *tenant.Service
		Tags          *tag.Service
		ABTests       *abtest.Service
		AlertHub      *alert.Hub
		Alerts        *alert.Service
		Notifications *notification.Service
		Quizzes       *quiz.Service
		Subscriptions *subscription.Service
		Dashboard     *dashboard.Service
	}
)

// MemoryRepositories returns repositories backed by a fresh in-memory database.
func MemoryRepositories() Repositories {
	db := inmemdb.Open()
	return Repositories{
		Users:         inmemdb.NewUserRepository(db),
		Tenants:       inmemdb.NewTenantRepository(db),
		Tags:          inmemdb.NewTagRepository(db),
		ABTests:       inmemdb.NewABTestRepository(db),
		Alerts:        inmemdb.NewAlertRepository(db),
		Metrics:       inmemdb.NewMetricSource(db),
		Notifications: inmemdb.NewNotificationRepository(db),
		Quizzes:       inmemdb.NewQuizRepository(db),
		Subscriptions: inmemdb.NewSubscriptionRepository(db),
		Dashboard:     inmemdb.NewDashboardRepository(db),
	}
}

// PostgresRepositories returns repositories backed by db.
func PostgresRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Tenants:       sqlxrepos.NewTenantRepository(db),
		Tags:          sqlxrepos.NewTagRepository(db),
		ABTests:       sqlxrepos.NewABTestRepository(db),
		Alerts:        sqlxrepos.NewAlertRepository(db),
		Metrics:       boiledrepos.NewMetricSource(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Quizzes:       sqlxrepos.NewQuizRepository(db),
		Subscriptions: sqlxrepos.NewSubscriptionRepository(db),
		Dashboard:     sqlxrepos.NewDashboardRepository(db),
	}
}

// Open connects to the configured database, creating and migrating it when migrate is set,
// and builds the services on top of it.
func Open(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool) (*Container, error) {
	if conf.Database.Engine == EngineMemory {
		logger.Warn("using the in-memory database: data will be lost on exit")
		return New(conf, logger, MemoryRepositories(), nil), nil
	}

	if migrate {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrating database")
		}
	}
	c := New(conf, logger, PostgresRepositories(db), nil)
	c.DB = db
	return c, nil
}

// New builds the services. A nil mailSvc picks Sendgrid when an API key is configured, else the console.
func New(conf *core.Config, logger core.Logger, repos Repositories, mailSvc core.EmailService) *Container {
	if mailSvc == nil {
		if conf.SendgridApiKey != "" && !conf.Debug && !conf.TestMode {
			mailSvc = emailsvc.NewSendgridService(conf, logger)
		} else {
			mailSvc = emailsvc.NewConsoleService(conf, logger)
		}
	}

	c := &Container{Conf: conf, Logger: logger, Repos: repos, Mail: mailSvc}
	c.Users = user.NewService(repos.Users, mailSvc)
	c.Tenants = tenant.NewService(repos.Tenants)
	c.Tags = tag.NewService(repos.Tags)
	c.ABTests = abtest.NewService(repos.ABTests)
	c.Notifications = notification.NewService(repos.Notifications, c.Users, mailSvc)
	c.Quizzes = quiz.NewService(repos.Quizzes, c.Tags, c.Notifications, logger)
	c.Subscriptions = subscription.NewService(repos.Subscriptions, c.Tenants, c.Users, c.Notifications, mailSvc, logger)
	c.Dashboard = dashboard.NewService(repos.Dashboard)

	c.AlertHub = alert.NewHub()
	c.Alerts = alert.NewService(repos.Alerts, repos.Metrics, logger, map[string]alert.Notifier{
		alert.ChannelEmail:   alert.NewInboxNotifier(c.Users, c.Notifications),
		alert.ChannelWebhook: webhooksvc.NewNotifier(conf.AppName),
		alert.ChannelStream:  c.AlertHub,
	})
	return c
}

// Jobs returns the periodic jobs; intervals of zero disable a job.
func (c *Container) Jobs() []scheduler.Job {
	jc := c.Conf.Jobs
	lastDigest := make(map[string]time.Time) // {digest: last sent}
	return []scheduler.Job{
		{
			Name:     "evaluate_alerts",
			Interval: jc.AlertEvaluationInterval,
			Run: func(ctx context.Context, _ time.Time) error {
				report, err := c.Alerts.Evaluate(ctx)
				if err != nil {
					return err
				}
				if report.Fired+report.Resolved > 0 {
					c.Logger.Info(fmt.Sprintf("alerts evaluated: %d fired, %d resolved", report.Fired, report.Resolved))
				}
				return nil
			},
		},
		{
			Name:     "payment_warnings",
			Interval: jc.PaymentWarningInterval,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := c.Subscriptions.SendPaymentWarnings(ctx, now.UTC())
				return err
			},
		},
		{
			Name:     "deactivate_tenants",
			Interval: jc.TenantDeactivateInterval,
			Run: func(ctx context.Context, now time.Time) error {
				_, err := c.Subscriptions.DeactivateExpired(ctx, now.UTC())
				return err
			},
		},
		{
			Name:     "notification_digests",
			Interval: jc.DigestInterval,
			Run: func(ctx context.Context, now time.Time) error {
				for _, digest := range []string{notification.DigestDaily, notification.DigestWeekly} {
					if last, ok := lastDigest[digest]; ok && now.Sub(last) < notification.DigestPeriod(digest) {
						continue
					}
					if _, err := c.Notifications.SendDigests(ctx, digest, now.UTC()); err != nil {
						return errors.Wrapf(err, "sending %s digests", digest)
					}
					lastDigest[digest] = now
				}
				return nil
			},
		},
	}
}

// Close stops the alert stream and closes the database.
func (c *Container) Close() error {
	c.AlertHub.Close()
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
