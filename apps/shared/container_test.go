package shared

import (
	"context"
	"io"
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	emailsvc "github.com/pqasys/langcsebkg5-sub007/services/email"
	logsvc "github.com/pqasys/langcsebkg5-sub007/services/logger"
	"github.com/pqasys/langcsebkg5-sub007/services/scheduler"
)

func testConfig() *core.Config {
	conf := &core.Config{AppName: "Elimu", Env: "TEST", TestMode: true, DefaultFromEmail: mail.Address{Address: "noreply@elimu.test"}}
	conf.Database.Engine = EngineMemory
	conf.Jobs = core.JobsConfig{
		AlertEvaluationInterval: time.Minute,
		DigestInterval:          time.Hour,
	}
	return conf
}

func testLogger(t *testing.T, conf *core.Config) core.Logger {
	t.Helper()
	local, err := logsvc.NewLocal(core.LogConfig{Level: "error"}, io.Discard)
	require.NoError(t, err)
	return logsvc.NewRollbarLogger(local, conf)
}

func TestOpen_memory(t *testing.T) {
	conf := testConfig()
	c, err := Open(context.Background(), conf, testLogger(t, conf), true)
	require.NoError(t, err)
	assert.Nil(t, c.DB)
	assert.NotNil(t, c.Mail)
	for name, svc := range map[string]interface{}{
		"users":         c.Users,
		"tenants":       c.Tenants,
		"tags":          c.Tags,
		"abtests":       c.ABTests,
		"alerts":        c.Alerts,
		"notifications": c.Notifications,
		"quizzes":       c.Quizzes,
		"subscriptions": c.Subscriptions,
		"dashboard":     c.Dashboard,
	} {
		assert.NotNil(t, svc, name)
	}
	assert.NoError(t, c.Close())
}

func TestContainer_Jobs(t *testing.T) {
	conf := testConfig()
	logger := testLogger(t, conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	c := New(conf, logger, MemoryRepositories(), mailSvc)
	t.Cleanup(func() { _ = c.Close() })

	jobs := c.Jobs()
	intervals := make(map[string]time.Duration, len(jobs))
	for _, j := range jobs {
		intervals[j.Name] = j.Interval
	}
	assert.Equal(t, map[string]time.Duration{
		"evaluate_alerts":      time.Minute,
		"payment_warnings":     0,
		"deactivate_tenants":   0,
		"notification_digests": time.Hour,
	}, intervals)

	ctx := context.Background()
	usr, err := c.Users.Create(ctx, user.NewUser{
		TenantID:        "t1",
		Name:            "Alice",
		Email:           "alice@greenhill.test",
		Password:        "s3cr3t-Pa55",
		PasswordConfirm: "s3cr3t-Pa55",
		Roles:           []string{user.RoleStudent},
	})
	require.NoError(t, err)
	daily := notification.DigestDaily
	_, err = c.Notifications.UpdatePreferences(ctx, usr.ID, notification.PreferenceUpdates{Preferences: []notification.PreferenceUpdate{
		{Category: notification.CategoryQuizResults, Digest: &daily},
	}})
	require.NoError(t, err)

	now := time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)
	clock := now
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return clock }
	t.Cleanup(func() { core.NowFunc = orig })
	notify := func() {
		t.Helper()
		require.NoError(t, c.Notifications.Notify(ctx, []user.User{usr}, notification.Message{
			Category: notification.CategoryQuizResults,
			Title:    "Fractions: 80%",
		}))
	}

	var digests scheduler.Job
	for _, j := range jobs {
		if j.Name == "notification_digests" {
			digests = j
		}
	}
	sched := scheduler.New(logger)

	notify()
	require.NoError(t, sched.RunOnce(ctx, digests, now))
	assert.Len(t, mailSvc.Sent(), 1)

	// the daily digest goes out once a day at most
	clock = now.Add(2 * time.Hour)
	notify()
	require.NoError(t, sched.RunOnce(ctx, digests, now.Add(time.Hour)))
	assert.Len(t, mailSvc.Sent(), 1)

	require.NoError(t, sched.RunOnce(ctx, digests, now.Add(25*time.Hour)))
	assert.Len(t, mailSvc.Sent(), 2)
}
