package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	echoapi "github.com/pqasys/langcsebkg5-sub007/apps/api/echo"
	"github.com/pqasys/langcsebkg5-sub007/apps/shared"
	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	logsvc "github.com/pqasys/langcsebkg5-sub007/services/logger"
	"github.com/pqasys/langcsebkg5-sub007/services/scheduler"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.Conf

	local, err := logsvc.NewLocal(conf.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(local, conf)
	defer logger.Flush()

	c, err := shared.Open(context.Background(), conf, logger, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing container: %v", err), err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(logger)
	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service and Jobs

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         c.Users,
		TenantSvc:       c.Tenants,
		TagSvc:          c.Tags,
		ABTestSvc:       c.ABTests,
		AlertSvc:        c.Alerts,
		AlertHub:        c.AlertHub,
		NotificationSvc: c.Notifications,
		QuizSvc:         c.Quizzes,
		SubscriptionSvc: c.Subscriptions,
		DashboardSvc:    c.Dashboard,
	})
	go server.Start()

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	var jobs errgroup.Group
	if !conf.Jobs.Disabled {
		sched := scheduler.New(logger, c.Jobs()...)
		jobs.Go(func() error { return sched.Start(jobsCtx) })
	}

	// =========================================================================
	// Shutdown

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-server.Errors():
		stopJobs()
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-osSignals:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	stopJobs()
	if err = jobs.Wait(); err != nil {
		logger.Error(fmt.Sprintf("stopping jobs: %v", err), errors.WithStack(err))
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}
