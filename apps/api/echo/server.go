package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
)

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         *user.Service
		TenantSvc       *tenant.Service
		TagSvc          *tag.Service
		ABTestSvc       *abtest.Service
		AlertSvc        *alert.Service
		AlertHub        *alert.Hub
		NotificationSvc *notification.Service
		QuizSvc         *quiz.Service
		SubscriptionSvc *subscription.Service
		DashboardSvc    *dashboard.Service
		Gatherer        prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		tokens   tokenIssuer
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		tokens:   tokenIssuer{conf: deps.Conf},
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(requestMetrics)
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.FrontendBaseURL != "" {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{conf.FrontendBaseURL},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, tenantHeader},
		}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.tokens.jwtConfig("header:" + echo.HeaderAuthorization))
	authed := []echo.MiddlewareFunc{jwt, s.tenantMiddleware}

	registerUserAPI(v1, s, authed)
	registerTenantAPI(v1, s, authed)
	registerTagAPI(v1, s, authed)
	registerABTestAPI(v1, s, authed)
	registerAlertAPI(v1, s, authed)
	registerNotificationAPI(v1, s, authed)
	registerQuizAPI(v1, s, authed)
	registerSubscriptionAPI(v1, s, authed)
	registerDashboardAPI(v1, s, authed)
}

// Start listens until the server is shut down; other listen errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives a signal when a request handler hit an unrecoverable error.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Elimu API!")
}
