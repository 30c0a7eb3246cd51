package echoapi

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

const tenantHeader = "X-Tenant-ID"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "elimu_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "elimu_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration)
}

func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)

		code := ctx.Response().Status
		if err != nil {
			if herr, ok := errors.Cause(err).(*echo.HTTPError); ok {
				code = herr.Code
			}
		}
		route, method := ctx.Path(), ctx.Request().Method
		httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
		httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		return err
	}
}

// rolesMiddleware lets through users holding a role from any of the given role families.
func rolesMiddleware(prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.HasRolePrefix(prefixes...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

var (
	staffOnly    = rolesMiddleware(user.RoleStaff)
	adminsOnly   = rolesMiddleware(user.RoleStaff, user.RoleAdmin)
	teachersOnly = rolesMiddleware(user.RoleStaff, user.RoleAdmin, user.RoleTeacher)
	studentsOnly = rolesMiddleware(user.RoleStudent)
)

// tenantMiddleware resolves the institution a request acts upon.
// Institution members are pinned to their own tenant; staff pick one with the X-Tenant-ID header.
func (s *Server) tenantMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}

		tenantID := claims.TenantID
		if claims.IsStaff {
			tenantID = ctx.Request().Header.Get(tenantHeader)
			if tenantID != "" {
				if _, err = s.deps.TenantSvc.GetByID(ctx.Request().Context(), tenantID); err != nil {
					return err
				}
			}
		} else if err = s.deps.TenantSvc.CheckActive(ctx.Request().Context(), tenantID); err != nil {
			if err == tenant.ErrInactive || err == tenant.ErrNotFound {
				return errTenantUnavailable
			}
			return errors.Wrap(err, "checking tenant")
		}

		ctx.Set(contextTenantKey, tenantID)
		return next(ctx)
	}
}

// contextTenant returns the tenant scope of the request; empty for staff acting platform-wide.
func contextTenant(ctx echo.Context) string {
	id, _ := ctx.Get(contextTenantKey).(string)
	return id
}

func requireTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if contextTenant(ctx) == "" {
			return errTenantRequired
		}
		return next(ctx)
	}
}

// limiterIdleTTL is how long a client's limiter is kept without requests; by then its burst is refilled.
const limiterIdleTTL = time.Minute

// ipRateLimiter throttles a route per client IP. Idle clients are swept on access.
type ipRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

func (rl *ipRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= limiterIdleTTL {
		for k, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) >= limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.limiters[ip]
	if !ok {
		cl = &clientLimiter{Limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.Limiter
}

func (rl *ipRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *ipRateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !rl.get(ctx.RealIP()).Allow() {
			return errTooManyRequests
		}
		return next(ctx)
	}
}

// authRateLimit returns the throttling middleware of credential endpoints, if enabled.
func (s *Server) authRateLimit() []echo.MiddlewareFunc {
	perMinute := s.deps.Conf.Server.AuthRateLimit
	if perMinute <= 0 {
		return nil
	}
	return []echo.MiddlewareFunc{newIPRateLimiter(perMinute).middleware}
}
