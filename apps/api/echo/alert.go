package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
)

const contextRuleKey = "rule"

type alertApi struct {
	*Server
}

func registerAlertAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := alertApi{s}

	// browsers cannot set headers on websocket handshakes
	streamJWT := middleware.JWTWithConfig(s.tokens.jwtConfig("query:token"))
	g.GET("/alerts/stream", api.stream, streamJWT, adminsOnly)

	ag := g.Group("/alerts", append(authed, adminsOnly)...)
	ag.GET("", api.query)
	ag.POST("/evaluate", api.evaluate, staffOnly)

	rg := ag.Group("/rules")
	rg.GET("", api.queryRules)
	rg.POST("", api.createRule)
	rdg := rg.Group("/:id", api.ruleMiddleware)
	rdg.GET("", api.retrieveRule)
	rdg.PUT("", api.updateRule)
	rdg.DELETE("", api.destroyRule)

	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.POST("/acknowledge", api.acknowledge)
	dg.POST("/resolve", api.resolve)
}

// scope returns the tenant the request acts upon and whether a staff member asked for every tenant.
func (api alertApi) scope(ctx echo.Context) (string, bool) {
	claims, _ := getContextClaims(ctx)
	tenantID := contextTenant(ctx)
	all := claims.IsStaff && tenantID == "" && ctx.QueryParam("all") == "true"
	return tenantID, all
}

// visible reports whether an institution-owned object is in the requester's scope.
func visible(ctx echo.Context, tenantID string) bool {
	claims, _ := getContextClaims(ctx)
	return claims.IsStaff || tenantID == contextTenant(ctx)
}

// Rules

func (api alertApi) createRule(ctx echo.Context) error {
	var data alert.RuleInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RuleInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	r, err := api.deps.AlertSvc.CreateRule(ctx.Request().Context(), contextTenant(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating alert rule")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api alertApi) queryRules(ctx echo.Context) error {
	tenantID, all := api.scope(ctx)
	filter := &alert.RuleFilter{
		TenantID:   tenantID,
		AllTenants: all,
		Metric:     core.CleanString(ctx.QueryParam("metric"), true /* lower */),
	}
	var err error
	if filter.Enabled, err = boolParam(ctx, "enabled"); err != nil {
		return err
	}

	rules, err := api.deps.AlertSvc.QueryRules(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying alert rules")
	}
	if rules == nil {
		rules = []alert.Rule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api alertApi) retrieveRule(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextRuleKey).(alert.Rule))
}

func (api alertApi) updateRule(ctx echo.Context) error {
	r := ctx.Get(contextRuleKey).(alert.Rule)

	var data alert.RuleInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RuleInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	r, err := api.deps.AlertSvc.UpdateRule(ctx.Request().Context(), r, data)
	if err != nil {
		return errors.Wrap(err, "updating alert rule")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api alertApi) destroyRule(ctx echo.Context) error {
	if err := api.deps.AlertSvc.DeleteRule(ctx.Request().Context(), ctx.Get(contextRuleKey).(alert.Rule)); err != nil {
		return errors.Wrap(err, "deleting alert rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api alertApi) ruleMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		r, err := api.deps.AlertSvc.GetRule(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if !visible(ctx, r.TenantID) {
			return alert.ErrRuleNotFound
		}
		ctx.Set(contextRuleKey, r)
		return next(ctx)
	}
}

// Alerts

func (api alertApi) query(ctx echo.Context) error {
	tenantID, all := api.scope(ctx)
	filter := &alert.AlertFilter{
		TenantID:   tenantID,
		AllTenants: all,
		RuleID:     ctx.QueryParam("rule_id"),
		Statuses:   listParams(ctx, "status"),
		Severity:   core.CleanString(ctx.QueryParam("severity"), true /* lower */),
	}

	alerts, err := api.deps.AlertSvc.QueryAlerts(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying alerts")
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	return ctx.JSON(http.StatusOK, alerts)
}

func (api alertApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(alert.Alert))
}

func (api alertApi) acknowledge(ctx echo.Context) error {
	usr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.deps.AlertSvc.Acknowledge(ctx.Request().Context(), ctx.Get(contextObjectKey).(alert.Alert), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api alertApi) resolve(ctx echo.Context) error {
	usr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.deps.AlertSvc.Resolve(ctx.Request().Context(), ctx.Get(contextObjectKey).(alert.Alert), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api alertApi) evaluate(ctx echo.Context) error {
	rep, err := api.deps.AlertSvc.Evaluate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "evaluating alert rules")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api alertApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		a, err := api.deps.AlertSvc.GetAlert(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if !visible(ctx, a.TenantID) {
			return alert.ErrNotFound
		}
		ctx.Set(contextObjectKey, a)
		return next(ctx)
	}
}
