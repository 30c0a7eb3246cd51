package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

const contextPlanKey = "plan"

type subscriptionApi struct {
	*Server
}

func registerSubscriptionAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := subscriptionApi{s}

	sg := g.Group("/subscriptions", authed...)

	// plans
	pg := sg.Group("/plans")
	pg.GET("", api.queryPlans)
	pg.POST("", api.createPlan, staffOnly)
	pdg := pg.Group("/:id", api.planMiddleware)
	pdg.GET("", api.retrievePlan)
	pdg.PUT("", api.updatePlan, staffOnly)
	pdg.DELETE("", api.destroyPlan, staffOnly)

	// payments
	ayg := sg.Group("/payments", adminsOnly)
	ayg.GET("", api.queryPayments)
	ayg.GET("/settings", api.approvalSettings, staffOnly)
	ayg.PUT("/settings", api.updateApprovalSettings, staffOnly)
	aydg := ayg.Group("/:id", api.paymentMiddleware)
	aydg.GET("", api.retrievePayment)
	aydg.POST("/approve", api.approve, staffOnly)
	aydg.POST("/reject", api.reject, staffOnly)

	// subscriptions
	ag := sg.Group("", adminsOnly)
	ag.GET("", api.query)
	ag.POST("", api.subscribe, requireTenant)
	ag.GET("/current", api.current, requireTenant)
	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.POST("/change-plan", api.changePlan)
	dg.POST("/cancel", api.cancel)
	dg.POST("/payments", api.submitPayment)
}

// Plans

func (api subscriptionApi) createPlan(ctx echo.Context) error {
	var data subscription.PlanInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PlanInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	p, err := api.deps.SubscriptionSvc.CreatePlan(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api subscriptionApi) queryPlans(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := &subscription.PlanFilter{ActiveOnly: !claims.IsStaff}
	if active, err := boolParam(ctx, "active"); err != nil {
		return err
	} else if active != nil && *active {
		filter.ActiveOnly = true
	}

	plans, err := api.deps.SubscriptionSvc.QueryPlans(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	if plans == nil {
		plans = []subscription.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api subscriptionApi) retrievePlan(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextPlanKey).(subscription.Plan))
}

func (api subscriptionApi) updatePlan(ctx echo.Context) error {
	p := ctx.Get(contextPlanKey).(subscription.Plan)

	var data subscription.PlanInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PlanInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	p, err := api.deps.SubscriptionSvc.UpdatePlan(ctx.Request().Context(), p, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api subscriptionApi) destroyPlan(ctx echo.Context) error {
	if err := api.deps.SubscriptionSvc.DeletePlan(ctx.Request().Context(), ctx.Get(contextPlanKey).(subscription.Plan)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api subscriptionApi) planMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := api.deps.SubscriptionSvc.GetPlan(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		claims, _ := getContextClaims(ctx)
		if !p.IsActive && !claims.IsStaff {
			return subscription.ErrPlanNotFound
		}
		ctx.Set(contextPlanKey, p)
		return next(ctx)
	}
}

// Subscriptions

func (api subscriptionApi) query(ctx echo.Context) error {
	filter := &subscription.SubscriptionFilter{
		TenantID: contextTenant(ctx),
		PlanID:   ctx.QueryParam("plan_id"),
		Statuses: listParams(ctx, "status"),
	}

	subs, err := api.deps.SubscriptionSvc.QuerySubscriptions(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api subscriptionApi) subscribe(ctx echo.Context) error {
	var data subscription.Subscribe
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Subscribe")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	s, err := api.deps.SubscriptionSvc.Subscribe(ctx.Request().Context(), contextTenant(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api subscriptionApi) current(ctx echo.Context) error {
	s, err := api.deps.SubscriptionSvc.Current(ctx.Request().Context(), contextTenant(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api subscriptionApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(subscription.Subscription))
}

func (api subscriptionApi) changePlan(ctx echo.Context) error {
	var data subscription.Subscribe
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Subscribe")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	s, err := api.deps.SubscriptionSvc.ChangePlan(ctx.Request().Context(), ctx.Get(contextObjectKey).(subscription.Subscription), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api subscriptionApi) cancel(ctx echo.Context) error {
	s, err := api.deps.SubscriptionSvc.Cancel(ctx.Request().Context(), ctx.Get(contextObjectKey).(subscription.Subscription))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api subscriptionApi) submitPayment(ctx echo.Context) error {
	var data subscription.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}

	pmt, err := api.deps.SubscriptionSvc.SubmitPayment(ctx.Request().Context(), ctx.Get(contextObjectKey).(subscription.Subscription), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api subscriptionApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		s, err := api.deps.SubscriptionSvc.GetSubscription(ctx.Request().Context(), contextTenant(ctx), ctx.Param("id"))
		if err != nil {
			return err
		}
		ctx.Set(contextObjectKey, s)
		return next(ctx)
	}
}

// Payments

func (api subscriptionApi) queryPayments(ctx echo.Context) error {
	filter := &subscription.PaymentFilter{
		TenantID:       contextTenant(ctx),
		SubscriptionID: ctx.QueryParam("subscription_id"),
		Status:         core.CleanString(ctx.QueryParam("status"), true /* lower */),
	}

	payments, err := api.deps.SubscriptionSvc.QueryPayments(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []subscription.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api subscriptionApi) retrievePayment(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(subscription.Payment))
}

func (api subscriptionApi) approve(ctx echo.Context) error {
	return api.review(ctx, api.deps.SubscriptionSvc.Approve)
}

func (api subscriptionApi) reject(ctx echo.Context) error {
	return api.review(ctx, api.deps.SubscriptionSvc.Reject)
}

type reviewFunc func(context.Context, subscription.Payment, user.User, subscription.Review) (subscription.Payment, error)

func (api subscriptionApi) review(ctx echo.Context, fn reviewFunc) error {
	var data subscription.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	reviewer, err := api.contextUser(ctx)
	if err != nil {
		return err
	}

	pmt, err := fn(ctx.Request().Context(), ctx.Get(contextObjectKey).(subscription.Payment), reviewer, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api subscriptionApi) approvalSettings(ctx echo.Context) error {
	as, err := api.deps.SubscriptionSvc.GetApprovalSettings(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting approval settings")
	}
	return ctx.JSON(http.StatusOK, as)
}

func (api subscriptionApi) updateApprovalSettings(ctx echo.Context) error {
	var data subscription.UpdateApprovalSettings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateApprovalSettings")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	usr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}

	as, err := api.deps.SubscriptionSvc.UpdateApprovalSettings(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating approval settings")
	}
	return ctx.JSON(http.StatusOK, as)
}

func (api subscriptionApi) paymentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		pmt, err := api.deps.SubscriptionSvc.GetPayment(ctx.Request().Context(), contextTenant(ctx), ctx.Param("id"))
		if err != nil {
			return err
		}
		ctx.Set(contextObjectKey, pmt)
		return next(ctx)
	}
}
