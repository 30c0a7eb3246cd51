package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
)

type abtestApi struct {
	*Server
}

func registerABTestAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := abtestApi{s}

	tg := g.Group("/abtests", append(authed, requireTenant)...)
	tg.GET("", api.query, adminsOnly)
	tg.POST("", api.create, adminsOnly)

	dg := tg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve, adminsOnly)
	dg.PUT("", api.update, adminsOnly)
	dg.DELETE("", api.destroy, adminsOnly)
	dg.POST("/start", api.start, adminsOnly)
	dg.POST("/pause", api.pause, adminsOnly)
	dg.POST("/complete", api.complete, adminsOnly)
	dg.GET("/results", api.results, adminsOnly)

	// any member of the institution takes part in running tests
	dg.GET("/assign", api.assign)
	dg.POST("/sessions", api.recordSession)
}

func (api abtestApi) create(ctx echo.Context) error {
	var data abtest.TestInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	t, err := api.deps.ABTestSvc.Create(ctx.Request().Context(), contextTenant(ctx), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating ab test")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api abtestApi) query(ctx echo.Context) error {
	filter := &abtest.QueryFilter{
		TenantID: contextTenant(ctx),
		Status:   ctx.QueryParam("status"),
		Search:   ctx.QueryParam("search"),
	}
	filter.Clean()

	tests, err := api.deps.ABTestSvc.Query(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying ab tests")
	}
	if tests == nil {
		tests = []abtest.Test{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api abtestApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(abtest.Test))
}

func (api abtestApi) update(ctx echo.Context) error {
	t := ctx.Get(contextObjectKey).(abtest.Test)

	var data abtest.TestInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TestInput")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	t, err := api.deps.ABTestSvc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api abtestApi) destroy(ctx echo.Context) error {
	if err := api.deps.ABTestSvc.Delete(ctx.Request().Context(), ctx.Get(contextObjectKey).(abtest.Test)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api abtestApi) start(ctx echo.Context) error {
	return api.transition(ctx, api.deps.ABTestSvc.Start)
}

func (api abtestApi) pause(ctx echo.Context) error {
	return api.transition(ctx, api.deps.ABTestSvc.Pause)
}

func (api abtestApi) complete(ctx echo.Context) error {
	return api.transition(ctx, api.deps.ABTestSvc.Complete)
}

func (api abtestApi) transition(ctx echo.Context, fn func(ctx context.Context, t abtest.Test) (abtest.Test, error)) error {
	t, err := fn(ctx.Request().Context(), ctx.Get(contextObjectKey).(abtest.Test))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api abtestApi) results(ctx echo.Context) error {
	res, err := api.deps.ABTestSvc.Results(ctx.Request().Context(), ctx.Get(contextObjectKey).(abtest.Test))
	if err != nil {
		return errors.Wrap(err, "computing ab test results")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api abtestApi) assign(ctx echo.Context) error {
	subjectID := ctx.QueryParam("subject_id")
	if subjectID == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		subjectID = claims.Subject
	}

	a, err := api.deps.ABTestSvc.Assign(ctx.Get(contextObjectKey).(abtest.Test), subjectID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api abtestApi) recordSession(ctx echo.Context) error {
	var data abtest.RecordSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecordSession")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sess, err := api.deps.ABTestSvc.RecordSession(ctx.Request().Context(), ctx.Get(contextObjectKey).(abtest.Test), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api abtestApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := api.deps.ABTestSvc.Get(ctx.Request().Context(), contextTenant(ctx), ctx.Param("id"))
		if err != nil {
			return err
		}
		ctx.Set(contextObjectKey, t)
		return next(ctx)
	}
}
