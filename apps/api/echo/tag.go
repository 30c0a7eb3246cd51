package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/tag"
)

type tagApi struct {
	*Server
}

func registerTagAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := tagApi{s}

	tg := g.Group("/tags", append(authed, requireTenant)...)
	tg.GET("", api.query)
	tg.POST("", api.create, teachersOnly)
	tg.DELETE("", api.destroyMultiple, teachersOnly)

	dg := tg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, teachersOnly)
	dg.DELETE("", api.destroy, teachersOnly)
}

func (api tagApi) create(ctx echo.Context) error {
	var data tag.NewTag
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTag")
	}
	tenantID := contextTenant(ctx)
	if err := data.Validate(ctx.Request().Context(), tenantID, api.deps.TagSvc); err != nil {
		return err
	}

	t, err := api.deps.TagSvc.Create(ctx.Request().Context(), tenantID, data)
	if err != nil {
		return errors.Wrap(err, "creating tag")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api tagApi) query(ctx echo.Context) error {
	filter := &tag.QueryFilter{
		TenantID: contextTenant(ctx),
		Search:   ctx.QueryParam("search"),
		IDs:      listParams(ctx, "id"),
	}
	filter.Clean()

	tags, err := api.deps.TagSvc.Query(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying tags")
	}
	if tags == nil {
		tags = []tag.Tag{}
	}
	return ctx.JSON(http.StatusOK, tags)
}

func (api tagApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(tag.Tag))
}

func (api tagApi) update(ctx echo.Context) error {
	t := ctx.Get(contextObjectKey).(tag.Tag)

	var data tag.UpdateTag
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTag")
	}
	if err := data.Validate(ctx.Request().Context(), t, api.deps.TagSvc); err != nil {
		return err
	}

	t, err := api.deps.TagSvc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating tag")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api tagApi) destroy(ctx echo.Context) error {
	t := ctx.Get(contextObjectKey).(tag.Tag)
	if err := api.deps.TagSvc.Delete(ctx.Request().Context(), t.TenantID, t.ID); err != nil {
		return errors.Wrap(err, "deleting tag")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api tagApi) destroyMultiple(ctx echo.Context) error {
	if err := api.deps.TagSvc.Delete(ctx.Request().Context(), contextTenant(ctx), listParams(ctx, "id")...); err != nil {
		return errors.Wrap(err, "deleting tags")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api tagApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := api.deps.TagSvc.Get(ctx.Request().Context(), contextTenant(ctx), ctx.Param("id"))
		if err != nil {
			return err
		}
		ctx.Set(contextObjectKey, t)
		return next(ctx)
	}
}
