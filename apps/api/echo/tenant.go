package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
)

type tenantApi struct {
	*Server
}

func registerTenantAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := tenantApi{s}

	tg := g.Group("/tenants", authed...)

	// institution portal
	tg.GET("/current", api.current, adminsOnly, requireTenant)
	tg.PUT("/current", api.updateCurrent, adminsOnly, requireTenant)

	// admin portal
	sg := tg.Group("", staffOnly)
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.DELETE("", api.destroyMultiple)

	dg := sg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/activate", api.activate)
	dg.POST("/deactivate", api.deactivate)
}

func (api tenantApi) create(ctx echo.Context) error {
	var data tenant.NewTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTenant")
	}
	if err := data.Validate(ctx.Request().Context(), api.deps.TenantSvc); err != nil {
		return err
	}

	t, err := api.deps.TenantSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating tenant")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api tenantApi) query(ctx echo.Context) error {
	filter := &tenant.QueryFilter{Search: ctx.QueryParam("search")}
	var err error
	if filter.IsActive, err = boolParam(ctx, "is_active"); err != nil {
		return err
	}
	filter.Clean()

	tenants, err := api.deps.TenantSvc.Query(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying tenants")
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api tenantApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(tenant.Tenant))
}

func (api tenantApi) update(ctx echo.Context) error {
	return api.doUpdate(ctx, ctx.Get(contextObjectKey).(tenant.Tenant), true)
}

func (api tenantApi) current(ctx echo.Context) error {
	t, err := api.deps.TenantSvc.GetByID(ctx.Request().Context(), contextTenant(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api tenantApi) updateCurrent(ctx echo.Context) error {
	t, err := api.deps.TenantSvc.GetByID(ctx.Request().Context(), contextTenant(ctx))
	if err != nil {
		return err
	}
	claims, _ := getContextClaims(ctx)
	return api.doUpdate(ctx, t, claims.IsStaff)
}

func (api tenantApi) doUpdate(ctx echo.Context, t tenant.Tenant, canToggle bool) error {
	var data tenant.UpdateTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}
	// only staff (de)activate institutions
	if data.IsActive != nil && !canToggle {
		return errHttpForbidden
	}
	if err := data.Validate(t); err != nil {
		return err
	}

	t, err := api.deps.TenantSvc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating tenant")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api tenantApi) activate(ctx echo.Context) error {
	return api.setActive(ctx, true)
}

func (api tenantApi) deactivate(ctx echo.Context) error {
	return api.setActive(ctx, false)
}

func (api tenantApi) setActive(ctx echo.Context, active bool) error {
	t := ctx.Get(contextObjectKey).(tenant.Tenant)
	t, err := api.deps.TenantSvc.SetActive(ctx.Request().Context(), t.ID, active)
	if err != nil {
		return errors.Wrap(err, "setting tenant active")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api tenantApi) destroy(ctx echo.Context) error {
	t := ctx.Get(contextObjectKey).(tenant.Tenant)
	if err := api.deps.TenantSvc.Delete(ctx.Request().Context(), t.ID); err != nil {
		return errors.Wrap(err, "deleting tenant")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api tenantApi) destroyMultiple(ctx echo.Context) error {
	ids := listParams(ctx, "id")
	if len(ids) > 0 {
		if err := api.deps.TenantSvc.Delete(ctx.Request().Context(), ids...); err != nil {
			return errors.Wrap(err, "deleting tenants")
		}
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api tenantApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := api.deps.TenantSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		ctx.Set(contextObjectKey, t)
		return next(ctx)
	}
}
