package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Portals
const (
	portalAdmin       = "admin"
	portalInstitution = "institution"
	portalStudent     = "student"
)

type dashboardApi struct {
	*Server
}

func registerDashboardAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := dashboardApi{s}

	dg := g.Group("/dashboard", authed...)
	dg.GET("", api.auto)
	dg.GET("/admin", api.admin, staffOnly)
	dg.GET("/institution", api.institution, teachersOnly, requireTenant)
	dg.GET("/student", api.student, studentsOnly, requireTenant)
}

type dashboardResponse struct {
	Portal  string      `json:"portal"`
	Summary interface{} `json:"summary"`
}

// portal picks the dashboard a user lands on.
func portal(ctx echo.Context) string {
	claims, _ := getContextClaims(ctx)
	switch {
	case claims.IsStaff && contextTenant(ctx) == "":
		return portalAdmin
	case claims.IsStaff || claims.IsAdmin || claims.IsTeacher:
		return portalInstitution
	default:
		return portalStudent
	}
}

func (api dashboardApi) summary(ctx echo.Context, portal string) (interface{}, error) {
	rctx := ctx.Request().Context()
	switch portal {
	case portalAdmin:
		sum, err := api.deps.DashboardSvc.Admin(rctx)
		return sum, errors.Wrap(err, "computing admin summary")
	case portalInstitution:
		sum, err := api.deps.DashboardSvc.Institution(rctx, contextTenant(ctx))
		return sum, errors.Wrap(err, "computing institution summary")
	default:
		claims, err := getContextClaims(ctx)
		if err != nil {
			return nil, err
		}
		sum, err := api.deps.DashboardSvc.Student(rctx, contextTenant(ctx), claims.Subject)
		return sum, errors.Wrap(err, "computing student summary")
	}
}

func (api dashboardApi) auto(ctx echo.Context) error {
	p := portal(ctx)
	sum, err := api.summary(ctx, p)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dashboardResponse{Portal: p, Summary: sum})
}

func (api dashboardApi) admin(ctx echo.Context) error {
	return api.respond(ctx, portalAdmin)
}

func (api dashboardApi) institution(ctx echo.Context) error {
	return api.respond(ctx, portalInstitution)
}

func (api dashboardApi) student(ctx echo.Context) error {
	return api.respond(ctx, portalStudent)
}

func (api dashboardApi) respond(ctx echo.Context, portal string) error {
	sum, err := api.summary(ctx, portal)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}
