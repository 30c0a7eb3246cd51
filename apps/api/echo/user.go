package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

const (
	errNoPermsToSetRoles = "not enough rights to set these roles"
	contextObjectKey     = "object"
)

type userApi struct {
	*Server
}

func registerUserAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := userApi{s}
	limit := s.authRateLimit()

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login, limit...)
	ug.POST("/password-reset", api.resetPassword, limit...)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset, limit...)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.POST("/register", api.create, adminsOnly)
	ag.GET("", api.query, adminsOnly)
	ag.DELETE("", api.destroyMultiple, adminsOnly)
	ag.GET("/roles", api.queryRoles, adminsOnly)

	// detail endpoints
	dg := ag.Group("/:id", api.selfOrAdminMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminsOnly)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate() error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return core.Validate.Struct(pr)
}

// Handlers

func (api userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := api.authenticate(ctx, data.Username, data.Password)
	if err != nil {
		return err
	}
	token, err := api.tokens.sign(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api userApi) refreshToken(ctx echo.Context) error {
	token, err := api.Server.refreshToken(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	err := api.deps.UserSvc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		// do not return errors to attackers
		api.deps.Logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if err := api.deps.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api userApi) me(ctx echo.Context) error {
	usr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}

	ctxUsr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	if !ctxUsr.IsStaff() || data.TenantID == "" {
		data.TenantID = contextTenant(ctx)
	}
	if err = data.Validate(ctx.Request().Context(), api.deps.UserSvc); err != nil {
		return err
	}
	if err = checkRoles(ctxUsr, data.Roles); err != nil {
		return err
	}
	if err = api.checkMembership(ctx, data.TenantID, data.Roles); err != nil {
		return err
	}

	usr, err := api.deps.UserSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api userApi) query(ctx echo.Context) error {
	filter := &user.QueryFilter{
		TenantID: contextTenant(ctx),
		Search:   ctx.QueryParam("search"),
		Roles:    listParams(ctx, "role"),
	}
	var err error
	if filter.IsActive, err = boolParam(ctx, "is_active"); err != nil {
		return err
	}
	if filter.CreatedFrom, err = dateParam(ctx, "created_from"); err != nil {
		return err
	}
	if filter.CreatedTo, err = dateParam(ctx, "created_to"); err != nil {
		return err
	}
	filter.Clean()

	users, err := api.deps.UserSvc.Query(ctx.Request().Context(), filter, orderingParams(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api userApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get(contextObjectKey).(user.User))
}

func (api userApi) update(ctx echo.Context) error {
	usr := ctx.Get(contextObjectKey).(user.User)

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	if !(ctxUsr.IsStaff() || ctxUsr.IsAdmin()) {
		// `IsActive`, `Roles`, `Username` and `Email` can only be changed by admins
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}
	if err = data.Validate(ctx.Request().Context(), usr, api.deps.UserSvc); err != nil {
		return err
	}
	if data.Roles != nil {
		if err = checkRoles(ctxUsr, data.Roles); err != nil {
			return err
		}
		if err = api.checkMembership(ctx, usr.TenantID, data.Roles); err != nil {
			return err
		}
	}

	usr, err = api.deps.UserSvc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api userApi) destroy(ctx echo.Context) error {
	usr := ctx.Get(contextObjectKey).(user.User)

	ctxUsr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	if err = checkDeletable(ctxUsr, usr); err != nil {
		return err
	}
	if err = api.deps.UserSvc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api userApi) destroyMultiple(ctx echo.Context) error {
	ids := listParams(ctx, "id")
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	ctxUsr, err := api.contextUser(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	tenantID := contextTenant(ctx)
	deletable := make([]string, 0, len(ids))
	for _, id := range ids {
		usr, err := api.deps.UserSvc.GetByID(rctx, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return errors.Wrap(err, "finding user by ID")
		}
		if tenantID != "" && usr.TenantID != tenantID {
			continue
		}
		if err = checkDeletable(ctxUsr, usr); err != nil {
			return err
		}
		deletable = append(deletable, usr.ID)
	}

	if err = api.deps.UserSvc.Delete(rctx, deletable...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// selfOrAdminMiddleware loads the requested user into the context when the requester
// is that user or an administrator of the same institution.
func (api userApi) selfOrAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := api.contextUser(ctx)
		if err != nil {
			return err
		}

		id := ctx.Param("id")
		if id == ctxUsr.ID {
			ctx.Set(contextObjectKey, ctxUsr)
			return next(ctx)
		}
		if !(ctxUsr.IsStaff() || ctxUsr.IsAdmin()) {
			return errHttpNotFound
		}

		usr, err := api.deps.UserSvc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			return err
		}
		if tenantID := contextTenant(ctx); tenantID != "" && usr.TenantID != tenantID {
			return errHttpNotFound
		}
		ctx.Set(contextObjectKey, usr)
		return next(ctx)
	}
}

// checkRoles rejects role assignments above the requester's own highest role.
func checkRoles(ctxUsr user.User, roles []string) error {
	if user.MaxRolePriority(roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewFieldError("roles", errNoPermsToSetRoles)
	}
	return nil
}

// checkMembership enforces that staff belong to no institution and everybody else to exactly one.
func (api userApi) checkMembership(ctx echo.Context, tenantID string, roles []string) error {
	u := user.User{Roles: roles}
	if u.IsStaff() {
		if tenantID != "" {
			return core.NewFieldError("tenant_id", "staff cannot belong to an institution")
		}
		return nil
	}
	if tenantID == "" {
		return core.NewFieldError("tenant_id", "this field is required")
	}
	if _, err := api.deps.TenantSvc.GetByID(ctx.Request().Context(), tenantID); err != nil {
		return core.NewFieldError("tenant_id", "institution not found")
	}
	return nil
}

// checkDeletable forbids deleting oneself or anybody with a higher role.
func checkDeletable(ctxUsr, usr user.User) error {
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}
	if user.MaxRolePriority(usr.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return errHttpForbidden
	}
	return nil
}
