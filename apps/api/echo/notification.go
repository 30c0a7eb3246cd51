package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
)

type notificationApi struct {
	*Server
}

func registerNotificationAPI(g *echo.Group, s *Server, authed []echo.MiddlewareFunc) {
	api := notificationApi{s}

	ng := g.Group("/notifications", authed...)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/read", api.markRead)
	ng.POST("/read-all", api.markAllRead)
	ng.GET("/preferences", api.preferences)
	ng.PUT("/preferences", api.updatePreferences)
	ng.DELETE("/preferences", api.resetPreferences)
	ng.POST("/announcements", api.announce, adminsOnly, requireTenant)
}

type (
	Announcement struct {
		Title string   `json:"title" validate:"required,max=200"`
		Body  string   `json:"body" validate:"required,max=5000"`
		Roles []string `json:"roles" validate:"omitempty,allroles"`
	}

	countResponse struct {
		Count int `json:"count"`
	}
)

func (a *Announcement) Validate() error {
	a.Title = core.CleanString(a.Title)
	a.Body = core.CleanString(a.Body)
	a.Roles = core.UniqueStrings(a.Roles)
	return core.Validate.Struct(a)
}

func (api notificationApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := &notification.QueryFilter{
		UserID:   claims.Subject,
		Category: ctx.QueryParam("category"),
	}
	if unread, err := boolParam(ctx, "unread"); err != nil {
		return err
	} else if unread != nil {
		filter.UnreadOnly = *unread
	}

	ns, err := api.deps.NotificationSvc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	if ns == nil {
		ns = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api notificationApi) unreadCount(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	cnt, err := api.deps.NotificationSvc.UnreadCount(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, countResponse{Count: cnt})
}

func (api notificationApi) markRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data notification.MarkRead
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRead")
	}

	cnt, err := api.deps.NotificationSvc.MarkRead(ctx.Request().Context(), claims.Subject, data.IDs...)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, countResponse{Count: cnt})
}

func (api notificationApi) markAllRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	cnt, err := api.deps.NotificationSvc.MarkAllRead(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "marking all notifications read")
	}
	return ctx.JSON(http.StatusOK, countResponse{Count: cnt})
}

func (api notificationApi) preferences(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	prefs, err := api.deps.NotificationSvc.GetPreferences(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting notification preferences")
	}
	return ctx.JSON(http.StatusOK, prefs)
}

func (api notificationApi) updatePreferences(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data notification.PreferenceUpdates
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreferenceUpdates")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	prefs, err := api.deps.NotificationSvc.UpdatePreferences(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prefs)
}

func (api notificationApi) resetPreferences(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	prefs, err := api.deps.NotificationSvc.ResetPreferences(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "resetting notification preferences")
	}
	return ctx.JSON(http.StatusOK, prefs)
}

// announce sends an announcement to the members of the institution holding any of the given roles.
func (api notificationApi) announce(ctx echo.Context) error {
	var data Announcement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Announcement")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	tenantID := contextTenant(ctx)
	members, err := api.deps.UserSvc.QueryTenantMembers(rctx, tenantID, data.Roles...)
	if err != nil {
		return errors.Wrap(err, "querying tenant members")
	}
	err = api.deps.NotificationSvc.Notify(rctx, members, notification.Message{
		TenantID: tenantID,
		Category: notification.CategoryAnnouncements,
		Title:    data.Title,
		Body:     data.Body,
	})
	if err != nil {
		return errors.Wrap(err, "sending announcement")
	}
	return ctx.JSON(http.StatusAccepted, echo.Map{"recipients": len(members)})
}
