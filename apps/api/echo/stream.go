package echoapi

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// stream pushes alert events to a websocket client until either side goes away.
// Staff follow every institution, or one with `?tenant_id=`; others follow their own.
func (api alertApi) stream(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	tenantID := claims.TenantID
	if claims.IsStaff {
		tenantID = ctx.QueryParam("tenant_id")
	} else if err = api.deps.TenantSvc.CheckActive(ctx.Request().Context(), tenantID); err != nil {
		return errTenantUnavailable
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	defer conn.Close()

	sub := api.deps.AlertHub.Subscribe(tenantID, claims.IsStaff && tenantID == "")
	defer api.deps.AlertHub.Unsubscribe(sub)

	// the read loop only handles control frames; it ends when the client disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-sub.C:
			if !ok { // hub closed
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(streamWriteWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				api.deps.Logger.Debug("alert stream write failed", errors.Wrap(err, "writing event"))
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return nil
			}
		case <-gone:
			return nil
		case <-ctx.Request().Context().Done():
			return nil
		}
	}
}
