package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/broadcast"
)

// ObserverHandler upgrades kiosk, register and office clients to WebSocket
// event streams.
type ObserverHandler struct {
	Hub *broadcast.Hub
	Log zerolog.Logger
}

// NewObserverHandler panics if hub is nil.
func NewObserverHandler(hub *broadcast.Hub, log zerolog.Logger) *ObserverHandler {
	if hub == nil {
		panic("nil hub passed to NewObserverHandler")
	}
	return &ObserverHandler{Hub: hub, Log: log}
}

// Stream handles GET /ws?lane=.  Without a lane the client observes every
// event.
func (h *ObserverHandler) Stream(c echo.Context) error {
	lane := c.QueryParam("lane")
	if err := h.Hub.ServeWS(c.Response(), c.Request(), lane); err != nil {
		// the upgrader has already written the failure response
		h.Log.Debug().Err(err).Str("lane_id", lane).Msg("websocket upgrade failed")
	}
	return nil
}
