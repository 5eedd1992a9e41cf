package handlers

import (
	"penci-relay/internal/websocket"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *websocket.Hub
	upgrader *gws.Upgrader
}

func NewWSHandler(hub *websocket.Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins),
	}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Open a persistent relay connection. Frames are JSON envelopes {"event": string, "data": any}.
// @Description After connecting the server sends "connected" with the connection id.
// @Tags socket
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Failure 403 "Origin not allowed"
// @Router /socket [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWS(h.hub, h.upgrader, c.Writer, c.Request)
}
