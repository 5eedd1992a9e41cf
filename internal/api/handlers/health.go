package handlers

import (
	"net/http"
	"time"

	"penci-relay/internal/websocket"

	"github.com/gin-gonic/gin"
)

// Introspector reports relay state without side effects.
type Introspector interface {
	Stats() websocket.Stats
	Uptime() time.Duration
}

type HealthHandler struct {
	relay Introspector
}

func NewHealthHandler(relay Introspector) *HealthHandler {
	return &HealthHandler{relay: relay}
}

type HealthResponse struct {
	Status           string  `json:"status" example:"ok"`
	ConnectedClients int     `json:"connectedClients" example:"3"`
	Uptime           float64 `json:"uptime" example:"1234.5"`
}

// Health godoc
// @Summary Relay liveness
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
// @Router /socket/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		ConnectedClients: h.relay.Stats().Connections,
		Uptime:           h.relay.Uptime().Seconds(),
	})
}

// Stats godoc
// @Summary Relay registry counters
// @Tags health
// @Produce json
// @Success 200 {object} websocket.Stats
// @Router /socket/stats [get]
func (h *HealthHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.relay.Stats())
}
