package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"penci-relay/internal/websocket"
	"penci-relay/pkg/response"

	"github.com/gin-gonic/gin"
)

// Relay is the part of the hub the HTTP triggers use.
type Relay interface {
	Emit(ctx context.Context, scope websocket.Scope, event websocket.EventName, data any) (int, error)
	Count() int
}

type NotificationHandler struct {
	relay Relay
}

func NewNotificationHandler(relay Relay) *NotificationHandler {
	return &NotificationHandler{relay: relay}
}

type EmitNotificationRequest struct {
	UserID string          `json:"userId" example:"64f1c0ffee"`
	Data   json.RawMessage `json:"data" swaggertype:"object"`
}

type EmitNotificationResponse struct {
	Success          bool   `json:"success" example:"true"`
	Message          string `json:"message" example:"Notification sent"`
	ConnectedClients int    `json:"connectedClients" example:"3"`
	Delivered        int    `json:"delivered" example:"1"`
}

// EmitNotification godoc
// @Summary Push a notification to one user
// @Description Emits "notification:<userId>" with data to every connection identified as userId.
// @Description Users with no open connection receive nothing; this is not an error.
// @Tags notifications
// @Accept json
// @Produce json
// @Param request body EmitNotificationRequest true "Target user and payload"
// @Success 200 {object} EmitNotificationResponse
// @Failure 400 {object} map[string]interface{} "Malformed JSON or missing userId"
// @Failure 500 {object} map[string]interface{} "Relay unavailable"
// @Router /emit-notification [post]
func (h *NotificationHandler) EmitNotification(c *gin.Context) {
	var req EmitNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidJSON)
		return
	}
	if req.UserID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeMissingUserID)
		return
	}

	delivered, err := h.relay.Emit(c.Request.Context(), websocket.ToUser(req.UserID), websocket.UserNotificationEvent(req.UserID), req.Data)
	if err != nil {
		slog.Error("Failed to emit notification", "userID", req.UserID, "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeRelayFailure)
		return
	}

	c.JSON(http.StatusOK, EmitNotificationResponse{
		Success:          true,
		Message:          "Notification sent",
		ConnectedClients: h.relay.Count(),
		Delivered:        delivered,
	})
}
