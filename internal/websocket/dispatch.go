package websocket

import (
	"encoding/json"
	"fmt"

	"penci-relay/internal/auth"
)

// handleFrame runs on the loop. Each inbound event kind maps to exactly one
// relay action; bad input is answered with an error event to the sender
// and never closes the connection.
func (h *Hub) handleFrame(p Peer, raw []byte) {
	if _, ok := h.registry.Peer(p.ID()); !ok {
		return
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		h.logger.Debug("Failed to parse frame", "connectionID", p.ID(), "error", err)
		h.sendError(p, ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch env.Event {
	case EventJoinRoom:
		h.handleJoinRoom(p, env.Data)
	case EventLeaveRoom:
		h.handleLeaveRoom(p, env.Data)
	case EventIdentify:
		h.handleIdentify(p, env.Data)
	case EventDesignUpdate:
		h.handleDesignUpdate(p, env.Data)
	case EventSendNotification:
		h.handleSendNotification(p, env.Data)
	case EventAdminBroadcast:
		h.handleAdminBroadcast(p, env.Data)
	default:
		h.sendError(p, ErrCodeUnknownEvent, fmt.Sprintf("Unknown event %q", env.Event))
	}
}

func (h *Hub) handleJoinRoom(p Peer, data json.RawMessage) {
	room, err := decodeRoomID(data)
	if err != nil {
		h.sendError(p, ErrCodeInvalidPayload, err.Error())
		return
	}
	h.registry.Join(p.ID(), room)
	h.logger.Debug("Client joined room", "connectionID", p.ID(), "room", room)
}

func (h *Hub) handleLeaveRoom(p Peer, data json.RawMessage) {
	room, err := decodeRoomID(data)
	if err != nil {
		h.sendError(p, ErrCodeInvalidPayload, err.Error())
		return
	}
	h.registry.Leave(p.ID(), room)
	h.logger.Debug("Client left room", "connectionID", p.ID(), "room", room)
}

func (h *Hub) handleIdentify(p Peer, data json.RawMessage) {
	req, err := decodeIdentify(data)
	if err != nil {
		h.sendError(p, ErrCodeInvalidPayload, err.Error())
		return
	}

	userID, role := req.UserID, ""
	if h.opts.Verifier.Enabled() {
		id, err := h.opts.Verifier.Verify(req.Token)
		if err != nil {
			h.sendError(p, ErrCodeUnauthorized, "A valid token is required to identify")
			return
		}
		userID, role = id.UserID, id.Role
	}
	if userID == "" {
		h.sendError(p, ErrCodeInvalidPayload, "userId must not be empty")
		return
	}

	previous, _ := h.registry.UserOf(p.ID())
	first, _ := h.registry.Identify(p.ID(), userID, role)
	if previous != "" && previous != userID && len(h.registry.ConnectionsOf(previous)) == 0 {
		h.presence.offline(previous)
	}
	if first {
		h.presence.online(userID)
	}

	h.logger.Info("Client identified", "connectionID", p.ID(), "userID", userID)
	h.sendTo(p, EventIdentified, IdentifiedData{ConnectionID: p.ID(), UserID: userID})
}

func (h *Hub) handleDesignUpdate(p Peer, data json.RawMessage) {
	room, tagged, err := TagDesignUpdate(data, p.ID())
	if err != nil {
		h.sendError(p, ErrCodeInvalidPayload, err.Error())
		return
	}
	h.relay(ToRoomExcept(room, p.ID()), EventDesignUpdated, tagged)
}

func (h *Hub) handleSendNotification(p Peer, data json.RawMessage) {
	var req SendNotificationData
	if err := json.Unmarshal(data, &req); err != nil || req.Message == nil {
		h.sendError(p, ErrCodeInvalidPayload, "send-notification requires a message string")
		return
	}
	h.relay(ToAll(), EventNotification, NewNotification(h.opts.Now(), *req.Message, req.Type))
}

func (h *Hub) handleAdminBroadcast(p Peer, data json.RawMessage) {
	if h.opts.Verifier.Enabled() {
		if _, role := h.registry.UserOf(p.ID()); role != auth.RoleAdmin {
			h.sendError(p, ErrCodeForbidden, "admin-broadcast requires an admin identity")
			return
		}
	}

	var req AdminBroadcastData
	if err := json.Unmarshal(data, &req); err != nil || req.Message == nil {
		h.sendError(p, ErrCodeInvalidPayload, "admin-broadcast requires a message string")
		return
	}
	h.relay(ToAll(), EventAdminMessage, NewAdminMessage(h.opts.Now(), *req.Message))
}

// relay encodes once and fans out; runs on the loop.
func (h *Hub) relay(scope Scope, event EventName, data any) {
	frame, err := EncodeEnvelope(event, data)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	h.fanOut(scope, event, frame)
}
