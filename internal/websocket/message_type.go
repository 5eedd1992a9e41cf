package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName identifies a relay event on the wire.
type EventName string

// Client -> server events
const (
	EventJoinRoom         EventName = "join-room"
	EventLeaveRoom        EventName = "leave-room"
	EventIdentify         EventName = "identify"
	EventDesignUpdate     EventName = "design-update"
	EventSendNotification EventName = "send-notification"
	EventAdminBroadcast   EventName = "admin-broadcast"
)

// Server -> client events
const (
	EventConnected     EventName = "connected"
	EventIdentified    EventName = "identified"
	EventDesignUpdated EventName = "design-updated"
	EventNotification  EventName = "notification"
	EventAdminMessage  EventName = "admin-message"
	EventError         EventName = "error"
)

// Error codes carried by EventError.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeUnknownEvent   = "UNKNOWN_EVENT"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
)

const (
	DefaultNotificationType = "info"
	AdminSender             = "admin"

	// JavaScript's Date.prototype.toISOString layout.
	isoTimestamp = "2006-01-02T15:04:05.000Z07:00"
)

func (e EventName) String() string {
	return string(e)
}

// UserNotificationEvent is the per-user event emitted by the HTTP trigger.
func UserNotificationEvent(userID string) EventName {
	return EventName("notification:" + userID)
}

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes an inbound frame.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}
	return &env, nil
}

// EncodeEnvelope marshals data and wraps it in an envelope for event.
func EncodeEnvelope(event EventName, data any) ([]byte, error) {
	var payload json.RawMessage
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		payload = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		payload = b
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}

// Payloads

type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
}

type IdentifyData struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type IdentifiedData struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type SendNotificationData struct {
	Message *string `json:"message"`
	Type    string  `json:"type,omitempty"`
}

type NotificationData struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type AdminBroadcastData struct {
	Message *string `json:"message"`
}

type AdminMessageData struct {
	Message   string `json:"message"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewNotification builds the broadcast notification, defaulting the type.
func NewNotification(now time.Time, message, kind string) NotificationData {
	if kind == "" {
		kind = DefaultNotificationType
	}
	return NotificationData{
		ID:        now.UnixMilli(),
		Message:   message,
		Type:      kind,
		Timestamp: formatTimestamp(now),
	}
}

func NewAdminMessage(now time.Time, message string) AdminMessageData {
	return AdminMessageData{
		Message:   message,
		From:      AdminSender,
		Timestamp: formatTimestamp(now),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(isoTimestamp)
}

// TagDesignUpdate copies a design-update payload and stamps the sender's
// connection id on it. The room id must be a non-empty string.
func TagDesignUpdate(raw json.RawMessage, senderID string) (roomID string, tagged map[string]any, err error) {
	if err := json.Unmarshal(raw, &tagged); err != nil || tagged == nil {
		return "", nil, fmt.Errorf("design-update payload must be an object")
	}
	roomID, _ = tagged["roomId"].(string)
	if roomID == "" {
		return "", nil, fmt.Errorf("design-update payload requires a roomId string")
	}
	tagged["userId"] = senderID
	return roomID, tagged, nil
}

// decodeRoomID accepts either a bare string or {"roomId": "..."}.
func decodeRoomID(raw json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(raw, &room); err == nil {
		if room == "" {
			return "", fmt.Errorf("room id must not be empty")
		}
		return room, nil
	}

	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.RoomID == "" {
		return "", fmt.Errorf("room id must be a non-empty string")
	}
	return obj.RoomID, nil
}

// decodeIdentify accepts either a bare user id string or IdentifyData.
func decodeIdentify(raw json.RawMessage) (IdentifyData, error) {
	var userID string
	if err := json.Unmarshal(raw, &userID); err == nil {
		return IdentifyData{UserID: userID}, nil
	}

	var data IdentifyData
	if err := json.Unmarshal(raw, &data); err != nil {
		return IdentifyData{}, fmt.Errorf("identify payload must be a string or object")
	}
	return data, nil
}
