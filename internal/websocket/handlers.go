package websocket

import (
	"context"
	"net/http"

	"log/slog"

	"github.com/gorilla/websocket"
)

// NewUpgrader builds an upgrader that accepts the given origins. "*" allows
// any origin; requests without an Origin header (non-browser clients) are
// always accepted.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// ServeWS upgrades the request, registers the new client with the hub and
// starts its pumps. It returns once the pumps are running.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Error("Failed to upgrade WebSocket connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(hub, conn)

	ctx, cancel := context.WithTimeout(context.Background(), hubWait)
	defer cancel()
	if err := hub.Register(ctx, client); err != nil {
		slog.Error("Failed to register client", "connectionID", client.id, "error", err)
		client.Close()
		return
	}

	slog.Debug("New WebSocket connection established", "connectionID", client.id, "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}
