package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"penci-relay/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitCall struct {
	scope websocket.Scope
	event websocket.EventName
	data  any
}

type fakeRelay struct {
	calls     []emitCall
	err       error
	count     int
	delivered int
	panics    bool
}

func (f *fakeRelay) Emit(_ context.Context, scope websocket.Scope, event websocket.EventName, data any) (int, error) {
	if f.panics {
		panic("relay exploded")
	}
	f.calls = append(f.calls, emitCall{scope, event, data})
	return f.delivered, f.err
}

func (f *fakeRelay) Count() int { return f.count }

func (f *fakeRelay) Stats() websocket.Stats {
	return websocket.Stats{Connections: f.count, Rooms: 2, IdentifiedUsers: 1}
}

func (f *fakeRelay) Uptime() time.Duration { return 90 * time.Second }

func newEngine(relay *fakeRelay) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	n := NewNotificationHandler(relay)
	h := NewHealthHandler(relay)
	r.POST("/emit-notification", n.EmitNotification)
	r.GET("/health", h.Health)
	r.GET("/socket/stats", h.Stats)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEmitNotification_Success(t *testing.T) {
	relay := &fakeRelay{count: 4, delivered: 2}
	w := do(newEngine(relay), http.MethodPost, "/emit-notification", `{"userId":"u-1","data":{"title":"Order paid","orderId":12}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Notification sent","connectedClients":4,"delivered":2}`, w.Body.String())

	require.Len(t, relay.calls, 1)
	call := relay.calls[0]
	assert.Equal(t, websocket.ToUser("u-1"), call.scope)
	assert.Equal(t, websocket.EventName("notification:u-1"), call.event)
	raw, ok := call.data.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"Order paid","orderId":12}`, string(raw))
}

func TestEmitNotification_NoConnectedUserIsStillSuccess(t *testing.T) {
	relay := &fakeRelay{count: 3, delivered: 0}
	w := do(newEngine(relay), http.MethodPost, "/emit-notification", `{"userId":"offline","data":"ping"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp EmitNotificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.ConnectedClients)
	assert.Zero(t, resp.Delivered)
}

func TestEmitNotification_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"userId":`, "INVALID_JSON"},
		{"empty body", ``, "INVALID_JSON"},
		{"wrong type", `{"userId":5}`, "INVALID_JSON"},
		{"missing user", `{"data":{}}`, "MISSING_USER_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &fakeRelay{}
			w := do(newEngine(relay), http.MethodPost, "/emit-notification", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
			assert.Empty(t, relay.calls, "no relay state touched")
		})
	}
}

func TestEmitNotification_RelayFailure(t *testing.T) {
	relay := &fakeRelay{err: errors.New("hub stopped")}
	engine := newEngine(relay)

	w := do(engine, http.MethodPost, "/emit-notification", `{"userId":"u-1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "RELAY_FAILURE")

	// the engine keeps serving after a panic in the relay
	relay.panics = true
	w = do(engine, http.MethodPost, "/emit-notification", `{"userId":"u-1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(engine, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	w := do(newEngine(&fakeRelay{count: 7}), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","connectedClients":7,"uptime":90}`, w.Body.String())
}

func TestStats(t *testing.T) {
	w := do(newEngine(&fakeRelay{count: 7}), http.MethodGet, "/socket/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connectedClients":7,"rooms":2,"identifiedUsers":1}`, w.Body.String())
}
