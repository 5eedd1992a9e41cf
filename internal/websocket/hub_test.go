package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"penci-relay/internal/auth"
	"penci-relay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPeer struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func newMockPeer(id string) *mockPeer {
	return &mockPeer{id: id}
}

func (m *mockPeer) ID() string { return m.id }

func (m *mockPeer) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientDisconnected
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// events returns the received envelopes, skipping the connect greeting.
func (m *mockPeer) events(t *testing.T) []Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Envelope
	for _, raw := range m.received {
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == EventConnected {
			continue
		}
		out = append(out, env)
	}
	return out
}

type fakePresence struct {
	mu      sync.Mutex
	online  map[string]bool
	updates []string
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: map[string]bool{}}
}

func (f *fakePresence) SetUserOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = true
	f.updates = append(f.updates, "+"+userID)
	return nil
}

func (f *fakePresence) SetUserOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.online, userID)
	f.updates = append(f.updates, "-"+userID)
	return nil
}

func (f *fakePresence) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

var fixedNow = time.Date(2024, 5, 1, 8, 30, 0, 123_000_000, time.UTC)

func startTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	hub := NewHub(opts, logger.Discard())
	go hub.Run()
	t.Cleanup(func() {
		hub.Stop()
		<-hub.Done()
	})
	return hub
}

func connect(t *testing.T, hub *Hub, ids ...string) []*mockPeer {
	t.Helper()
	peers := make([]*mockPeer, 0, len(ids))
	for _, id := range ids {
		p := newMockPeer(id)
		require.NoError(t, hub.Register(context.Background(), p))
		peers = append(peers, p)
	}
	return peers
}

func send(t *testing.T, hub *Hub, p Peer, event EventName, data any) {
	t.Helper()
	frame, err := EncodeEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, hub.Dispatch(context.Background(), p, frame))
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHub_RegisterGreetsWithConnectionID(t *testing.T) {
	hub := startTestHub(t, Options{})
	p := connect(t, hub, "conn-1")[0]

	require.Len(t, p.received, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(p.received[0], &env))
	assert.Equal(t, EventConnected, env.Event)
	assert.Equal(t, "conn-1", decode[ConnectedData](t, env).ConnectionID)
	assert.Equal(t, 1, hub.Count())
}

func TestHub_DesignUpdateExcludesSender(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B", "C", "D")
	a, b, c, d := peers[0], peers[1], peers[2], peers[3]

	for _, p := range []*mockPeer{a, b, c} {
		send(t, hub, p, EventJoinRoom, "proj1")
	}
	send(t, hub, d, EventJoinRoom, "proj2")

	send(t, hub, a, EventDesignUpdate, map[string]any{"roomId": "proj1", "shape": "circle"})

	assert.Empty(t, a.events(t), "sender must not receive its own update")
	assert.Empty(t, d.events(t), "other rooms must not receive the update")

	for _, p := range []*mockPeer{b, c} {
		evs := p.events(t)
		require.Len(t, evs, 1)
		assert.Equal(t, EventDesignUpdated, evs[0].Event)
		payload := decode[map[string]any](t, evs[0])
		assert.Equal(t, "A", payload["userId"])
		assert.Equal(t, "circle", payload["shape"])
		assert.Equal(t, "proj1", payload["roomId"])
	}
}

func TestHub_DesignUpdateSenderIDCannotBeSpoofed(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B")
	send(t, hub, peers[1], EventJoinRoom, "proj1")

	send(t, hub, peers[0], EventDesignUpdate, map[string]any{"roomId": "proj1", "userId": "someone-else"})

	evs := peers[1].events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "A", decode[map[string]any](t, evs[0])["userId"])
}

func TestHub_SendNotificationReachesEveryoneIncludingSender(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B", "C")

	send(t, hub, peers[0], EventSendNotification, map[string]any{"message": "hi"})

	for _, p := range peers {
		evs := p.events(t)
		require.Len(t, evs, 1, p.id)
		assert.Equal(t, EventNotification, evs[0].Event)

		n := decode[NotificationData](t, evs[0])
		assert.Equal(t, fixedNow.UnixMilli(), n.ID)
		assert.Equal(t, "hi", n.Message)
		assert.Equal(t, "info", n.Type)
		assert.Equal(t, "2024-05-01T08:30:00.123Z", n.Timestamp)
	}
}

func TestHub_SendNotificationKeepsType(t *testing.T) {
	hub := startTestHub(t, Options{})
	p := connect(t, hub, "A")[0]

	send(t, hub, p, EventSendNotification, map[string]any{"message": "saved", "type": "success"})

	evs := p.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, "success", decode[NotificationData](t, evs[0]).Type)
}

func TestHub_AdminBroadcast(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B")

	send(t, hub, peers[1], EventAdminBroadcast, map[string]any{"message": "maintenance at 22:00"})

	for _, p := range peers {
		evs := p.events(t)
		require.Len(t, evs, 1)
		assert.Equal(t, EventAdminMessage, evs[0].Event)
		msg := decode[AdminMessageData](t, evs[0])
		assert.Equal(t, "maintenance at 22:00", msg.Message)
		assert.Equal(t, "admin", msg.From)
		assert.Equal(t, "2024-05-01T08:30:00.123Z", msg.Timestamp)
	}
}

func TestHub_InvalidInputAnswersSenderOnly(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		code  string
	}{
		{"not json", `{nope`, ErrCodeInvalidMessage},
		{"missing event", `{"data":"x"}`, ErrCodeInvalidMessage},
		{"unknown event", `{"event":"dance"}`, ErrCodeUnknownEvent},
		{"join without room", `{"event":"join-room","data":""}`, ErrCodeInvalidPayload},
		{"join with number", `{"event":"join-room","data":42}`, ErrCodeInvalidPayload},
		{"design update without room", `{"event":"design-update","data":{"shape":"x"}}`, ErrCodeInvalidPayload},
		{"design update not object", `{"event":"design-update","data":[1,2]}`, ErrCodeInvalidPayload},
		{"notification without message", `{"event":"send-notification","data":{}}`, ErrCodeInvalidPayload},
		{"broadcast without payload", `{"event":"admin-broadcast"}`, ErrCodeInvalidPayload},
		{"identify empty", `{"event":"identify","data":""}`, ErrCodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := startTestHub(t, Options{})
			peers := connect(t, hub, "A", "B")

			require.NoError(t, hub.Dispatch(context.Background(), peers[0], []byte(tt.frame)))

			evs := peers[0].events(t)
			require.Len(t, evs, 1)
			assert.Equal(t, EventError, evs[0].Event)
			assert.Equal(t, tt.code, decode[ErrorData](t, evs[0]).Code)
			assert.Empty(t, peers[1].events(t))
			assert.Equal(t, 2, hub.Count(), "connections stay open")
		})
	}
}

func TestHub_JoinAcceptsObjectPayloadAndLeave(t *testing.T) {
	hub := startTestHub(t, Options{})
	p := connect(t, hub, "A")[0]

	send(t, hub, p, EventJoinRoom, map[string]string{"roomId": "proj1"})
	send(t, hub, p, EventJoinRoom, "proj1")
	send(t, hub, p, EventJoinRoom, "proj2")
	assert.Equal(t, []string{"proj1", "proj2"}, hub.RoomsOf("A"))
	assert.Equal(t, []string{"A"}, hub.MembersOf("proj1"))

	send(t, hub, p, EventLeaveRoom, "proj1")
	assert.Equal(t, []string{"proj2"}, hub.RoomsOf("A"))
	assert.Empty(t, hub.MembersOf("proj1"))
	assert.Equal(t, 1, hub.Stats().Rooms)
}

func TestHub_UnregisterPurgesMembership(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B")
	send(t, hub, peers[0], EventJoinRoom, "proj1")
	send(t, hub, peers[1], EventJoinRoom, "proj1")

	require.NoError(t, hub.Unregister(context.Background(), peers[0]))
	require.NoError(t, hub.Unregister(context.Background(), peers[0]), "second unregister is a no-op")

	assert.Equal(t, []string{"B"}, hub.MembersOf("proj1"))
	assert.Empty(t, hub.RoomsOf("A"))
	assert.Equal(t, 1, hub.Count())

	// frames from an unregistered peer are ignored
	send(t, hub, peers[0], EventSendNotification, map[string]any{"message": "ghost"})
	assert.Empty(t, peers[1].events(t))
}

func TestHub_EmitToUser(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B", "C")
	send(t, hub, peers[0], EventIdentify, map[string]string{"userId": "user-1"})
	send(t, hub, peers[1], EventIdentify, "user-1")

	for _, p := range peers[:2] {
		evs := p.events(t)
		require.Len(t, evs, 1)
		assert.Equal(t, EventIdentified, evs[0].Event)
		assert.Equal(t, "user-1", decode[IdentifiedData](t, evs[0]).UserID)
	}

	delivered, err := hub.Emit(context.Background(), ToUser("user-1"), UserNotificationEvent("user-1"), json.RawMessage(`{"title":"Order paid"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	for _, p := range peers[:2] {
		evs := p.events(t)
		require.Len(t, evs, 2)
		assert.Equal(t, EventName("notification:user-1"), evs[1].Event)
		assert.JSONEq(t, `{"title":"Order paid"}`, string(evs[1].Data))
	}
	assert.Empty(t, peers[2].events(t))

	delivered, err = hub.Emit(context.Background(), ToUser("nobody"), UserNotificationEvent("nobody"), nil)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestHub_EmitSkipsFailingRecipients(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B", "C")
	peers[1].mu.Lock()
	peers[1].sendErr = errors.New("boom")
	peers[1].mu.Unlock()
	peers[2].Close()

	delivered, err := hub.Emit(context.Background(), ToAll(), EventAdminMessage, NewAdminMessage(fixedNow, "x"))
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Len(t, peers[0].events(t), 1)
}

func TestHub_EmitAfterStop(t *testing.T) {
	hub := NewHub(Options{}, logger.Discard())
	go hub.Run()
	p := newMockPeer("A")
	require.NoError(t, hub.Register(context.Background(), p))

	hub.Stop()
	<-hub.Done()

	_, err := hub.Emit(context.Background(), ToAll(), EventNotification, nil)
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.True(t, p.closed, "stop closes open connections")
	assert.Zero(t, hub.Count())
}

func TestHub_EmitHonoursContext(t *testing.T) {
	hub := NewHub(Options{}, logger.Discard()) // loop never started
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := hub.Emit(ctx, ToAll(), EventNotification, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_PresenceFollowsIdentity(t *testing.T) {
	presence := newFakePresence()
	hub := startTestHub(t, Options{Presence: presence})
	peers := connect(t, hub, "A", "B", "C")

	send(t, hub, peers[0], EventIdentify, "user-1")
	send(t, hub, peers[1], EventIdentify, "user-1")
	send(t, hub, peers[2], EventIdentify, "user-2")
	send(t, hub, peers[2], EventIdentify, "user-3")

	require.NoError(t, hub.Unregister(context.Background(), peers[0]))
	require.NoError(t, hub.Unregister(context.Background(), peers[1]))

	want := []string{"+user-1", "+user-2", "-user-2", "+user-3", "-user-1"}
	require.Eventually(t, func() bool {
		return len(presence.history()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, presence.history())
}

func TestHub_TokenIdentityAndAdminGate(t *testing.T) {
	verifier := auth.NewVerifier("secret")
	hub := startTestHub(t, Options{Verifier: verifier})
	peers := connect(t, hub, "A", "B")
	editor, admin := peers[0], peers[1]

	adminToken, err := verifier.Sign(auth.Identity{UserID: "boss", Role: auth.RoleAdmin})
	require.NoError(t, err)
	editorToken, err := verifier.Sign(auth.Identity{UserID: "editor"})
	require.NoError(t, err)

	// a bare user id is not enough once tokens are enforced
	send(t, hub, editor, EventIdentify, "editor")
	evs := editor.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, ErrCodeUnauthorized, decode[ErrorData](t, evs[0]).Code)

	send(t, hub, editor, EventIdentify, IdentifyData{UserID: "ignored", Token: editorToken})
	send(t, hub, admin, EventIdentify, IdentifyData{Token: adminToken})
	assert.Equal(t, []string{"A"}, hub.ConnectionsOf("editor"))
	assert.Equal(t, []string{"B"}, hub.ConnectionsOf("boss"))

	send(t, hub, editor, EventAdminBroadcast, map[string]any{"message": "nope"})
	evs = editor.events(t)
	assert.Equal(t, ErrCodeForbidden, decode[ErrorData](t, evs[len(evs)-1]).Code)

	send(t, hub, admin, EventAdminBroadcast, map[string]any{"message": "yes"})
	evs = editor.events(t)
	assert.Equal(t, EventAdminMessage, evs[len(evs)-1].Event)
}

func TestHub_OrderPreservedPerRecipient(t *testing.T) {
	hub := startTestHub(t, Options{})
	peers := connect(t, hub, "A", "B")
	send(t, hub, peers[0], EventJoinRoom, "proj1")
	send(t, hub, peers[1], EventJoinRoom, "proj1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame, _ := EncodeEnvelope(EventDesignUpdate, map[string]any{"roomId": "proj1"})
			_ = hub.Dispatch(context.Background(), peers[0], frame)
		}()
	}
	wg.Wait()

	assert.Len(t, peers[1].events(t), 50)
	assert.Empty(t, peers[0].events(t))
}
