package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"penci-relay/internal/auth"
	"penci-relay/pkg/logger"
)

var (
	ErrHubStopped         = errors.New("hub stopped")
	ErrClientDisconnected = errors.New("client disconnected")
)

// Options configures a Hub. Zero values pick the defaults.
type Options struct {
	SendBuffer     int
	MaxMessageSize int64

	// Verifier, when enabled, makes identify require a token and restricts
	// admin-broadcast to admin identities.
	Verifier *auth.Verifier

	// Presence mirrors identified users into an external store.
	Presence PresenceStore

	Now func() time.Time
}

func (o *Options) withDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// hubEvent is one unit of work for the reactor loop.
type hubEvent struct {
	apply func()
	done  chan struct{}
}

// Hub is the event relay. A single goroutine (Run) owns the registry and
// applies every connect, disconnect, inbound message and emit in arrival
// order; fan-out for one event finishes before the next event starts.
type Hub struct {
	registry *Registry

	// Held for writing by the loop while it applies an event, so readers
	// such as the health endpoint see a consistent registry.
	mu sync.RWMutex

	events chan hubEvent

	opts      Options
	presence  *presenceWorker
	startedAt time.Time

	// Context for graceful shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	logger *logger.Logger
}

func NewHub(opts Options, log *logger.Logger) *Hub {
	opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		registry:  NewRegistry(),
		events:    make(chan hubEvent),
		opts:      opts,
		startedAt: opts.Now(),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
		logger:    log.With("component", "hub"),
	}
	if opts.Presence != nil {
		h.presence = newPresenceWorker(opts.Presence, h.logger)
	}
	return h
}

func (h *Hub) Run() {
	defer close(h.stopped)

	if h.presence != nil {
		go h.presence.run(h.ctx)
	}

	for {
		select {
		case ev := <-h.events:
			h.apply(ev)

		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Stop ends the loop; Run closes every connection on its way out.
func (h *Hub) Stop() {
	h.cancel()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

func (h *Hub) apply(ev hubEvent) {
	defer close(ev.done)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in hub event", "panic", r)
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()
	ev.apply()
}

// do hands fn to the loop and waits until it has been applied.
func (h *Hub) do(ctx context.Context, fn func()) error {
	ev := hubEvent{apply: fn, done: make(chan struct{})}

	select {
	case h.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubStopped
	}

	select {
	case <-ev.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// Register adds p to the registry and greets it with its connection id.
func (h *Hub) Register(ctx context.Context, p Peer) error {
	return h.do(ctx, func() {
		id := h.registry.Add(p, h.opts.Now())
		h.logger.Info("Client registered", "connectionID", id, "connections", h.registry.Count())
		h.sendTo(p, EventConnected, ConnectedData{ConnectionID: id})
	})
}

// Unregister removes p and all of its room memberships.
func (h *Hub) Unregister(ctx context.Context, p Peer) error {
	return h.do(ctx, func() {
		if _, ok := h.registry.Peer(p.ID()); !ok {
			return
		}
		userID, last := h.registry.Remove(p.ID())
		if last {
			h.presence.offline(userID)
		}
		h.logger.Info("Client unregistered", "connectionID", p.ID(), "userID", userID, "connections", h.registry.Count())
	})
}

// Dispatch handles one inbound frame from p.
func (h *Hub) Dispatch(ctx context.Context, p Peer, raw []byte) error {
	return h.do(ctx, func() {
		h.handleFrame(p, raw)
	})
}

// Emit delivers event to every connection in scope and returns how many
// accepted it. Delivery is fire-and-forget: closed or missing recipients
// are skipped.
func (h *Hub) Emit(ctx context.Context, scope Scope, event EventName, data any) (int, error) {
	frame, err := EncodeEnvelope(event, data)
	if err != nil {
		return 0, err
	}

	var delivered int
	if err := h.do(ctx, func() {
		delivered = h.fanOut(scope, event, frame)
	}); err != nil {
		return 0, fmt.Errorf("emit %s to %s: %w", event, scope, err)
	}
	return delivered, nil
}

// fanOut must run on the loop.
func (h *Hub) fanOut(scope Scope, event EventName, frame []byte) int {
	delivered := 0
	for _, p := range scope.recipients(h.registry) {
		if err := p.Send(frame); err != nil {
			h.logger.Debug("Skipping recipient", "connectionID", p.ID(), "event", event, "error", err)
			continue
		}
		delivered++
	}
	h.logger.Debug("Event relayed", "event", event, "scope", scope.String(), "delivered", delivered)
	return delivered
}

// sendTo must run on the loop.
func (h *Hub) sendTo(p Peer, event EventName, data any) {
	frame, err := EncodeEnvelope(event, data)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	if err := p.Send(frame); err != nil {
		h.logger.Debug("Skipping recipient", "connectionID", p.ID(), "event", event, "error", err)
	}
}

func (h *Hub) sendError(p Peer, code, message string) {
	h.sendTo(p, EventError, ErrorData{Code: code, Message: message})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.registry.Peers() {
		p.Close()
		h.registry.Remove(p.ID())
	}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections     int `json:"connectedClients"`
	Rooms           int `json:"rooms"`
	IdentifiedUsers int `json:"identifiedUsers"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections:     h.registry.Count(),
		Rooms:           h.registry.RoomCount(),
		IdentifiedUsers: h.registry.UserCount(),
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.Count()
}

func (h *Hub) RoomsOf(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.RoomsOf(id)
}

func (h *Hub) MembersOf(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.MembersOf(room)
}

func (h *Hub) ConnectionsOf(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.ConnectionsOf(userID)
}

func (h *Hub) Uptime() time.Duration {
	return h.opts.Now().Sub(h.startedAt)
}

func (h *Hub) Options() Options {
	return h.opts
}
