package websocket

import (
	"context"
	"time"

	"penci-relay/pkg/logger"
)

// PresenceStore records which users currently hold a relay connection.
type PresenceStore interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

type presenceUpdate struct {
	userID string
	online bool
}

// presenceWorker applies presence updates in order on its own goroutine so
// the hub loop never waits on the network.
type presenceWorker struct {
	store   PresenceStore
	updates chan presenceUpdate
	timeout time.Duration
	logger  *logger.Logger
}

func newPresenceWorker(store PresenceStore, log *logger.Logger) *presenceWorker {
	return &presenceWorker{
		store:   store,
		updates: make(chan presenceUpdate, 256),
		timeout: 3 * time.Second,
		logger:  log,
	}
}

func (w *presenceWorker) online(userID string)  { w.enqueue(presenceUpdate{userID: userID, online: true}) }
func (w *presenceWorker) offline(userID string) { w.enqueue(presenceUpdate{userID: userID, online: false}) }

func (w *presenceWorker) enqueue(u presenceUpdate) {
	if w == nil {
		return
	}
	select {
	case w.updates <- u:
	default:
		w.logger.Warn("Presence queue full, dropping update", "userID", u.userID, "online", u.online)
	}
}

func (w *presenceWorker) run(ctx context.Context) {
	for {
		select {
		case u := <-w.updates:
			w.apply(u)
		case <-ctx.Done():
			return
		}
	}
}

func (w *presenceWorker) apply(u presenceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	if u.online {
		err = w.store.SetUserOnline(ctx, u.userID)
	} else {
		err = w.store.SetUserOffline(ctx, u.userID)
	}
	if err != nil {
		w.logger.Error("Failed to update presence", "userID", u.userID, "online", u.online, "error", err)
	}
}
