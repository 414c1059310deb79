// Package notify fans lifecycle events out to connected parties. The
// registry is process-scoped: created at startup, injected into whatever
// needs to emit, torn down at shutdown. It knows nothing about the transport
// behind a Session.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
	"ridecore/pkg/metrics"
)

// Session is a live realtime channel to one party. Deliver must preserve the
// order of calls made on a single session (FIFO per connection).
type Session interface {
	Deliver(event types.RideEvent, payload any) error
	Close() error
}

// Party is one registered connection record. Ephemeral, never persisted.
type Party struct {
	UserID      uuid.UUID
	Role        types.UserRole
	ConnectedAt time.Time

	session Session
}

// Notifier keeps at most one live session per user id.
type Notifier struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*Party
	log     logger.Logger
}

func New(log logger.Logger) *Notifier {
	return &Notifier{
		clients: make(map[uuid.UUID]*Party),
		log:     log,
	}
}

// Register adds a session for the user, replacing and closing any session
// that user already had.
func (n *Notifier) Register(userID uuid.UUID, role types.UserRole, session Session) {
	ctx := wrap.WithAction(context.Background(), "register_party")

	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.clients[userID]; ok {
		n.log.Warn(ctx, "replacing existing connection", "user_id", userID)
		if err := existing.session.Close(); err != nil {
			n.log.Warn(ctx, "failed to close replaced session", "user_id", userID, "err", err.Error())
		}
	} else {
		metrics.ConnectedParties.WithLabelValues(role.String()).Inc()
	}

	n.clients[userID] = &Party{
		UserID:      userID,
		Role:        role,
		ConnectedAt: time.Now(),
		session:     session,
	}
}

// Unregister removes and closes the user's session. No-op if absent.
func (n *Notifier) Unregister(userID uuid.UUID) {
	ctx := wrap.WithAction(context.Background(), "unregister_party")

	n.mu.Lock()
	defer n.mu.Unlock()

	party, ok := n.clients[userID]
	if !ok {
		return
	}

	if err := party.session.Close(); err != nil {
		n.log.Warn(ctx, "failed to close session", "user_id", userID, "err", err.Error())
	}
	delete(n.clients, userID)
	metrics.ConnectedParties.WithLabelValues(party.Role.String()).Dec()
}

// UnregisterSession removes the user's registration only if it still points
// at the given session. Keeps a stale disconnect from tearing down the
// session that replaced it.
func (n *Notifier) UnregisterSession(userID uuid.UUID, session Session) {
	ctx := wrap.WithAction(context.Background(), "unregister_party")

	n.mu.Lock()
	defer n.mu.Unlock()

	party, ok := n.clients[userID]
	if !ok || party.session != session {
		return
	}

	if err := party.session.Close(); err != nil {
		n.log.Warn(ctx, "failed to close session", "user_id", userID, "err", err.Error())
	}
	delete(n.clients, userID)
	metrics.ConnectedParties.WithLabelValues(party.Role.String()).Dec()
}

// SendTo delivers an event to one user. Events for users without a live
// session are dropped silently: there is no queueing and no retry.
func (n *Notifier) SendTo(ctx context.Context, userID uuid.UUID, event models.Event) {
	n.mu.Lock()
	party, ok := n.clients[userID]
	n.mu.Unlock()

	name := event.EventName()
	if !ok {
		metrics.NotificationsTotal.WithLabelValues(name.String(), "dropped").Inc()
		return
	}

	if err := party.session.Deliver(name, event); err != nil {
		metrics.NotificationsTotal.WithLabelValues(name.String(), "failed").Inc()
		n.log.Warn(ctx, "failed to deliver notification", "user_id", userID, "event", name, "err", err.Error())
		return
	}
	metrics.NotificationsTotal.WithLabelValues(name.String(), "delivered").Inc()
}

// Broadcast delivers an event to every live session. Delivery is
// best-effort and at-most-once per session; failures are logged and do not
// stop the fan-out.
func (n *Notifier) Broadcast(ctx context.Context, event models.Event) {
	// Snapshot under the lock, deliver outside it.
	n.mu.Lock()
	parties := make([]*Party, 0, len(n.clients))
	for _, p := range n.clients {
		parties = append(parties, p)
	}
	n.mu.Unlock()

	name := event.EventName()
	for _, p := range parties {
		if err := p.session.Deliver(name, event); err != nil {
			metrics.NotificationsTotal.WithLabelValues(name.String(), "failed").Inc()
			n.log.Warn(ctx, "broadcast delivery failed", "user_id", p.UserID, "event", name, "err", err.Error())
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(name.String(), "delivered").Inc()
	}
}

// Parties returns a snapshot of the current registrations.
func (n *Notifier) Parties() []Party {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Party, 0, len(n.clients))
	for _, p := range n.clients {
		out = append(out, *p)
	}
	return out
}

// Count returns the number of live registrations.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

// Close tears down every session. Called once at shutdown.
func (n *Notifier) Close() {
	ctx := wrap.WithAction(context.Background(), "notifier_close")

	n.mu.Lock()
	ids := make([]uuid.UUID, 0, len(n.clients))
	for id := range n.clients {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	for _, id := range ids {
		n.Unregister(id)
	}

	n.log.Info(ctx, "all notification sessions closed")
}
