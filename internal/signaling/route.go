package signaling

import (
	"sync"

	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/metrics"
)

// Transport delivers envelopes to one connected client. Send is only ever
// called from the owning route's writer goroutine.
type Transport interface {
	Send(Envelope) error
	Close() error
}

// Route is the live delivery channel for one user in one debate.
type Route struct {
	hub       *Hub
	sessionID string
	userID    string
	transport Transport
	queue     *sendQueue

	done      chan struct{}
	closeOnce sync.Once
}

func newRoute(h *Hub, sessionID, userID string, t Transport) *Route {
	return &Route{
		hub:       h,
		sessionID: sessionID,
		userID:    userID,
		transport: t,
		queue: newSendQueue(h.queueSize, func() {
			h.metrics.Inc(metrics.MessagesDroppedQueueFull)
		}),
		done: make(chan struct{}),
	}
}

func (r *Route) SessionID() string { return r.sessionID }
func (r *Route) UserID() string    { return r.userID }

// Done is closed once the route has been detached or superseded.
func (r *Route) Done() <-chan struct{} { return r.done }

// Dropped reports how many envelopes were evicted from this route's queue.
func (r *Route) Dropped() uint64 { return r.queue.DropCount() }

// Relay forwards env from this route's user to the other attached
// participants. It is a no-op once the route is no longer the active one.
func (r *Route) Relay(env Envelope) {
	r.hub.relay(r.sessionID, r.userID, r, env)
}

// Close detaches the route if it is still the active route for its user.
func (r *Route) Close() {
	r.hub.detachRoute(r)
}

func (r *Route) enqueue(env Envelope) bool {
	return r.queue.Enqueue(env)
}

func (r *Route) writeLoop() {
	for {
		env, ok := r.queue.Dequeue()
		if !ok {
			return
		}
		if err := r.transport.Send(env); err != nil {
			r.hub.metrics.Inc(metrics.RouteSendFailures)
			r.hub.log.Debug("signaling_send_failed",
				"debate_id", r.sessionID,
				"user_id", r.userID,
				"err", err,
			)
			r.hub.detachRoute(r)
			return
		}
	}
}

// shutdown stops the writer and closes the transport. Callers must already
// have removed the route from the hub.
func (r *Route) shutdown() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.queue.Close()
		_ = r.transport.Close()
	})
}
