package signaling

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/debate"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/metrics"
)

// DefaultSendQueueMessages is the per-route outbound queue depth.
const DefaultSendQueueMessages = 64

var ErrHubClosed = errors.New("signaling hub closed")

// Sessions is the read side of the debate registry the hub consults for
// membership. *debate.Registry implements it.
type Sessions interface {
	GetSession(id string) (debate.Debate, error)
}

type HubConfig struct {
	Sessions          Sessions
	SendQueueMessages int
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
}

// Hub fans signaling envelopes out to the participants of each debate.
type Hub struct {
	sessions  Sessions
	queueSize int
	metrics   *metrics.Metrics
	log       *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// room holds the routes of one debate. A room is removed from the hub once it
// has no routes; dead marks it so racing attaches retry on a fresh room.
//
// Lock order: Hub.mu before room.mu.
type room struct {
	mu     sync.Mutex
	routes map[string]*Route
	dead   bool
}

func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		sessions:  cfg.Sessions,
		queueSize: cfg.SendQueueMessages,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		rooms:     make(map[string]*room),
	}
	if h.queueSize <= 0 {
		h.queueSize = DefaultSendQueueMessages
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.log == nil {
		h.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Attach registers t as the route for userID in the debate, replacing and
// closing any previous route for the same user. The first envelope delivered
// on the new route is a ready envelope listing the peers already attached.
func (h *Hub) Attach(sessionID, userID string, t Transport) (*Route, error) {
	d, err := h.sessions.GetSession(sessionID)
	if err != nil {
		h.metrics.Inc(metrics.AttachRejected)
		return nil, err
	}
	if !d.HasParticipant(userID) {
		h.metrics.Inc(metrics.AttachRejected)
		return nil, fmt.Errorf("user %q is not a participant of debate %q: %w", userID, sessionID, debate.ErrForbidden)
	}

	for {
		rm, err := h.acquireRoom(sessionID)
		if err != nil {
			h.metrics.Inc(metrics.AttachRejected)
			return nil, err
		}

		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}

		route := newRoute(h, sessionID, userID, t)
		peers := make([]string, 0, len(rm.routes))
		for id := range rm.routes {
			if id != userID && d.HasParticipant(id) {
				peers = append(peers, id)
			}
		}
		sort.Strings(peers)
		route.enqueue(Envelope{
			Type:      MessageTypeReady,
			From:      userID,
			SessionID: sessionID,
			Peers:     peers,
		})

		prev := rm.routes[userID]
		rm.routes[userID] = route
		rm.mu.Unlock()

		go route.writeLoop()

		if prev != nil {
			prev.shutdown()
			h.metrics.Inc(metrics.RoutesSuperseded)
		}
		h.metrics.Inc(metrics.RoutesAttached)
		h.log.Info("signaling_route_attached",
			"debate_id", sessionID,
			"user_id", userID,
			"peers", len(peers),
			"superseded", prev != nil,
		)
		return route, nil
	}
}

func (h *Hub) acquireRoom(sessionID string) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	rm, ok := h.rooms[sessionID]
	if !ok {
		rm = &room{routes: make(map[string]*Route)}
		h.rooms[sessionID] = rm
	}
	return rm, nil
}

func (h *Hub) room(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[sessionID]
}

// Relay delivers env from senderID to every other attached participant of the
// debate, or only to env.To when it is set. The sender must be a current
// participant with an attached route; otherwise the envelope is dropped.
//
// Delivery never blocks: a recipient whose queue is full loses its oldest
// pending envelope.
func (h *Hub) Relay(sessionID, senderID string, env Envelope) {
	h.relay(sessionID, senderID, nil, env)
}

func (h *Hub) relay(sessionID, senderID string, sender *Route, env Envelope) {
	env.From = senderID
	env.SessionID = sessionID
	env.Peers = nil

	rm := h.room(sessionID)
	if rm == nil {
		h.metrics.Inc(metrics.MessagesDroppedNoRoute)
		return
	}
	d, err := h.sessions.GetSession(sessionID)
	if err != nil || !d.HasParticipant(senderID) {
		h.metrics.Inc(metrics.MessagesDroppedNotMember)
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	active := rm.routes[senderID]
	if active == nil || (sender != nil && active != sender) {
		h.metrics.Inc(metrics.MessagesDroppedNoRoute)
		return
	}

	if env.To != "" {
		if env.To == senderID {
			return
		}
		target := rm.routes[env.To]
		switch {
		case target == nil:
			h.metrics.Inc(metrics.MessagesDroppedNoRoute)
		case !d.HasParticipant(env.To):
			h.metrics.Inc(metrics.MessagesDroppedNotMember)
		case target.enqueue(env):
			h.metrics.Inc(metrics.MessagesRelayed)
		}
		return
	}

	for id, target := range rm.routes {
		if id == senderID {
			continue
		}
		if !d.HasParticipant(id) {
			h.metrics.Inc(metrics.MessagesDroppedNotMember)
			continue
		}
		if target.enqueue(env) {
			h.metrics.Inc(metrics.MessagesRelayed)
		}
	}
}

// Detach removes the active route for userID, if any. It is idempotent.
func (h *Hub) Detach(sessionID, userID string) {
	rm := h.room(sessionID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	route := rm.routes[userID]
	rm.mu.Unlock()
	if route != nil {
		h.detachRoute(route)
	}
}

func (h *Hub) detachRoute(r *Route) {
	rm := h.room(r.sessionID)
	removed := false
	empty := false
	if rm != nil {
		rm.mu.Lock()
		if rm.routes[r.userID] == r {
			delete(rm.routes, r.userID)
			removed = true
			empty = len(rm.routes) == 0
		}
		rm.mu.Unlock()
	}

	r.shutdown()
	if !removed {
		return
	}

	h.metrics.Inc(metrics.RoutesDetached)
	h.log.Info("signaling_route_detached",
		"debate_id", r.sessionID,
		"user_id", r.userID,
		"dropped", r.Dropped(),
	)
	if empty {
		h.pruneRoom(r.sessionID, rm)
	}
}

func (h *Hub) pruneRoom(sessionID string, rm *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.routes) != 0 || h.rooms[sessionID] != rm {
		return
	}
	rm.dead = true
	delete(h.rooms, sessionID)
}

// Peers returns the user IDs with an attached route in the debate, sorted.
func (h *Hub) Peers(sessionID string) []string {
	rm := h.room(sessionID)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	ids := make([]string, 0, len(rm.routes))
	for id := range rm.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveRoutes reports the number of attached routes across all debates.
func (h *Hub) ActiveRoutes() int {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, rm := range h.rooms {
		rooms = append(rooms, rm)
	}
	h.mu.Unlock()

	n := 0
	for _, rm := range rooms {
		rm.mu.Lock()
		n += len(rm.routes)
		rm.mu.Unlock()
	}
	return n
}

// Close detaches every route and rejects further attaches.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var routes []*Route
	for id, rm := range h.rooms {
		rm.mu.Lock()
		for _, r := range rm.routes {
			routes = append(routes, r)
		}
		rm.routes = make(map[string]*Route)
		rm.dead = true
		rm.mu.Unlock()
		delete(h.rooms, id)
	}
	h.mu.Unlock()

	for _, r := range routes {
		r.shutdown()
		h.metrics.Inc(metrics.RoutesDetached)
	}
}
