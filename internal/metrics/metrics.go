package metrics

import "sync"

// Event counter names.
const (
	DebatesCreated      = "debates_created"
	DebateQuotaRejected = "too_many_sessions"
	ParticipantsJoined  = "participants_joined"
	ParticipantsLeft    = "participants_left"
	JoinRejectedFull    = "join_rejected_full"

	RoutesAttached   = "routes_attached"
	RoutesDetached   = "routes_detached"
	RoutesSuperseded = "routes_superseded"
	AttachRejected   = "attach_rejected"

	MessagesRelayed           = "messages_relayed"
	MessagesDroppedQueueFull  = "messages_dropped_queue_full"
	MessagesDroppedNotMember  = "messages_dropped_not_member"
	MessagesDroppedNoRoute    = "messages_dropped_no_route"
	RouteSendFailures         = "route_send_failures"
	SignalingConnections      = "signaling_connections"
	SignalingIdentifyFailures = "signaling_identify_failures"
	SignalingBadMessages      = "signaling_bad_messages"
	DropReasonRateLimited     = "rate_limited"
)

// Metrics is a concurrency-safe counter registry shared by the registry, the
// hub and the websocket gateway.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
