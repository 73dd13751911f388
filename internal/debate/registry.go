package debate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/metrics"
)

// RegistryConfig configures a Registry. Zero values select defaults.
type RegistryConfig struct {
	// MaxParticipants caps every debate. <= 0 means DefaultMaxParticipants.
	MaxParticipants int
	// MaxSessions caps the number of debates. <= 0 means unlimited.
	MaxSessions int

	Users   *UserStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Registry is the in-memory table of debates.
type Registry struct {
	maxParticipants int
	maxSessions     int

	users   *UserStore
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*session
}

// session is one independently lockable debate. Entries are never removed
// from the registry table, so a pointer obtained under Registry.mu stays valid.
type session struct {
	mu     sync.Mutex
	debate Debate
}

func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		maxParticipants: cfg.MaxParticipants,
		maxSessions:     cfg.MaxSessions,
		users:           cfg.Users,
		metrics:         cfg.Metrics,
		log:             cfg.Logger,
		now:             cfg.Now,
		newID:           cfg.NewID,
		sessions:        make(map[string]*session),
	}
	if r.maxParticipants <= 0 {
		r.maxParticipants = DefaultMaxParticipants
	}
	if r.users == nil {
		r.users = NewUserStore()
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = func() string { return uuid.NewString() }
	}
	return r
}

func (r *Registry) MaxParticipants() int { return r.maxParticipants }

// Users returns the global user table shared by all debates.
func (r *Registry) Users() *UserStore { return r.users }

// ActiveSessions reports how many debates exist.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CreateSession creates a debate owned by owner, who becomes its only
// participant.
func (r *Registry) CreateSession(title string, owner User) (Debate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Debate{}, fmt.Errorf("title must not be empty: %w", ErrInvalidArgument)
	}
	if err := owner.validate(); err != nil {
		return Debate{}, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		id := r.newID()

		r.mu.Lock()
		if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
			r.mu.Unlock()
			r.metrics.Inc(metrics.DebateQuotaRejected)
			return Debate{}, ErrTooManySessions
		}
		if _, taken := r.sessions[id]; taken {
			r.mu.Unlock()
			continue
		}
		sess := &session{debate: Debate{
			ID:           id,
			Title:        title,
			CreatedAt:    r.now().UTC(),
			IsActive:     true,
			OwnerID:      owner.ID,
			Participants: map[string]User{owner.ID: owner},
		}}
		r.sessions[id] = sess
		snap := sess.debate.Clone()
		r.mu.Unlock()

		r.users.Upsert(owner)
		r.metrics.Inc(metrics.DebatesCreated)
		r.log.Info("debate_created", "debate_id", id, "owner_id", owner.ID)
		return snap, nil
	}

	return Debate{}, errors.New("failed to allocate unique debate id")
}

func (r *Registry) lookup(id string) (*session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("debate %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// GetSession returns a snapshot of the debate.
func (r *Registry) GetSession(id string) (Debate, error) {
	sess, err := r.lookup(id)
	if err != nil {
		return Debate{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.debate.Clone(), nil
}

// ListSessions returns snapshots ordered by creation time, then ID.
func (r *Registry) ListSessions() []Debate {
	r.mu.RLock()
	all := make([]*session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		all = append(all, sess)
	}
	r.mu.RUnlock()

	out := make([]Debate, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		out = append(out, sess.debate.Clone())
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// JoinSession admits user into the debate. Re-joining as an existing
// participant always succeeds and refreshes the stored profile.
func (r *Registry) JoinSession(id string, user User) (Debate, error) {
	if err := user.validate(); err != nil {
		return Debate{}, err
	}
	sess, err := r.lookup(id)
	if err != nil {
		return Debate{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	_, rejoin := sess.debate.Participants[user.ID]
	if !rejoin && len(sess.debate.Participants) >= r.maxParticipants {
		r.metrics.Inc(metrics.JoinRejectedFull)
		return Debate{}, fmt.Errorf("debate %q is full (%d participants): %w", id, r.maxParticipants, ErrConflict)
	}

	sess.debate.Participants[user.ID] = user
	r.users.Upsert(user)

	if !rejoin {
		r.metrics.Inc(metrics.ParticipantsJoined)
		r.log.Debug("debate_joined", "debate_id", id, "user_id", user.ID, "participants", len(sess.debate.Participants))
	}
	return sess.debate.Clone(), nil
}

// LeaveSession removes userID from the debate. The debate survives even when it
// becomes empty, and ownership is not transferred.
func (r *Registry) LeaveSession(id, userID string) (Debate, error) {
	sess, err := r.lookup(id)
	if err != nil {
		return Debate{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, ok := sess.debate.Participants[userID]; !ok {
		return Debate{}, fmt.Errorf("user %q is not a participant of debate %q: %w", userID, id, ErrInvalidArgument)
	}
	delete(sess.debate.Participants, userID)

	r.metrics.Inc(metrics.ParticipantsLeft)
	r.log.Debug("debate_left", "debate_id", id, "user_id", userID, "participants", len(sess.debate.Participants))
	return sess.debate.Clone(), nil
}
