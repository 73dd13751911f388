package debate

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMaxParticipants bounds a debate to a small full mesh.
const DefaultMaxParticipants = 6

// User is a participant profile. Values are immutable; a re-join replaces the
// stored profile for the same ID.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

func (u User) validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id must not be empty: %w", ErrInvalidArgument)
	}
	if u.Age < 0 {
		return fmt.Errorf("user %q: age must be non-negative: %w", u.ID, ErrInvalidArgument)
	}
	return nil
}

// Debate is a snapshot of a debate session. Snapshots returned by the Registry
// own their Participants map; mutating one never affects the live session.
type Debate struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	CreatedAt    time.Time       `json:"created_at"`
	IsActive     bool            `json:"is_active"`
	OwnerID      string          `json:"owner_id"`
	Participants map[string]User `json:"participants"`
}

// Clone returns a deep copy of d.
func (d Debate) Clone() Debate {
	out := d
	out.Participants = make(map[string]User, len(d.Participants))
	for id, u := range d.Participants {
		out.Participants[id] = u
	}
	return out
}

func (d Debate) HasParticipant(userID string) bool {
	_, ok := d.Participants[userID]
	return ok
}

// ParticipantIDs returns the participant IDs in ascending order.
func (d Debate) ParticipantIDs() []string {
	ids := make([]string, 0, len(d.Participants))
	for id := range d.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
