package debate

import "errors"

var (
	// ErrNotFound is returned for operations on an unknown debate.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a debate is already at capacity.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument is returned for malformed input, including a leave by
	// someone who is not a participant.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden is returned when a non-participant tries to attach a
	// signaling route.
	ErrForbidden = errors.New("forbidden")
	// ErrTooManySessions is returned by CreateSession once MaxSessions debates
	// exist.
	ErrTooManySessions = errors.New("too many sessions")
)
