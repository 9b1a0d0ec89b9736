package session

import (
	"context"
	"time"

	"makerspace/internal/identity"
)

// Store is the persistence port for sessions. Implementations must make
// Insert conditional on no open session existing for the same identity,
// and must stamp timestamps themselves so callers never supply a clock.
type Store interface {
	// Insert persists a new open session, assigning ID and CheckInTime.
	// Returns ErrDuplicateOpenSession when the identity already has one open.
	Insert(ctx context.Context, s Session) (Session, error)

	// FindOpen returns the open session looked up by field=value, or nil.
	FindOpen(ctx context.Context, field identity.Field, value string) (*Session, error)

	// Close stamps CheckOutTime, computes DurationMinutes and flips the
	// session to closed. Returns ErrSessionNotFound for an unknown id and
	// ErrAlreadyClosed when the session is not open; neither mutates anything.
	Close(ctx context.Context, id string) (Session, error)

	// Get returns a session by id or ErrSessionNotFound.
	Get(ctx context.Context, id string) (Session, error)

	// InWindow returns sessions with CheckInTime in [from, to), unordered.
	InWindow(ctx context.Context, from, to time.Time) ([]Session, error)

	// OpenSessions returns all sessions with status open, unordered.
	OpenSessions(ctx context.Context) ([]Session, error)

	// UpdateProfile fills department/year on an existing session; nil
	// values leave the stored field untouched.
	UpdateProfile(ctx context.Context, id string, department, year *string) error
}
