package session

import (
	"context"
	"errors"
	"time"

	"makerspace/internal/identity"
)

// CheckInInput carries the raw check-in form. Empty optional fields are
// stored as NULL.
type CheckInInput struct {
	UserType     string
	Role         string
	Name         string
	RegNo        string
	Email        string
	Department   string
	Year         string
	Organization string
	Purpose      string
	PhotoURL     string
	DeviceInfo   string
}

// Service is the session lifecycle engine. All timestamps come from the
// store at commit time; the service clock only feeds live elapsed-minutes
// display.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a lifecycle engine over a store.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, now: now}
}

// CheckIn validates the form, normalizes the identifier and opens a new
// session. A second open session for the same identity is rejected by the
// store with ErrDuplicateOpenSession.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (Session, error) {
	if in.UserType != UserStudent && in.UserType != UserStaff && in.UserType != UserGuest {
		return Session{}, ErrInvalidUserType
	}
	if in.Name == "" {
		return Session{}, ErrMissingName
	}
	if in.Purpose == "" || !ValidPurpose(in.Purpose) {
		return Session{}, ErrInvalidPurpose
	}
	if in.PhotoURL == "" {
		return Session{}, ErrMissingPhoto
	}

	var id identity.Identity
	var err error
	if in.UserType == UserStudent {
		id, err = identity.NormalizeRegNo(in.RegNo)
	} else {
		id, err = identity.NormalizeMemberID(in.RegNo)
	}
	if err != nil {
		return Session{}, err
	}

	role := in.Role
	if role == "" {
		role = in.UserType
	}

	rec := Session{
		UserType:        in.UserType,
		Role:            role,
		Name:            in.Name,
		Purpose:         in.Purpose,
		Email:           optional(in.Email),
		RegNo:           &id.Value,
		CheckInPhotoURL: in.PhotoURL,
		DeviceInfo:      optional(in.DeviceInfo),
	}
	switch in.UserType {
	case UserStudent:
		rec.Department = optional(in.Department)
		rec.Year = optional(in.Year)
	case UserStaff:
		rec.Department = optional(in.Department)
	case UserGuest:
		rec.Organization = optional(in.Organization)
	}

	return s.store.Insert(ctx, rec)
}

// CheckOut resolves a raw identifier to its unique open session and closes
// it. Double submissions re-resolve to ErrNoOpenSession since the lookup
// filters on open status.
func (s *Service) CheckOut(ctx context.Context, rawIdentifier string) (Session, error) {
	id, err := identity.Normalize(rawIdentifier)
	if err != nil {
		return Session{}, err
	}
	open, err := s.store.FindOpen(ctx, id.Field, id.Value)
	if err != nil {
		return Session{}, err
	}
	if open == nil {
		return Session{}, ErrNoOpenSession
	}
	closed, err := s.store.Close(ctx, open.ID)
	if errors.Is(err, ErrAlreadyClosed) {
		// Lost a race with a concurrent checkout of the same session.
		return Session{}, ErrNoOpenSession
	}
	return closed, err
}

// ForceCheckOut closes a session addressed by id, for admins closing on a
// visitor's behalf. Closing an already-closed session fails with
// ErrAlreadyClosed and leaves its check-out fields untouched.
func (s *Service) ForceCheckOut(ctx context.Context, sessionID string) (Session, error) {
	return s.store.Close(ctx, sessionID)
}

// Lookup returns the open session for a raw identifier plus its live
// elapsed minutes. Elapsed minutes are display-only and never persisted.
func (s *Service) Lookup(ctx context.Context, rawIdentifier string) (Session, int, error) {
	id, err := identity.Normalize(rawIdentifier)
	if err != nil {
		return Session{}, 0, err
	}
	open, err := s.store.FindOpen(ctx, id.Field, id.Value)
	if err != nil {
		return Session{}, 0, err
	}
	if open == nil {
		return Session{}, 0, ErrNoOpenSession
	}
	return *open, ElapsedMinutes(*open, s.now()), nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
