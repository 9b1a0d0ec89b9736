package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"makerspace/internal/identity"
)

// MemStore is a mutex-guarded in-memory Store used as the dev backend and
// in tests. The single lock around check-and-insert gives it the same
// no-duplicate-open guarantee the Postgres store gets from its unique index.
type MemStore struct {
	mu sync.Mutex
	// Now supplies commit timestamps; tests override it.
	Now      func() time.Time
	sessions map[string]Session
}

// NewMemStore creates an empty store stamping with the wall clock.
func NewMemStore() *MemStore {
	return &MemStore{
		Now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]Session),
	}
}

func (m *MemStore) Insert(ctx context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.IdentityValue()
	for _, existing := range m.sessions {
		if existing.Status == StatusOpen && existing.IdentityValue() == key {
			return Session{}, ErrDuplicateOpenSession
		}
	}

	s.ID = uuid.NewString()
	s.CheckInTime = m.Now()
	s.Status = StatusOpen
	s.CheckOutTime = nil
	s.DurationMinutes = nil
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemStore) FindOpen(ctx context.Context, field identity.Field, value string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.Status != StatusOpen {
			continue
		}
		switch field {
		case identity.FieldRegNo:
			if s.RegNo != nil && *s.RegNo == value {
				out := s
				return &out, nil
			}
		case identity.FieldPhone:
			if s.Phone != nil && *s.Phone == value {
				out := s
				return &out, nil
			}
		}
	}
	return nil, nil
}

func (m *MemStore) Close(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.Status != StatusOpen {
		return Session{}, ErrAlreadyClosed
	}

	out := m.Now()
	dur := DurationMinutes(s.CheckInTime, out)
	s.CheckOutTime = &out
	s.DurationMinutes = &dur
	s.Status = StatusClosed
	m.sessions[id] = s
	return s, nil
}

func (m *MemStore) Get(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemStore) InWindow(ctx context.Context, from, to time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []Session
	for _, s := range m.sessions {
		if !s.CheckInTime.Before(from) && s.CheckInTime.Before(to) {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *MemStore) OpenSessions(ctx context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []Session
	for _, s := range m.sessions {
		if s.Status == StatusOpen {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *MemStore) UpdateProfile(ctx context.Context, id string, department, year *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if department != nil {
		s.Department = department
	}
	if year != nil {
		s.Year = year
	}
	m.sessions[id] = s
	return nil
}
