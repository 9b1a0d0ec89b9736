package session

import (
	"errors"
	"time"
)

// User types accepted at check-in.
const (
	UserStudent = "student"
	UserStaff   = "staff"
	UserGuest   = "guest"
)

// Session status. Transitions open -> closed exactly once.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Purposes is the fixed set offered at check-in. "IEDC" is additionally
// accepted as a sentinel for the IEDC member flow.
var Purposes = []string{"Project Work", "Workshop", "Event", "Mentoring", "Other"}

// PurposeIEDC marks sessions opened through the IEDC member flow.
const PurposeIEDC = "IEDC"

// Session is a single visit. Field names and JSON shape are the wire
// contract with the store and must stay compatible with existing data.
type Session struct {
	ID              string     `json:"id"`
	UserType        string     `json:"user_type"`
	Role            string     `json:"role"`
	Name            string     `json:"name"`
	Purpose         string     `json:"purpose"`
	Email           *string    `json:"email"`
	RegNo           *string    `json:"reg_no"`
	Phone           *string    `json:"phone"`
	Department      *string    `json:"department"`
	Year            *string    `json:"year"`
	Organization    *string    `json:"organization"`
	CheckInTime     time.Time  `json:"check_in_time"`
	CheckInPhotoURL string     `json:"check_in_photo_url"`
	CheckOutTime    *time.Time `json:"check_out_time"`
	DurationMinutes *int       `json:"duration_minutes"`
	Status          string     `json:"status"`
	DeviceInfo      *string    `json:"device_info"`
}

// IdentityValue returns the identifier a session is keyed by.
func (s Session) IdentityValue() string {
	if s.RegNo != nil && *s.RegNo != "" {
		return *s.RegNo
	}
	if s.Phone != nil {
		return *s.Phone
	}
	return ""
}

var (
	ErrDuplicateOpenSession = errors.New("already have an active check-in; check out first")
	ErrNoOpenSession        = errors.New("no active check-in found")
	ErrAlreadyClosed        = errors.New("session already closed")
	ErrSessionNotFound      = errors.New("session not found")

	ErrInvalidUserType = errors.New("invalid user_type")
	ErrMissingName     = errors.New("missing name")
	ErrInvalidPurpose  = errors.New("invalid purpose")
	ErrMissingPhoto    = errors.New("photo is required for check-in")
)

// ValidPurpose reports whether p is one of the fixed purposes or the
// IEDC sentinel.
func ValidPurpose(p string) bool {
	if p == PurposeIEDC {
		return true
	}
	for _, v := range Purposes {
		if v == p {
			return true
		}
	}
	return false
}

// DurationMinutes converts a check-in/check-out pair into whole minutes,
// truncated, never negative.
func DurationMinutes(in, out time.Time) int {
	d := out.Sub(in)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// ElapsedMinutes is the live, non-persisted counterpart of DurationMinutes.
func ElapsedMinutes(s Session, now time.Time) int {
	return DurationMinutes(s.CheckInTime, now)
}
