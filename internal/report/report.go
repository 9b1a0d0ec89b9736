// Package report computes the admin dashboard aggregates: day-scoped
// stats, today/live session listings and monthly exports.
package report

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"time"

	"makerspace/internal/session"
)

// ErrInvalidMonthFormat rejects malformed or out-of-range YYYY-MM input.
var ErrInvalidMonthFormat = errors.New("invalid month format, use YYYY-MM")

var monthRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// TodayStats summarizes sessions checked in since the start of the local day.
type TodayStats struct {
	TotalCheckins int            `json:"total_checkins"`
	ActiveUsers   int            `json:"active_users"`
	Students      int            `json:"students"`
	Staff         int            `json:"staff"`
	ByPurpose     map[string]int `json:"by_purpose"`
}

// Service reads aggregates out of the session store.
type Service struct {
	store session.Store
	now   func() time.Time
}

// NewService creates an aggregation service. The clock defaults to local
// wall time; the day window follows whatever location the clock reports.
func NewService(store session.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// today returns [start of local day, now).
func (s *Service) today() (time.Time, time.Time) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, now
}

// StatsForToday aggregates today's sessions. Sessions without a purpose
// are bucketed under "Unknown", so ByPurpose always sums to TotalCheckins.
func (s *Service) StatsForToday(ctx context.Context) (TodayStats, error) {
	from, to := s.today()
	sessions, err := s.store.InWindow(ctx, from, to)
	if err != nil {
		return TodayStats{}, err
	}

	stats := TodayStats{ByPurpose: make(map[string]int)}
	stats.TotalCheckins = len(sessions)
	for _, sess := range sessions {
		if sess.Status == session.StatusOpen {
			stats.ActiveUsers++
		}
		switch sess.UserType {
		case session.UserStudent:
			stats.Students++
		case session.UserStaff:
			stats.Staff++
		}
		purpose := sess.Purpose
		if purpose == "" {
			purpose = "Unknown"
		}
		stats.ByPurpose[purpose]++
	}
	return stats, nil
}

// SessionsForToday lists today's sessions, most recent check-in first.
func (s *Service) SessionsForToday(ctx context.Context) ([]session.Session, error) {
	from, to := s.today()
	sessions, err := s.store.InWindow(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sortByCheckInDesc(sessions)
	return sessions, nil
}

// SessionsLive lists all currently open sessions, most recent first.
func (s *Service) SessionsLive(ctx context.Context) ([]session.Session, error) {
	sessions, err := s.store.OpenSessions(ctx)
	if err != nil {
		return nil, err
	}
	sortByCheckInDesc(sessions)
	return sessions, nil
}

// SessionsForMonth lists sessions checked in during the given UTC month.
// yearMonth must be "YYYY-MM" with MM in 01..12.
func (s *Service) SessionsForMonth(ctx context.Context, yearMonth string) ([]session.Session, error) {
	m := monthRe.FindStringSubmatch(yearMonth)
	if m == nil {
		return nil, ErrInvalidMonthFormat
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return nil, ErrInvalidMonthFormat
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sessions, err := s.store.InWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sortByCheckInDesc(sessions)
	return sessions, nil
}

// sortByCheckInDesc orders most recent first; zero check-in times sort last.
func sortByCheckInDesc(sessions []session.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CheckInTime.After(sessions[j].CheckInTime)
	})
}
