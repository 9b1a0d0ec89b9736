package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"makerspace/internal/session"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// seed inserts a session stamped at the given instant, optionally closing it.
func seed(t *testing.T, store *session.MemStore, at time.Time, regNo, userType, purpose string, close bool) session.Session {
	t.Helper()
	store.Now = fixedClock(at)
	s, err := store.Insert(context.Background(), session.Session{
		UserType:        userType,
		Role:            userType,
		Name:            "Visitor " + regNo,
		Purpose:         purpose,
		RegNo:           &regNo,
		CheckInPhotoURL: "https://example.com/p.jpg",
	})
	if err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}
	if close {
		if _, err := store.Close(context.Background(), s.ID); err != nil {
			t.Fatalf("seed close failed: %v", err)
		}
	}
	return s
}

func TestStatsForToday(t *testing.T) {
	store := session.NewMemStore()
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	svc := NewService(store, fixedClock(now))
	ctx := context.Background()

	seed(t, store, now.Add(-2*time.Hour), "KSD24IT051", session.UserStudent, "Workshop", false)
	seed(t, store, now.Add(-3*time.Hour), "KSD24CS052", session.UserStudent, "Workshop", true)
	seed(t, store, now.Add(-1*time.Hour), "IEDC24X01", session.UserStaff, "Mentoring", false)
	seed(t, store, now.Add(-30*time.Minute), "IEDC24X02", session.UserGuest, "", false)
	// Yesterday, must not count.
	seed(t, store, now.Add(-26*time.Hour), "KSD23ME001", session.UserStudent, "Event", true)

	stats, err := svc.StatsForToday(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalCheckins != 4 {
		t.Fatalf("total = %d, want 4", stats.TotalCheckins)
	}
	if stats.ActiveUsers != 3 {
		t.Fatalf("active = %d, want 3", stats.ActiveUsers)
	}
	if stats.Students != 2 || stats.Staff != 1 {
		t.Fatalf("students/staff = %d/%d, want 2/1", stats.Students, stats.Staff)
	}
	if stats.ByPurpose["Workshop"] != 2 || stats.ByPurpose["Mentoring"] != 1 || stats.ByPurpose["Unknown"] != 1 {
		t.Fatalf("by_purpose = %v", stats.ByPurpose)
	}

	sum := 0
	for _, n := range stats.ByPurpose {
		sum += n
	}
	if sum != stats.TotalCheckins {
		t.Fatalf("by_purpose sums to %d, want %d", sum, stats.TotalCheckins)
	}
}

func TestSessionsForTodaySorted(t *testing.T) {
	store := session.NewMemStore()
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	svc := NewService(store, fixedClock(now))

	seed(t, store, now.Add(-5*time.Hour), "KSD24IT051", session.UserStudent, "Workshop", false)
	seed(t, store, now.Add(-1*time.Hour), "KSD24CS052", session.UserStudent, "Event", false)
	seed(t, store, now.Add(-3*time.Hour), "IEDC24X01", session.UserStaff, "Other", true)

	list, err := svc.SessionsForToday(context.Background())
	if err != nil {
		t.Fatalf("today failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CheckInTime.After(list[i-1].CheckInTime) {
			t.Fatalf("sessions not sorted descending at %d", i)
		}
	}
}

func TestSessionsLive(t *testing.T) {
	store := session.NewMemStore()
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	svc := NewService(store, fixedClock(now))

	seed(t, store, now.Add(-2*time.Hour), "KSD24IT051", session.UserStudent, "Workshop", false)
	seed(t, store, now.Add(-1*time.Hour), "KSD24CS052", session.UserStudent, "Event", true)

	list, err := svc.SessionsLive(context.Background())
	if err != nil {
		t.Fatalf("live failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Status != session.StatusOpen {
		t.Fatalf("status = %q, want open", list[0].Status)
	}
}

func TestSessionsForMonthWindow(t *testing.T) {
	store := session.NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	inside := seed(t, store, time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC), "KSD24IT051", session.UserStudent, "Workshop", true)
	seed(t, store, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "KSD24CS052", session.UserStudent, "Event", true)
	// Boundary: first instant of March is outside February's half-open range.
	seed(t, store, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "KSD24ME053", session.UserStudent, "Other", true)
	seed(t, store, time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC), "KSD24EC054", session.UserStudent, "Other", true)

	list, err := svc.SessionsForMonth(ctx, "2025-02")
	if err != nil {
		t.Fatalf("monthly failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != inside.ID {
		t.Fatalf("expected most recent February session first")
	}
}

func TestSessionsForMonthFormat(t *testing.T) {
	svc := NewService(session.NewMemStore(), nil)
	ctx := context.Background()

	for _, bad := range []string{"2025-13", "2025-00", "2025-2", "202502", "abcd-ef", ""} {
		if _, err := svc.SessionsForMonth(ctx, bad); !errors.Is(err, ErrInvalidMonthFormat) {
			t.Errorf("SessionsForMonth(%q) err = %v, want ErrInvalidMonthFormat", bad, err)
		}
	}
	if _, err := svc.SessionsForMonth(ctx, "2025-12"); err != nil {
		t.Errorf("2025-12 should be accepted: %v", err)
	}
}
