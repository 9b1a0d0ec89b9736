package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func studentInput(regNo string) CheckInInput {
	return CheckInInput{
		UserType: UserStudent,
		Name:     "Asha",
		RegNo:    regNo,
		Purpose:  "Workshop",
		PhotoURL: "https://res.cloudinary.com/demo/image/upload/x.jpg",
	}
}

func TestCheckInOpensSession(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)

	sess, err := svc.CheckIn(context.Background(), studentInput("ksd24it051"))
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if sess.Status != StatusOpen {
		t.Fatalf("status = %q, want open", sess.Status)
	}
	if sess.RegNo == nil || *sess.RegNo != "KSD24IT051" {
		t.Fatalf("reg_no not normalized: %v", sess.RegNo)
	}
	if sess.CheckInTime.IsZero() {
		t.Fatal("check_in_time not stamped")
	}
	if sess.CheckOutTime != nil || sess.DurationMinutes != nil {
		t.Fatal("open session must have nil check-out fields")
	}
}

func TestCheckInValidation(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CheckInInput)
		want   error
	}{
		{"bad user type", func(in *CheckInInput) { in.UserType = "robot" }, ErrInvalidUserType},
		{"missing name", func(in *CheckInInput) { in.Name = "" }, ErrMissingName},
		{"missing purpose", func(in *CheckInInput) { in.Purpose = "" }, ErrInvalidPurpose},
		{"unknown purpose", func(in *CheckInInput) { in.Purpose = "Loitering" }, ErrInvalidPurpose},
		{"missing photo", func(in *CheckInInput) { in.PhotoURL = "" }, ErrMissingPhoto},
	}
	for _, tc := range cases {
		in := studentInput("KSD24IT051")
		tc.mutate(&in)
		if _, err := svc.CheckIn(ctx, in); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	// Staff must present a membership code, not a student reg no.
	in := studentInput("KSD24IT051")
	in.UserType = UserStaff
	if _, err := svc.CheckIn(ctx, in); err == nil {
		t.Error("staff with a student reg no should be rejected")
	}

	in = studentInput("IEDC24X09")
	in.UserType = UserStaff
	in.Purpose = PurposeIEDC
	if _, err := svc.CheckIn(ctx, in); err != nil {
		t.Errorf("staff with membership code failed: %v", err)
	}
}

func TestDuplicateCheckInRejected(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, studentInput("KSD24IT051")); err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}
	if _, err := svc.CheckIn(ctx, studentInput("KSD24IT051")); !errors.Is(err, ErrDuplicateOpenSession) {
		t.Fatalf("second check-in err = %v, want ErrDuplicateOpenSession", err)
	}
}

func TestCheckOutWithoutOpenSession(t *testing.T) {
	svc := NewService(NewMemStore(), nil)
	if _, err := svc.CheckOut(context.Background(), "KSD24IT051"); !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("err = %v, want ErrNoOpenSession", err)
	}
}

func TestCheckOutDuration(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		out  time.Time
		want int
	}{
		{"125 minutes", t0.Add(125 * time.Minute), 125},
		{"59 seconds", t0.Add(59 * time.Second), 0},
		{"clock skew backwards", t0.Add(-time.Minute), 0},
	}
	for _, tc := range cases {
		store := NewMemStore()
		svc := NewService(store, nil)
		ctx := context.Background()

		store.Now = fixedClock(t0)
		if _, err := svc.CheckIn(ctx, studentInput("KSD24IT051")); err != nil {
			t.Fatalf("%s: check-in failed: %v", tc.name, err)
		}

		store.Now = fixedClock(tc.out)
		closed, err := svc.CheckOut(ctx, "KSD24IT051")
		if err != nil {
			t.Fatalf("%s: check-out failed: %v", tc.name, err)
		}
		if closed.DurationMinutes == nil || *closed.DurationMinutes != tc.want {
			t.Errorf("%s: duration = %v, want %d", tc.name, closed.DurationMinutes, tc.want)
		}
		if closed.Status != StatusClosed {
			t.Errorf("%s: status = %q, want closed", tc.name, closed.Status)
		}
	}
}

func TestCheckOutByPhone(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	phone := "9876543210"
	if _, err := store.Insert(ctx, Session{
		UserType:        UserGuest,
		Role:            UserGuest,
		Name:            "Walk In",
		Purpose:         "Event",
		Phone:           &phone,
		CheckInPhotoURL: "https://example.com/p.jpg",
	}); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	closed, err := svc.CheckOut(ctx, "98765 43210")
	if err != nil {
		t.Fatalf("phone check-out failed: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Fatalf("status = %q, want closed", closed.Status)
	}
}

func TestForceCheckOut(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store.Now = fixedClock(t0)
	opened, err := svc.CheckIn(ctx, studentInput("KSD24IT051"))
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	store.Now = fixedClock(t0.Add(30 * time.Minute))
	closed, err := svc.ForceCheckOut(ctx, opened.ID)
	if err != nil {
		t.Fatalf("force check-out failed: %v", err)
	}
	if closed.DurationMinutes == nil || *closed.DurationMinutes != 30 {
		t.Fatalf("duration = %v, want 30", closed.DurationMinutes)
	}

	// Closing again must fail and leave the record untouched.
	store.Now = fixedClock(t0.Add(90 * time.Minute))
	if _, err := svc.ForceCheckOut(ctx, opened.ID); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("second force check-out err = %v, want ErrAlreadyClosed", err)
	}

	got, err := store.Get(ctx, opened.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if *got.DurationMinutes != 30 || !got.CheckOutTime.Equal(t0.Add(30 * time.Minute)) {
		t.Fatal("failed force check-out mutated check-out fields")
	}

	if _, err := svc.ForceCheckOut(ctx, "no-such-id"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown id err = %v, want ErrSessionNotFound", err)
	}
}

func TestLookupElapsedMinutes(t *testing.T) {
	store := NewMemStore()
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store.Now = fixedClock(t0)

	svc := NewService(store, fixedClock(t0.Add(42*time.Minute)))
	ctx := context.Background()
	if _, err := svc.CheckIn(ctx, studentInput("KSD24IT051")); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	sess, elapsed, err := svc.Lookup(ctx, "ksd24it051")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if elapsed != 42 {
		t.Fatalf("elapsed = %d, want 42", elapsed)
	}
	if sess.Status != StatusOpen {
		t.Fatalf("status = %q, want open", sess.Status)
	}

	if _, _, err := svc.Lookup(ctx, "9876543210"); !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("lookup miss err = %v, want ErrNoOpenSession", err)
	}
}

func TestCheckInCheckOutScenario(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	opened, err := svc.CheckIn(ctx, studentInput("KSD24IT051"))
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if opened.Status != StatusOpen {
		t.Fatalf("status = %q, want open", opened.Status)
	}

	if _, err := svc.CheckIn(ctx, studentInput("KSD24IT051")); !errors.Is(err, ErrDuplicateOpenSession) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateOpenSession", err)
	}

	closed, err := svc.CheckOut(ctx, "KSD24IT051")
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	if closed.Status != StatusClosed || closed.DurationMinutes == nil || *closed.DurationMinutes < 0 {
		t.Fatalf("unexpected closed session: %+v", closed)
	}

	if _, err := svc.CheckOut(ctx, "KSD24IT051"); !errors.Is(err, ErrNoOpenSession) {
		t.Fatalf("second check-out err = %v, want ErrNoOpenSession", err)
	}
}

func TestConcurrentCheckInsSingleWinner(t *testing.T) {
	store := NewMemStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CheckIn(ctx, studentInput("KSD24IT051"))
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateOpenSession):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d check-ins succeeded, want exactly 1", succeeded)
	}
}
