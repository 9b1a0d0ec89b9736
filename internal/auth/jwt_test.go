package auth

import (
	"errors"
	"testing"
	"time"
)

func testGuard(ttl time.Duration) *Guard {
	return NewGuard("admin@makerspace.local", "s3cret", "test-signing-key", "makerspace", ttl)
}

func TestLoginAndVerify(t *testing.T) {
	g := testGuard(0)

	token, err := g.Login("admin@makerspace.local", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	claims, err := g.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Email != "admin@makerspace.local" {
		t.Fatalf("email claim = %q", claims.Email)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) < 6*24*time.Hour {
		t.Fatal("token should be valid for 7 days")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	g := testGuard(0)
	cases := [][2]string{
		{"admin@makerspace.local", "wrong"},
		{"nobody@example.com", "s3cret"},
		{"", ""},
	}
	for _, c := range cases {
		if _, err := g.Login(c[0], c[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q) err = %v, want ErrInvalidCredentials", c[0], c[1], err)
		}
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	g := testGuard(0)

	if _, err := g.Verify("not-a-token"); err == nil {
		t.Error("garbage token must be rejected")
	}

	other := NewGuard("admin@makerspace.local", "s3cret", "different-key", "makerspace", 0)
	token, err := other.Login("admin@makerspace.local", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := g.Verify(token); err == nil {
		t.Error("token signed with another key must be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	g := testGuard(time.Nanosecond)
	token, err := g.Login("admin@makerspace.local", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := g.Verify(token); err == nil {
		t.Error("expired token must be rejected")
	}
}
