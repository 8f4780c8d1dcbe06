package auth

import (
	"errors"
	"testing"
	"time"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestIssueAndVerify(t *testing.T) {
	clock := newClock()
	authority := NewTokenAuthority("secret", time.Hour, clock.Now)

	token, issued, err := authority.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", issued.Subject)
	}
	if !issued.IssuedAt.Equal(clock.now) {
		t.Errorf("IssuedAt = %v, want %v", issued.IssuedAt, clock.now)
	}
	if !issued.ExpiresAt.Equal(clock.now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, clock.now.Add(time.Hour))
	}

	clock.now = clock.now.Add(59 * time.Minute)
	verified, err := authority.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified != issued {
		t.Errorf("Verify = %+v, want %+v", verified, issued)
	}
}

func TestVerify_Expired(t *testing.T) {
	clock := newClock()
	authority := NewTokenAuthority("secret", time.Hour, clock.Now)

	token, _, err := authority.Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.now = clock.now.Add(time.Hour + time.Second)
	if _, err := authority.Verify(token); !errors.Is(err, appErrors.ErrTokenExpired) {
		t.Errorf("Verify err = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	clock := newClock()
	token, _, err := NewTokenAuthority("other", time.Hour, clock.Now).Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	authority := NewTokenAuthority("secret", time.Hour, clock.Now)
	if _, err := authority.Verify(token); !errors.Is(err, appErrors.ErrSignatureInvalid) {
		t.Errorf("Verify err = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	authority := NewTokenAuthority("secret", time.Hour, nil)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := authority.Verify(token); !errors.Is(err, appErrors.ErrMalformedToken) {
			t.Errorf("Verify(%q) err = %v, want ErrMalformedToken", token, err)
		}
	}
}

func TestVerify_EmptySubject(t *testing.T) {
	clock := newClock()
	authority := NewTokenAuthority("secret", time.Hour, clock.Now)

	token, _, err := authority.Issue("")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := authority.Verify(token); !errors.Is(err, appErrors.ErrMalformedToken) {
		t.Errorf("Verify err = %v, want ErrMalformedToken", err)
	}
}

func TestNewTokenAuthority_DefaultLifetime(t *testing.T) {
	clock := newClock()
	_, claims, err := NewTokenAuthority("secret", 0, clock.Now).Issue("alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != DefaultLifetime {
		t.Errorf("lifetime = %v, want %v", got, DefaultLifetime)
	}
}

func TestIssue_SameSecondTokensDiffer(t *testing.T) {
	clock := newClock()
	authority := NewTokenAuthority("secret", time.Hour, clock.Now)

	first, _, _ := authority.Issue("alice")
	second, _, _ := authority.Issue("alice")
	if first == second {
		t.Error("tokens minted in the same second should differ")
	}
}
