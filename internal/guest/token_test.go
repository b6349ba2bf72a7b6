package guest

import (
	"testing"
	"time"
)

func TestIssueFormat(t *testing.T) {
	iss := NewIssuer(72 * time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, exp, err := iss.Issue(now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(tok) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(tok))
	}
	for _, c := range tok {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("token contains non-hex char %q", c)
		}
	}
	if !exp.Equal(now.Add(72 * time.Hour)) {
		t.Fatalf("expiry = %v, want now+72h", exp)
	}
}

func TestIssueTokensAreUnique(t *testing.T) {
	iss := NewIssuer(time.Hour)
	now := time.Now()
	a, _, _ := iss.Issue(now)
	b, _, _ := iss.Issue(now)
	if a == b {
		t.Fatalf("two issued tokens collided")
	}
}

func TestMatch(t *testing.T) {
	if !Match("abc123", "abc123") {
		t.Errorf("equal tokens should match")
	}
	if Match("abc123", "abc124") {
		t.Errorf("different tokens should not match")
	}
	if Match("", "") || Match("abc", "") || Match("", "abc") {
		t.Errorf("empty tokens must never match")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if Expired(now.Add(time.Minute), now) {
		t.Errorf("future expiry reported expired")
	}
	if !Expired(now.Add(-time.Minute), now) {
		t.Errorf("past expiry not reported expired")
	}
	if Expired(time.Time{}, now) {
		t.Errorf("zero expiry means no window")
	}
}
