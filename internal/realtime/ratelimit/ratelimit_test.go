package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_EnforcesLimit(t *testing.T) {
	l := New(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		if !l.Allow("c1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("c1") {
		t.Error("fourth attempt should be rejected")
	}
	// Other connections are unaffected.
	if !l.Allow("c2") {
		t.Error("separate connection should be allowed")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	l := New(2, 10*time.Second)
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Allow("c1")
	l.Allow("c1")
	if l.Allow("c1") {
		t.Fatal("third attempt inside window should be rejected")
	}

	l.now = func() time.Time { return base.Add(11 * time.Second) }
	if !l.Allow("c1") {
		t.Error("attempt after the window slid should be allowed")
	}
}

func TestForget(t *testing.T) {
	l := New(1, 10*time.Second)
	l.Allow("c1")
	if l.Allow("c1") {
		t.Fatal("second attempt should be rejected")
	}
	l.Forget("c1")
	if !l.Allow("c1") {
		t.Error("attempt after Forget should be allowed")
	}
}
