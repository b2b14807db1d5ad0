package filesign

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	s := New("0123456789abcdef0123456789abcdef")

	token := s.Sign("uploads/org-1/report.pdf", "org-1", time.Hour)
	key, err := s.Verify(token, "org-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if key != "uploads/org-1/report.pdf" {
		t.Errorf("key = %q", key)
	}
}

func TestVerify_Rejections(t *testing.T) {
	s := New("0123456789abcdef0123456789abcdef")
	token := s.Sign("uploads/org-1/report.pdf", "org-1", time.Hour)

	if _, err := s.Verify(token, "org-2"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong org err = %v, want ErrInvalidToken", err)
	}
	if _, err := s.Verify("no-dot-here", "org-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("malformed token err = %v, want ErrInvalidToken", err)
	}

	// Flip a byte of the MAC.
	parts := strings.SplitN(token, ".", 2)
	tampered := parts[0] + "." + "A" + parts[1][1:]
	if tampered == token {
		tampered = parts[0] + "." + "B" + parts[1][1:]
	}
	if _, err := s.Verify(tampered, "org-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("tampered token err = %v, want ErrInvalidToken", err)
	}

	// A different secret invalidates everything.
	other := New("ffffffffffffffffffffffffffffffff")
	if _, err := other.Verify(token, "org-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret err = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Expiry(t *testing.T) {
	s := New("0123456789abcdef0123456789abcdef")
	token := s.Sign("f", "org-1", time.Minute)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := s.Verify(token, "org-1"); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired token err = %v, want ErrExpiredToken", err)
	}
}
