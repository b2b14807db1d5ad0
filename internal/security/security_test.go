package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4) // min cost: keep the test fast
	hash, err := h.Hash([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, []byte("correct horse battery staple")); err != nil {
		t.Errorf("Compare with correct password: %v", err)
	}
	if err := h.Compare(hash, []byte("wrong password")); err == nil {
		t.Error("Compare with wrong password should fail")
	}
}

func TestNewHasher_ClampsCost(t *testing.T) {
	if h := NewHasher(0); h.Cost <= 0 {
		t.Errorf("NewHasher(0).Cost = %d, want default", h.Cost)
	}
	if h := NewHasher(100); h.Cost > 31 {
		t.Errorf("NewHasher(100).Cost = %d, want clamped", h.Cost)
	}
}

func TestNewRefreshToken_UniqueAndOpaque(t *testing.T) {
	a, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	b, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if a == b {
		t.Error("two refresh tokens should not collide")
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
}

func TestRefreshTokenHashEqual(t *testing.T) {
	token, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	stored := HashRefreshToken(token)
	if !RefreshTokenHashEqual(token, stored) {
		t.Error("hash of the same token should match")
	}
	if RefreshTokenHashEqual("someone-elses-token", stored) {
		t.Error("hash of a different token should not match")
	}
	if stored == token {
		t.Error("stored hash must differ from the raw token")
	}
}

func newTestProvider(t *testing.T, accessTTL time.Duration) *TokenProvider {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewTokenProvider(key, key.Public(), "workspace-auth", "workspace-api", accessTTL)
}

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p := newTestProvider(t, time.Minute)

	token, expiresAt, err := p.IssueAccess("sess-1", "user-1", "org-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccess returned empty token")
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expiresAt should be in the future")
	}

	id, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != "user-1" || id.OrgID != "org-1" || id.SessionID != "sess-1" {
		t.Errorf("identity = %+v, want user-1/org-1/sess-1", id)
	}
}

func TestTokenProvider_RejectsExpired(t *testing.T) {
	p := newTestProvider(t, -time.Minute)
	token, _, err := p.IssueAccess("sess-1", "user-1", "org-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err == nil {
		t.Error("ValidateAccess should reject an expired token")
	}
}

func TestTokenProvider_RejectsForeignIssuer(t *testing.T) {
	p := newTestProvider(t, time.Minute)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other := NewTokenProvider(key, key.Public(), "someone-else", "workspace-api", time.Minute)
	token, _, err := other.IssueAccess("sess-1", "user-1", "org-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err == nil {
		t.Error("ValidateAccess should reject a token from a different issuer/key")
	}
}

func TestTokenProvider_RejectsGarbage(t *testing.T) {
	p := newTestProvider(t, time.Minute)
	for _, tok := range []string{"", "garbage", strings.Repeat("a.", 10)} {
		if _, err := p.ValidateAccess(tok); err == nil {
			t.Errorf("ValidateAccess(%q) should fail", tok)
		}
	}
}

func TestParseKeys_RoundTrip(t *testing.T) {
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("ParsePrivateKey with empty input should fail")
	}
	if _, err := ParsePublicKey("not pem at all"); err == nil {
		t.Error("ParsePublicKey with non-PEM input should fail")
	}
}
