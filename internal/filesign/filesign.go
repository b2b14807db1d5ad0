package filesign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("INVALID_FILE_TOKEN")
	ErrExpiredToken = errors.New("EXPIRED_FILE_TOKEN")
)

// Signer mints and checks expiring download tokens for file keys.
// Tokens are "<base64url payload>.<base64url hmac>", where the payload
// is "<fileKey>|<orgID>|<unix expiry>".
type Signer struct {
	secret []byte
	now    func() time.Time
}

func New(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

func (s *Signer) Sign(fileKey, orgID string, ttl time.Duration) string {
	expires := s.now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s|%s|%d", fileKey, orgID, expires)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + s.mac(payload)
}

// Verify checks a token's signature and expiry and returns the file
// key it covers. orgID must match the org the token was minted for.
func (s *Signer) Verify(token, orgID string) (string, error) {
	encodedPayload, mac, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return "", ErrInvalidToken
	}
	payload := string(raw)
	if !hmac.Equal([]byte(mac), []byte(s.mac(payload))) {
		return "", ErrInvalidToken
	}

	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	fileKey, tokenOrg, expiresRaw := parts[0], parts[1], parts[2]
	if tokenOrg != orgID {
		return "", ErrInvalidToken
	}
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if s.now().Unix() > expires {
		return "", ErrExpiredToken
	}
	return fileKey, nil
}

func (s *Signer) mac(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
