package authority

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"workspace-backbone/backend/internal/security"
	"workspace-backbone/backend/internal/session/domain"
	"workspace-backbone/backend/internal/session/repository"
)

var (
	// ErrSessionRevoked covers every terminal state a caller cannot
	// recover from: unknown session, revoked session, expired session.
	ErrSessionRevoked = errors.New("SESSION_REVOKED")
	// ErrTokenReuseDetected means a refresh token that was already
	// exchanged (or never issued for this session) was presented. The
	// whole family is revoked before this is returned.
	ErrTokenReuseDetected = errors.New("TOKEN_REUSE_DETECTED")
)

// Created carries the material handed back to a client after a login or
// a successful rotation. RefreshToken is the only place the plaintext
// token ever appears; storage only sees its hash.
type Created struct {
	SessionID    string
	FamilyID     string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authority owns the session lifecycle: creation, one-time rotation and
// revocation. Rotations against the same session are serialized so the
// consumed flag is checked and set atomically.
type Authority struct {
	repo  repository.Repository
	ttl   time.Duration
	locks *keyedMutex
	now   func() time.Time

	reuseDetected metric.Int64Counter
}

func New(repo repository.Repository, refreshTTL time.Duration) *Authority {
	meter := otel.Meter("workspace-backbone/session")
	reuse, err := meter.Int64Counter("session.token_reuse_detected",
		metric.WithDescription("Refresh token replays that triggered a family revocation"))
	if err != nil {
		log.Printf("[session] reuse counter init: %v", err)
	}
	return &Authority{
		repo:          repo,
		ttl:           refreshTTL,
		locks:         newKeyedMutex(),
		now:           time.Now,
		reuseDetected: reuse,
	}
}

// Create starts a new session family for a user in an org.
func (a *Authority) Create(ctx context.Context, orgID, userID, deviceID string) (*Created, error) {
	now := a.now()
	token, err := security.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	s := &domain.Session{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		UserID:           userID,
		DeviceID:         deviceID,
		FamilyID:         uuid.NewString(),
		RefreshTokenHash: security.HashRefreshToken(token),
		Status:           domain.StatusActive,
		ExpiresAt:        now.Add(a.ttl),
		CreatedAt:        now,
	}
	if err := a.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Created{
		SessionID:    s.ID,
		FamilyID:     s.FamilyID,
		RefreshToken: token,
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

// Rotate exchanges a refresh token for a new session generation. The
// presented session must be active, unexpired, unconsumed, and the
// token must match its stored hash; anything else either fails closed
// (ErrSessionRevoked) or trips reuse detection, which revokes every
// session in the family.
func (a *Authority) Rotate(ctx context.Context, sessionID, presentedToken string) (*Created, error) {
	a.locks.Lock(sessionID)
	defer a.locks.Unlock(sessionID)

	s, err := a.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	now := a.now()
	if s == nil || s.Revoked() || s.Expired(now) {
		return nil, ErrSessionRevoked
	}
	if s.Consumed() || !security.RefreshTokenHashEqual(presentedToken, s.RefreshTokenHash) {
		return nil, a.handleReuse(ctx, s)
	}

	// Consume before creating the child so a crash in between leaves
	// the token unusable rather than usable twice.
	if err := a.repo.MarkConsumed(ctx, s.ID, now); err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}

	token, err := security.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	child := &domain.Session{
		ID:               uuid.NewString(),
		OrgID:            s.OrgID,
		UserID:           s.UserID,
		DeviceID:         s.DeviceID,
		FamilyID:         s.FamilyID,
		ParentSessionID:  s.ID,
		RefreshTokenHash: security.HashRefreshToken(token),
		Status:           domain.StatusActive,
		ExpiresAt:        now.Add(a.ttl),
		CreatedAt:        now,
	}
	if err := a.repo.Create(ctx, child); err != nil {
		return nil, fmt.Errorf("create rotated session: %w", err)
	}
	if err := a.repo.UpdateLastUsed(ctx, s.ID, now); err != nil {
		log.Printf("[session] update last used for %s: %v", s.ID, err)
	}
	return &Created{
		SessionID:    child.ID,
		FamilyID:     child.FamilyID,
		RefreshToken: token,
		ExpiresAt:    child.ExpiresAt,
	}, nil
}

func (a *Authority) handleReuse(ctx context.Context, s *domain.Session) error {
	n, err := a.repo.RevokeFamily(ctx, s.FamilyID)
	if err != nil {
		return fmt.Errorf("revoke session family: %w", err)
	}
	log.Printf("[session] token reuse detected: session=%s family=%s revoked=%d", s.ID, s.FamilyID, n)
	if a.reuseDetected != nil {
		a.reuseDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("org.id", s.OrgID)))
	}
	return ErrTokenReuseDetected
}

// Revoke terminates a single session. Revoking an unknown or already
// revoked session is a no-op.
func (a *Authority) Revoke(ctx context.Context, sessionID string) error {
	return a.repo.Revoke(ctx, sessionID)
}

// RevokeAll revokes every session for a user, or for the whole org when
// userID is empty. Returns the number of sessions that changed state.
func (a *Authority) RevokeAll(ctx context.Context, orgID, userID string) (int64, error) {
	if userID == "" {
		return a.repo.RevokeAllByOrg(ctx, orgID)
	}
	return a.repo.RevokeAllByUser(ctx, orgID, userID)
}

// Session loads one session by id, (nil, nil) when unknown.
func (a *Authority) Session(ctx context.Context, id string) (*domain.Session, error) {
	return a.repo.GetByID(ctx, id)
}

// Sessions lists a user's sessions in an org, newest first.
func (a *Authority) Sessions(ctx context.Context, orgID, userID string) ([]*domain.Session, error) {
	return a.repo.ListByUserAndOrg(ctx, orgID, userID)
}
