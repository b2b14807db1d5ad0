package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	auditdomain "workspace-backbone/backend/internal/audit/domain"
	devicedomain "workspace-backbone/backend/internal/device/domain"
	devicerepo "workspace-backbone/backend/internal/device/repository"
	membershiprepo "workspace-backbone/backend/internal/membership/repository"
	"workspace-backbone/backend/internal/security"
	"workspace-backbone/backend/internal/session/authority"
	sessiondomain "workspace-backbone/backend/internal/session/domain"
	userdomain "workspace-backbone/backend/internal/user/domain"
	userrepo "workspace-backbone/backend/internal/user/repository"
)

var (
	ErrInvalidCredentials     = errors.New("INVALID_CREDENTIALS")
	ErrAccountLocked          = errors.New("ACCOUNT_LOCKED")
	ErrNotOrgMember           = errors.New("NOT_ORG_MEMBER")
	ErrEmailAlreadyRegistered = errors.New("EMAIL_ALREADY_REGISTERED")
)

const (
	maxFailedLogins = 5
	lockoutWindow   = 15 * time.Minute
)

// Recorder receives audit events from the auth flow.
type Recorder interface {
	Record(ctx context.Context, orgID, actorID, action, targetID, detail string)
}

// TokenIssuer mints access tokens bound to a session.
type TokenIssuer interface {
	IssueAccess(sessionID, userID, orgID string) (string, time.Time, error)
}

// AuthService implements registration, login with lockout, token
// refresh and logout on top of the session authority.
type AuthService struct {
	users       userrepo.Repository
	memberships membershiprepo.Repository
	devices     devicerepo.Repository
	sessions    *authority.Authority
	tokens      TokenIssuer
	hasher      *security.Hasher
	audit       Recorder
	now         func() time.Time
}

func NewAuthService(
	users userrepo.Repository,
	memberships membershiprepo.Repository,
	devices devicerepo.Repository,
	sessions *authority.Authority,
	tokens TokenIssuer,
	hasher *security.Hasher,
	audit Recorder,
) *AuthService {
	return &AuthService{
		users:       users,
		memberships: memberships,
		devices:     devices,
		sessions:    sessions,
		tokens:      tokens,
		hasher:      hasher,
		audit:       audit,
		now:         time.Now,
	}
}

// DeviceInfo is what the client reports about itself at login.
type DeviceInfo struct {
	DeviceID    string
	Fingerprint string
	OS          string
}

// Tokens is the credential pair returned by Login and Refresh.
type Tokens struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

func (s *AuthService) Register(ctx context.Context, orgID, email, displayName, password string) (*userdomain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.users.GetByOrgAndEmail(ctx, orgID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &userdomain.User{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, orgID, u.ID, auditdomain.ActionRegistered, u.ID, "")
	return u, nil
}

// Login verifies credentials, enforces the lockout window, requires an
// org membership, registers the device and opens a session family.
func (s *AuthService) Login(ctx context.Context, orgID, email, password string, device DeviceInfo) (*Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByOrgAndEmail(ctx, orgID, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		// Burn a hash comparison so unknown emails cost the same as
		// wrong passwords.
		_ = s.hasher.Compare("$2a$12$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva", []byte(password))
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if u.Locked(now) {
		s.audit.Record(ctx, orgID, u.ID, auditdomain.ActionLoginFailed, u.ID, "account locked")
		return nil, ErrAccountLocked
	}

	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, s.recordFailedLogin(ctx, u, now)
	}

	member, err := s.memberships.Get(ctx, orgID, u.ID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotOrgMember
	}

	if u.FailedLoginAttempts > 0 || u.LockedUntil != nil {
		if err := s.users.ClearFailedLogins(ctx, u.ID); err != nil {
			return nil, err
		}
	}

	deviceID := device.DeviceID
	if deviceID == "" {
		deviceID = "unknown"
	}
	if _, err := s.devices.Upsert(ctx, &devicedomain.Device{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		UserID:      u.ID,
		DeviceID:    deviceID,
		Fingerprint: device.Fingerprint,
		OS:          device.OS,
		TrustLevel:  devicedomain.TrustUnknown,
		LastSeenAt:  now,
	}); err != nil {
		return nil, err
	}

	created, err := s.sessions.Create(ctx, orgID, u.ID, deviceID)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.IssueAccess(created.SessionID, u.ID, orgID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.audit.Record(ctx, orgID, u.ID, auditdomain.ActionLogin, created.SessionID, "device="+deviceID)
	return &Tokens{
		SessionID:        created.SessionID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     created.RefreshToken,
		RefreshExpiresAt: created.ExpiresAt,
	}, nil
}

func (s *AuthService) recordFailedLogin(ctx context.Context, u *userdomain.User, now time.Time) error {
	attempts := u.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if attempts >= maxFailedLogins {
		t := now.Add(lockoutWindow)
		lockedUntil = &t
		attempts = 0
	}
	if err := s.users.UpdateLoginSecurity(ctx, u.ID, attempts, lockedUntil); err != nil {
		return err
	}
	if lockedUntil != nil {
		s.audit.Record(ctx, u.OrgID, u.ID, auditdomain.ActionAccountLocked, u.ID,
			fmt.Sprintf("locked until %s", lockedUntil.Format(time.RFC3339)))
		return ErrAccountLocked
	}
	s.audit.Record(ctx, u.OrgID, u.ID, auditdomain.ActionLoginFailed, u.ID, "")
	return ErrInvalidCredentials
}

// Refresh rotates a refresh token and issues a fresh access token.
// Authority errors pass through untouched so callers can map
// SESSION_REVOKED and TOKEN_REUSE_DETECTED distinctly.
func (s *AuthService) Refresh(ctx context.Context, sessionID, refreshToken string) (*Tokens, error) {
	rotated, err := s.sessions.Rotate(ctx, sessionID, refreshToken)
	if err != nil {
		if errors.Is(err, authority.ErrTokenReuseDetected) {
			s.audit.Record(ctx, "", "", auditdomain.ActionTokenReuse, sessionID, "")
		}
		return nil, err
	}
	return s.issueForRotation(ctx, sessionID, rotated)
}

func (s *AuthService) issueForRotation(ctx context.Context, fromSessionID string, rotated *authority.Created) (*Tokens, error) {
	// The rotated child carries the same user and org as its parent;
	// look it up to bind the access token.
	child, err := s.sessions.Session(ctx, rotated.SessionID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, authority.ErrSessionRevoked
	}
	access, accessExp, err := s.tokens.IssueAccess(child.ID, child.UserID, child.OrgID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	s.audit.Record(ctx, child.OrgID, child.UserID, auditdomain.ActionTokenRefreshed, fromSessionID, "child="+child.ID)
	return &Tokens{
		SessionID:        child.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rotated.RefreshToken,
		RefreshExpiresAt: rotated.ExpiresAt,
	}, nil
}

// Logout revokes one session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, orgID, userID, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.audit.Record(ctx, orgID, userID, auditdomain.ActionLogout, sessionID, "")
	return nil
}

// LogoutAll revokes every session the user holds in the org.
func (s *AuthService) LogoutAll(ctx context.Context, orgID, userID string) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, orgID, userID)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, orgID, userID, auditdomain.ActionLogoutAll, userID, fmt.Sprintf("revoked=%d", n))
	return n, nil
}

// Sessions lists the caller's sessions in the org, newest first.
func (s *AuthService) Sessions(ctx context.Context, orgID, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.Sessions(ctx, orgID, userID)
}

// ChangePassword sets a new password and revokes every session so
// stolen refresh tokens die with the old credential.
func (s *AuthService) ChangePassword(ctx context.Context, orgID, userID, currentPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || u.OrgID != orgID {
		return ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, orgID, userID); err != nil {
		return err
	}
	s.audit.Record(ctx, orgID, userID, auditdomain.ActionPasswordChanged, userID, "")
	return nil
}
