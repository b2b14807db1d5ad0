package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"workspace-backbone/backend/internal/filesign"
	identityservice "workspace-backbone/backend/internal/identity/service"
	membershipdomain "workspace-backbone/backend/internal/membership/domain"
	messagingdomain "workspace-backbone/backend/internal/messaging/domain"
	messagingservice "workspace-backbone/backend/internal/messaging/service"
	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/realtime/gateway"
	"workspace-backbone/backend/internal/security"
	"workspace-backbone/backend/internal/session/authority"
	sessionrepo "workspace-backbone/backend/internal/session/repository"
	"workspace-backbone/backend/internal/tenant"
)

type fakeConversations struct {
	mu      sync.Mutex
	convs   map[string]*messagingdomain.Conversation
	members map[string]map[string]bool
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		convs:   make(map[string]*messagingdomain.Conversation),
		members: make(map[string]map[string]bool),
	}
}

func (f *fakeConversations) Create(_ context.Context, c *messagingdomain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.convs[c.ID] = &cp
	return nil
}

func (f *fakeConversations) GetByID(_ context.Context, orgID, id string) (*messagingdomain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.convs[id]; ok && c.OrgID == orgID {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeConversations) AddMember(_ context.Context, m *messagingdomain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[m.ConversationID] == nil {
		f.members[m.ConversationID] = make(map[string]bool)
	}
	f.members[m.ConversationID][m.UserID] = true
	return nil
}

func (f *fakeConversations) IsMember(_ context.Context, _, conversationID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[conversationID][userID], nil
}

func (f *fakeConversations) FilterMember(_ context.Context, _ string, ids []string, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, id := range ids {
		if f.members[id][userID] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeConversations) ListForUser(_ context.Context, orgID, userID string) ([]*messagingdomain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*messagingdomain.Conversation
	for id, c := range f.convs {
		if c.OrgID == orgID && f.members[id][userID] {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeMemberships struct {
	roles map[string]string // userID -> role
}

func (f *fakeMemberships) Create(_ context.Context, _ *membershipdomain.Membership) error { return nil }

func (f *fakeMemberships) Get(_ context.Context, orgID, userID string) (*membershipdomain.Membership, error) {
	role, ok := f.roles[userID]
	if !ok {
		return nil, nil
	}
	return &membershipdomain.Membership{OrgID: orgID, UserID: userID, Role: role}, nil
}

func (f *fakeMemberships) ListByOrg(_ context.Context, _ string) ([]*membershipdomain.Membership, error) {
	return nil, nil
}
func (f *fakeMemberships) UpdateRole(_ context.Context, _, _, _ string) error { return nil }
func (f *fakeMemberships) Delete(_ context.Context, _, _ string) error        { return nil }

type nopAudit struct{}

func (nopAudit) Record(_ context.Context, _, _, _, _, _ string) {}

func newMessageDelegate() *tenant.MemDelegate[messagingdomain.Message, *messagingdomain.MessageFilter, *messagingdomain.MessageData] {
	return tenant.NewMemDelegate(
		func(e *messagingdomain.Message, f *messagingdomain.MessageFilter) bool {
			if id := f.ID(); id != "" && e.ID != id {
				return false
			}
			if f.OrgID() != "" && e.OrgID != f.OrgID() {
				return false
			}
			if f.ConversationID != "" && e.ConversationID != f.ConversationID {
				return false
			}
			return true
		},
		func(d *messagingdomain.MessageData) *messagingdomain.Message {
			body := ""
			if d.Body != nil {
				body = *d.Body
			}
			return &messagingdomain.Message{
				ID:             uuid.NewString(),
				OrgID:          d.OrgID(),
				ConversationID: d.ConversationID,
				AuthorID:       d.AuthorID,
				Body:           body,
				CreatedAt:      time.Now(),
			}
		},
		func(e *messagingdomain.Message, d *messagingdomain.MessageData) {
			if d.Body != nil {
				e.Body = *d.Body
			}
			if d.IsDeleted != nil {
				e.IsDeleted = *d.IsDeleted
			}
			if d.EditedAt != nil {
				e.EditedAt = d.EditedAt
			}
		},
	)
}

type testEnv struct {
	srv    *httptest.Server
	auth   *authority.Authority
	tokens *security.TokenProvider
	convs  *fakeConversations
	roles  *fakeMemberships
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens := security.NewTokenProvider(key, key.Public(), "workspace-auth", "workspace-api", 10*time.Minute)

	auth := authority.New(sessionrepo.NewMemRepository(), 30*24*time.Hour)
	authSvc := identityservice.NewAuthService(nil, nil, nil, auth, tokens, security.NewHasher(4), nopAudit{})

	convs := newFakeConversations()
	hub := gateway.NewHub(eventlog.New(), convs, tokens, nil)
	messaging := messagingservice.New(newMessageDelegate(), convs, hub)

	roles := &fakeMemberships{roles: map[string]string{}}
	signer := filesign.New("0123456789abcdef0123456789abcdef")

	s := New(authSvc, messaging, convs, roles, hub, tokens, signer)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, auth: auth, tokens: tokens, convs: convs, roles: roles}
}

// login fabricates a session and access token directly.
func (e *testEnv) login(t *testing.T, orgID, userID string) (accessToken, sessionID, refreshToken string) {
	t.Helper()
	created, err := e.auth.Create(context.Background(), orgID, userID, "d1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	access, _, err := e.tokens.IssueAccess(created.SessionID, userID, orgID)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	return access, created.SessionID, created.RefreshToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/auth/sessions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/auth/sessions", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMessagingFlow(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t, "org-1", "u1")

	resp := e.do(t, http.MethodPost, "/api/conversations", token,
		map[string]any{"title": "general", "memberIds": []string{"u2"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create conversation status = %d", resp.StatusCode)
	}
	var created struct {
		ConversationID string `json:"conversationId"`
	}
	decodeBody(t, resp, &created)

	resp = e.do(t, http.MethodPost, "/api/conversations/"+created.ConversationID+"/messages", token,
		map[string]string{"body": "hello @u2"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send message status = %d", resp.StatusCode)
	}
	var msg messagingdomain.Message
	decodeBody(t, resp, &msg)
	if msg.Body != "hello @u2" {
		t.Errorf("message body = %q", msg.Body)
	}

	resp = e.do(t, http.MethodGet, "/api/conversations/"+created.ConversationID+"/messages", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list messages status = %d", resp.StatusCode)
	}
	var page struct {
		Messages []messagingdomain.Message `json:"messages"`
	}
	decodeBody(t, resp, &page)
	if len(page.Messages) != 1 {
		t.Errorf("listed %d messages, want 1", len(page.Messages))
	}

	// u2 is a member but not the author; delete without moderator role
	// is forbidden.
	peer, _, _ := e.login(t, "org-1", "u2")
	resp = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID, peer, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-author delete status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	// Grant u2 a moderating role and retry.
	e.roles.roles["u2"] = membershipdomain.RoleAdmin
	resp = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID, peer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("moderator delete status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshEndpoint_ReuseMapsTo401(t *testing.T) {
	e := newTestEnv(t)
	_, sessionID, refreshToken := e.login(t, "org-1", "u1")

	resp := e.do(t, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"sessionId": sessionID, "refreshToken": refreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"sessionId": sessionID, "refreshToken": refreshToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error != "TOKEN_REUSE_DETECTED" {
		t.Errorf("error = %q, want TOKEN_REUSE_DETECTED", body.Error)
	}
}

func TestSignFileEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token, _, _ := e.login(t, "org-1", "u1")

	resp := e.do(t, http.MethodPost, "/api/files/sign", token,
		map[string]string{"fileKey": "uploads/org-1/a.png"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign status = %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	if body.Token == "" {
		t.Fatal("empty signed token")
	}
}
