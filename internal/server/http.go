package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"workspace-backbone/backend/internal/filesign"
	identityservice "workspace-backbone/backend/internal/identity/service"
	membershiprepo "workspace-backbone/backend/internal/membership/repository"
	messagingrepo "workspace-backbone/backend/internal/messaging/repository"
	messagingservice "workspace-backbone/backend/internal/messaging/service"
	"workspace-backbone/backend/internal/platform/rbac"
	"workspace-backbone/backend/internal/realtime/gateway"
	"workspace-backbone/backend/internal/security"
	"workspace-backbone/backend/internal/session/authority"
	"workspace-backbone/backend/internal/tenant"
)

// Server exposes the HTTP API and the websocket gateway.
type Server struct {
	auth          *identityservice.AuthService
	messaging     *messagingservice.Service
	conversations messagingrepo.Conversations
	memberships   membershiprepo.Repository
	hub           *gateway.Hub
	tokens        *security.TokenProvider
	files         *filesign.Signer
}

func New(
	auth *identityservice.AuthService,
	messaging *messagingservice.Service,
	conversations messagingrepo.Conversations,
	memberships membershiprepo.Repository,
	hub *gateway.Hub,
	tokens *security.TokenProvider,
	files *filesign.Signer,
) *Server {
	return &Server{
		auth:          auth,
		messaging:     messaging,
		conversations: conversations,
		memberships:   memberships,
		hub:           hub,
		tokens:        tokens,
		files:         files,
	}
}

// Handler builds the full route table wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.Handle("POST /api/auth/logout", s.authenticated(s.handleLogout))
	mux.Handle("POST /api/auth/logout-all", s.authenticated(s.handleLogoutAll))
	mux.Handle("POST /api/auth/password", s.authenticated(s.handleChangePassword))
	mux.Handle("GET /api/auth/sessions", s.authenticated(s.handleSessions))

	mux.Handle("POST /api/conversations", s.authenticated(s.handleCreateConversation))
	mux.Handle("GET /api/conversations", s.authenticated(s.handleListConversations))
	mux.Handle("POST /api/conversations/{id}/messages", s.authenticated(s.handleSendMessage))
	mux.Handle("GET /api/conversations/{id}/messages", s.authenticated(s.handleListMessages))
	mux.Handle("PATCH /api/messages/{id}", s.authenticated(s.handleEditMessage))
	mux.Handle("DELETE /api/messages/{id}", s.authenticated(s.handleDeleteMessage))

	mux.Handle("POST /api/files/sign", s.authenticated(s.handleSignFile))

	mux.HandleFunc("GET /ws", s.hub.ServeWS)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

// authenticated validates the bearer token and stashes the identity.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		identity, err := s.tokens.ValidateAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID       string `json:"orgId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.OrgID == "" || req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	u, err := s.auth.Register(r.Context(), req.OrgID, req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"userId": u.ID, "email": u.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID    string `json:"orgId"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Device   struct {
			DeviceID    string `json:"deviceId"`
			Fingerprint string `json:"fingerprint"`
			OS          string `json:"os"`
		} `json:"device"`
	}
	if !decode(w, r, &req) {
		return
	}
	tokens, err := s.auth.Login(r.Context(), req.OrgID, req.Email, req.Password, identityservice.DeviceInfo{
		DeviceID:    req.Device.DeviceID,
		Fingerprint: req.Device.Fingerprint,
		OS:          req.Device.OS,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(tokens))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID    string `json:"sessionId"`
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &req) {
		return
	}
	tokens, err := s.auth.Refresh(r.Context(), req.SessionID, req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(tokens))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := s.auth.Logout(r.Context(), id.OrgID, id.UserID, id.SessionID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	n, err := s.auth.LogoutAll(r.Context(), id.OrgID, id.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if err := s.auth.ChangePassword(r.Context(), id.OrgID, id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	sessions, err := s.auth.Sessions(r.Context(), id.OrgID, id.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	type sessionView struct {
		ID        string     `json:"id"`
		DeviceID  string     `json:"deviceId"`
		Status    string     `json:"status"`
		Current   bool       `json:"current"`
		CreatedAt time.Time  `json:"createdAt"`
		ExpiresAt time.Time  `json:"expiresAt"`
		LastUsed  *time.Time `json:"lastUsedAt,omitempty"`
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID,
			DeviceID:  s.DeviceID,
			Status:    s.Status,
			Current:   s.ID == id.SessionID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			LastUsed:  s.LastUsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req struct {
		Title     string   `json:"title"`
		MemberIDs []string `json:"memberIds"`
	}
	if !decode(w, r, &req) {
		return
	}
	conv, err := s.messaging.CreateConversation(r.Context(), id.OrgID, id.UserID, req.Title, req.MemberIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conversationId": conv.ID})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	convs, err := s.conversations.ListForUser(r.Context(), id.OrgID, id.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req struct {
		Body string `json:"body"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	msg, err := s.messaging.Send(r.Context(), id.OrgID, r.PathValue("id"), id.UserID, req.Body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, err := s.messaging.List(r.Context(), id.OrgID, r.PathValue("id"), id.UserID,
		r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":   page.Messages,
		"nextCursor": page.NextCursor,
	})
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req struct {
		Body string `json:"body"`
	}
	if !decode(w, r, &req) {
		return
	}
	msg, err := s.messaging.Edit(r.Context(), id.OrgID, r.PathValue("id"), id.UserID, req.Body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	moderator := false
	if m, err := s.memberships.Get(r.Context(), id.OrgID, id.UserID); err == nil && m != nil {
		moderator = rbac.HasPermission(m.Role, rbac.PermMessageModerate)
	}
	if err := s.messaging.Delete(r.Context(), id.OrgID, r.PathValue("id"), id.UserID, moderator); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSignFile(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req struct {
		FileKey string `json:"fileKey"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.FileKey == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	if s.files == nil {
		writeError(w, http.StatusNotImplemented, "FILE_SIGNING_DISABLED")
		return
	}
	token := s.files.Sign(req.FileKey, id.OrgID, 15*time.Minute)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func tokenResponse(t *identityservice.Tokens) map[string]any {
	return map[string]any{
		"sessionId":        t.SessionID,
		"accessToken":      t.AccessToken,
		"accessExpiresAt":  t.AccessExpiresAt,
		"refreshToken":     t.RefreshToken,
		"refreshExpiresAt": t.RefreshExpiresAt,
	}
}

// writeServiceError maps domain sentinels onto HTTP statuses; anything
// unmapped is a 500 with the detail kept out of the response.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identityservice.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identityservice.ErrAccountLocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, identityservice.ErrNotOrgMember):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, identityservice.ErrEmailAlreadyRegistered):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, authority.ErrSessionRevoked),
		errors.Is(err, authority.ErrTokenReuseDetected):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, tenant.ErrCrossTenantFilter),
		errors.Is(err, tenant.ErrCrossTenantData):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, messagingservice.ErrNotConversationMember),
		errors.Is(err, messagingservice.ErrNotMessageAuthor):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, messagingservice.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, messagingservice.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[server] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
