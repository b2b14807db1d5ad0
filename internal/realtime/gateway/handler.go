package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"workspace-backbone/backend/internal/realtime/eventlog"
	"workspace-backbone/backend/internal/realtime/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set Authorization headers on websocket
	// connects; origin enforcement happens at the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS authenticates the connect, upgrades, and starts the pumps.
// The token travels as a query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := h.tokens.ValidateAccess(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade: %v", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		id:     uuid.NewString(),
		userID: identity.UserID,
		orgID:  identity.OrgID,
		rooms:  make(map[string]struct{}),
	}
	h.join(c, OrgRoom(c.orgID))

	h.sendFrame(c, serverFrame{
		Op:        opHello,
		ConnID:    c.id,
		LatestSeq: h.log.LatestSeq(c.orgID),
	})

	h.presence.Set(c.orgID, c.userID, presence.StatusOnline)
	h.broadcastTransient(context.Background(), []string{OrgRoom(c.orgID)}, serverFrame{
		Op: opEvent,
		Event: &eventlog.Envelope{
			OrgID:     c.orgID,
			Type:      "presence.updated",
			Payload:   map[string]string{"userId": c.userID, "status": presence.StatusOnline},
			CreatedAt: time.Now(),
		},
	})

	go c.writePump()
	go c.readPump()
}
