package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/auth"
	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/presence"
)

// PresenceHandler handles the typing-presence websocket endpoint.
type PresenceHandler struct {
	pool     *pgxpool.Pool
	registry *presence.Registry
}

// NewPresenceHandler creates a new PresenceHandler instance.
func NewPresenceHandler(pool *pgxpool.Pool, registry *presence.Registry) *PresenceHandler {
	return &PresenceHandler{pool: pool, registry: registry}
}

var presenceUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// For now, allow all origins. This server is expected to be used
		// behind a reverse proxy in a trusted environment.
		return true
	},
}

type typingFrame struct {
	Typing bool `json:"typing"`
}

// Handle upgrades the connection and subscribes it to one conversation's
// typing events. Authentication is handled via query parameter (?token=...)
// since browsers cannot set custom headers on WebSocket connections; the
// token is validated with the same function the RequireAuth middleware uses.
func (h *PresenceHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		// Fallback to the Authorization header for tools that can set it.
		authHeader := r.Header.Get("Authorization")
		fields := strings.Fields(authHeader)
		if len(fields) >= 2 && strings.EqualFold(fields[0], "Bearer") {
			token = strings.TrimSpace(strings.Join(fields[1:], " "))
		}
	}
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	email, err := auth.ValidateToken(token)
	if err != nil {
		log.Printf("PresenceHandler: Token validation failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	profile, err := db.GetProfileByEmail(ctx, h.pool, email)
	if err != nil {
		log.Printf("PresenceHandler: No profile for %s: %v", email, err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id query parameter is required", http.StatusBadRequest)
		return
	}

	conv, err := db.GetConversationByID(ctx, h.pool, conversationID)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	inbox, err := db.GetInboxByID(ctx, h.pool, conv.InboxID)
	if err != nil || inbox.TeamID != profile.TeamID {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	conn, err := presenceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("PresenceHandler: Failed to upgrade connection: %v", err)
		return
	}

	client := h.registry.Subscribe(conversationID, profile.ID, conn)
	if client == nil {
		return
	}

	// Read loop: each frame is a typing signal. Teardown always clears the
	// subscription so a dropped connection never leaves a stuck indicator.
	defer h.registry.Unsubscribe(conversationID, client)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("PresenceHandler: Connection closed unexpectedly: %v", err)
			}
			return
		}

		var frame typingFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("PresenceHandler: Ignoring malformed frame: %v", err)
			continue
		}
		h.registry.SetTyping(conversationID, profile.ID, frame.Typing)
	}
}
