package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/models"
	"github.com/sharedmail/backend/internal/tokens"
)

// InboxesHandler handles inbox CRUD and disconnects.
type InboxesHandler struct {
	pool  *pgxpool.Pool
	vault *tokens.Vault
}

// NewInboxesHandler creates a new InboxesHandler instance.
func NewInboxesHandler(pool *pgxpool.Pool, vault *tokens.Vault) *InboxesHandler {
	return &InboxesHandler{pool: pool, vault: vault}
}

type createInboxRequest struct {
	Name         string `json:"name"`
	GmailAddress string `json:"gmail_address"`
}

// Create adds a new, not yet connected inbox for the caller's team.
func (h *InboxesHandler) Create(w http.ResponseWriter, r *http.Request) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}
	if profile.Role != models.RoleAdmin {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req createInboxRequest
	if !ReadJSONBody(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.GmailAddress = strings.TrimSpace(req.GmailAddress)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusUnprocessableEntity)
		return
	}
	if !strings.Contains(req.GmailAddress, "@") {
		http.Error(w, "gmail_address must be a valid address", http.StatusUnprocessableEntity)
		return
	}

	inbox := &models.Inbox{
		TeamID:       profile.TeamID,
		Name:         req.Name,
		GmailAddress: req.GmailAddress,
	}
	if err := db.CreateInbox(r.Context(), h.pool, inbox); err != nil {
		log.Printf("InboxesHandler: Failed to create inbox: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	WriteJSONResponse(w, inbox)
}

// List returns the team's inboxes. Credentials never appear in the
// response; the model keeps them out of JSON entirely.
func (h *InboxesHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}

	inboxes, err := db.GetInboxesForTeam(r.Context(), h.pool, profile.TeamID)
	if err != nil {
		log.Printf("InboxesHandler: Failed to list inboxes: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]any{"inboxes": inboxes})
}

// Disconnect revokes the inbox's Gmail credentials and deactivates it.
func (h *InboxesHandler) Disconnect(w http.ResponseWriter, r *http.Request, inboxID string) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}
	if profile.Role != models.RoleAdmin {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	inbox, err := db.GetInboxByID(r.Context(), h.pool, inboxID)
	if err != nil || inbox.TeamID != profile.TeamID {
		http.Error(w, "Inbox not found", http.StatusNotFound)
		return
	}

	if err := h.vault.Disconnect(r.Context(), inbox); err != nil {
		log.Printf("InboxesHandler: Failed to disconnect inbox %s: %v", inboxID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := db.SetInboxActive(r.Context(), h.pool, inboxID, false); err != nil {
		log.Printf("InboxesHandler: Failed to deactivate inbox %s: %v", inboxID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]string{"status": "disconnected"})
}
