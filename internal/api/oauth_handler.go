package api

import (
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/gmail"
	"github.com/sharedmail/backend/internal/oauthstate"
	"github.com/sharedmail/backend/internal/tokens"
)

// OAuthHandler drives the Google consent flow that connects an inbox.
type OAuthHandler struct {
	pool   *pgxpool.Pool
	client *gmail.Client
	codec  *oauthstate.Codec
	vault  *tokens.Vault
}

// NewOAuthHandler creates a new OAuthHandler instance.
func NewOAuthHandler(pool *pgxpool.Pool, client *gmail.Client, codec *oauthstate.Codec, vault *tokens.Vault) *OAuthHandler {
	return &OAuthHandler{pool: pool, client: client, codec: codec, vault: vault}
}

// Start redirects to the Google consent page. The inbox and team ids and
// the post-connect redirect travel through the encrypted state blob, so
// the callback can trust them without a session.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}

	inboxID := r.URL.Query().Get("inbox_id")
	if inboxID == "" {
		http.Error(w, "inbox_id query parameter is required", http.StatusBadRequest)
		return
	}

	inbox, err := db.GetInboxByID(r.Context(), h.pool, inboxID)
	if err != nil {
		http.Error(w, "Inbox not found", http.StatusNotFound)
		return
	}
	if inbox.TeamID != profile.TeamID {
		http.Error(w, "Inbox not found", http.StatusNotFound)
		return
	}

	redirectPath := r.URL.Query().Get("redirect")
	if redirectPath == "" {
		redirectPath = "/"
	}

	state, err := h.codec.Encode(oauthstate.State{
		InboxID:      inbox.ID,
		TeamID:       inbox.TeamID,
		RedirectPath: redirectPath,
	})
	if err != nil {
		log.Printf("OAuthHandler: Failed to encode state: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.client.AuthURL(state), http.StatusFound)
}

// Callback handles the return from Google: verify the state blob, exchange
// the code, store the credentials and activate the inbox. Unauthenticated
// by necessity; the encrypted state is what ties the request back to an
// inbox we issued a consent URL for.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state, err := h.codec.Decode(r.URL.Query().Get("state"))
	if err != nil {
		log.Printf("OAuthHandler: Rejected state parameter: %v", err)
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Printf("OAuthHandler: Consent denied for inbox %s: %s", state.InboxID, errParam)
		http.Redirect(w, r, state.RedirectPath+"?error=consent_denied", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code query parameter is required", http.StatusBadRequest)
		return
	}

	token, err := h.client.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Printf("OAuthHandler: Code exchange failed for inbox %s: %v", state.InboxID, err)
		http.Error(w, "Failed to exchange authorization code", http.StatusBadGateway)
		return
	}

	// Without a refresh token the connection dies with the first access
	// token. The consent URL asks for offline access, so this only happens
	// when Google skips re-consent; the user has to revoke and retry.
	if token.RefreshToken == "" {
		log.Printf("OAuthHandler: No refresh token granted for inbox %s", state.InboxID)
		http.Redirect(w, r, state.RedirectPath+"?error=no_refresh_token", http.StatusFound)
		return
	}

	email, err := h.client.GetProfileEmail(r.Context(), token)
	if err != nil {
		log.Printf("OAuthHandler: Failed to fetch account email for inbox %s: %v", state.InboxID, err)
		http.Error(w, "Failed to fetch account profile", http.StatusBadGateway)
		return
	}

	if err := h.vault.Store(r.Context(), state.InboxID, token, &email); err != nil {
		log.Printf("OAuthHandler: Failed to store credentials for inbox %s: %v", state.InboxID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := db.SetInboxActive(r.Context(), h.pool, state.InboxID, true); err != nil {
		log.Printf("OAuthHandler: Failed to activate inbox %s: %v", state.InboxID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, state.RedirectPath, http.StatusFound)
}
