// Package tokens manages the OAuth credential lifecycle for connected
// inboxes: decrypt on read, refresh shortly before expiry, re-encrypt and
// persist, and best-effort revocation on disconnect.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/crypto"
	"github.com/sharedmail/backend/internal/db"
	"github.com/sharedmail/backend/internal/models"
)

// refreshSkew is how close to expiry an access token may get before we
// refresh it proactively rather than risk a mid-sync 401.
const refreshSkew = 60 * time.Second

// ErrRefreshFailed is returned when the provider rejects the refresh
// token. This is the only fatal per-inbox path in a sync cycle: the
// inbox needs operator attention (usually a reconnect).
var ErrRefreshFailed = errors.New("token refresh failed")

// StoredToken is the decrypted OAuth credential bundle. The JSON field
// names are the stored format and must not change: existing encrypted
// bundles decode into this shape.
type StoredToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiryDate is milliseconds since the Unix epoch, zero when unknown.
	ExpiryDate int64 `json:"expiry_date,omitempty"`
}

// Merge overlays newer credentials over t, keeping fields the provider
// omitted. Google usually does not reissue the refresh token on refresh.
func (t StoredToken) Merge(newer *StoredToken) StoredToken {
	merged := t
	if newer.AccessToken != "" {
		merged.AccessToken = newer.AccessToken
	}
	if newer.RefreshToken != "" {
		merged.RefreshToken = newer.RefreshToken
	}
	if newer.Scope != "" {
		merged.Scope = newer.Scope
	}
	if newer.TokenType != "" {
		merged.TokenType = newer.TokenType
	}
	if newer.ExpiryDate != 0 {
		merged.ExpiryDate = newer.ExpiryDate
	}
	return merged
}

// Refresher exchanges a refresh token for fresh credentials and revokes
// tokens at the provider. Implemented by the Gmail client.
type Refresher interface {
	RefreshToken(ctx context.Context, token *StoredToken) (*StoredToken, error)
	Revoke(ctx context.Context, token *StoredToken) error
}

// Vault decrypts, refreshes and persists inbox credentials.
type Vault struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	refresher Refresher
}

// NewVault creates a Vault.
func NewVault(pool *pgxpool.Pool, encryptor *crypto.Encryptor, refresher Refresher) *Vault {
	return &Vault{pool: pool, encryptor: encryptor, refresher: refresher}
}

// Decrypt returns the inbox's stored token, or (nil, nil) when the inbox
// has no credential bundle. "Not connected" is a valid steady state, not
// an error. An unreadable bundle (tag mismatch) is an error; callers
// should treat that inbox as disconnected for the cycle.
func (v *Vault) Decrypt(inbox *models.Inbox) (*StoredToken, error) {
	payload := inbox.Credentials()
	if payload == nil {
		return nil, nil
	}

	var token StoredToken
	if err := v.encryptor.DecryptJSON(payload, &token); err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials for inbox %s: %w", inbox.ID, err)
	}

	return &token, nil
}

// NeedsRefresh reports whether the access token is missing or expires
// within the refresh skew.
func (v *Vault) NeedsRefresh(token *StoredToken) bool {
	if token.AccessToken == "" {
		return true
	}
	if token.ExpiryDate == 0 {
		return false
	}
	return time.UnixMilli(token.ExpiryDate).Before(time.Now().Add(refreshSkew))
}

// Refresh exchanges the refresh token for fresh credentials, merges them
// over the old bundle, re-encrypts and persists the result. On success
// the merged token is returned; on failure ErrRefreshFailed is wrapped
// and nothing is persisted.
func (v *Vault) Refresh(ctx context.Context, inbox *models.Inbox, token *StoredToken) (*StoredToken, error) {
	fresh, err := v.refresher.RefreshToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w for inbox %s: %v", ErrRefreshFailed, inbox.ID, err)
	}

	merged := token.Merge(fresh)
	if err := v.Store(ctx, inbox.ID, &merged, nil); err != nil {
		return nil, fmt.Errorf("%w for inbox %s: %v", ErrRefreshFailed, inbox.ID, err)
	}

	return &merged, nil
}

// Store encrypts a token and writes the three credential columns together.
func (v *Vault) Store(ctx context.Context, inboxID string, token *StoredToken, accountEmail *string) error {
	payload, err := v.encryptor.EncryptJSON(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := db.SaveInboxCredentials(ctx, v.pool, inboxID, payload, accountEmail); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	return nil
}

// Disconnect revokes the inbox's tokens at the provider (best effort,
// we are disconnecting either way) and clears the credential columns.
func (v *Vault) Disconnect(ctx context.Context, inbox *models.Inbox) error {
	token, err := v.Decrypt(inbox)
	if err != nil {
		log.Printf("Warning: Failed to decrypt credentials while disconnecting inbox %s: %v", inbox.ID, err)
	}

	if token != nil {
		if err := v.refresher.Revoke(ctx, token); err != nil {
			log.Printf("Warning: Failed to revoke tokens for inbox %s: %v", inbox.ID, err)
		}
	}

	if err := db.ClearInboxCredentials(ctx, v.pool, inbox.ID); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	return nil
}
