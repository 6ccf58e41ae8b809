package models

import (
	"encoding/base64"
	"time"

	"github.com/sharedmail/backend/internal/crypto"
)

// Inbox is one connected Gmail account synced into the system.
//
// The three credential columns are all-or-nothing: an inbox with any of
// them missing is disconnected. Credentials returns nil in that case.
type Inbox struct {
	ID                 string     `json:"id"`
	TeamID             string     `json:"team_id"`
	Name               string     `json:"name"`
	GmailAddress       string     `json:"gmail_address"`
	GoogleAccountEmail *string    `json:"google_account_email,omitempty"`
	IsActive           bool       `json:"is_active"`
	LastSyncedAt       *time.Time `json:"last_synced_at"`

	// Encrypted OAuth credential bundle, never exposed over the API.
	TokenEncrypted []byte `json:"-"`
	TokenIV        []byte `json:"-"`
	TokenAuthTag   []byte `json:"-"`
}

// Credentials assembles the encrypted credential bundle, or nil when any
// part is missing (the inbox is not connected). The columns hold raw
// bytes; EncryptedPayload carries them base64-encoded.
func (i *Inbox) Credentials() *crypto.EncryptedPayload {
	if len(i.TokenEncrypted) == 0 || len(i.TokenIV) == 0 || len(i.TokenAuthTag) == 0 {
		return nil
	}
	return &crypto.EncryptedPayload{
		IV:         base64.StdEncoding.EncodeToString(i.TokenIV),
		CipherText: base64.StdEncoding.EncodeToString(i.TokenEncrypted),
		AuthTag:    base64.StdEncoding.EncodeToString(i.TokenAuthTag),
	}
}
