// Package oauthstate encodes the continuation context carried through the
// Google OAuth redirect round trip. The opaque token doubles as the CSRF
// nonce: it is encrypted and authenticated under the server secret, so a
// state for a different inbox or team cannot be forged or replayed.
package oauthstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sharedmail/backend/internal/crypto"
)

// ErrStateTampered is returned when a state parameter cannot be decoded:
// corrupted input, a forged value, or a blob produced under a different
// deployment secret.
var ErrStateTampered = errors.New("oauth state is invalid or tampered with")

// State is the context that survives the redirect to Google and back.
type State struct {
	InboxID      string `json:"inboxId"`
	TeamID       string `json:"teamId"`
	RedirectPath string `json:"redirectPath"`
}

// Codec encodes and decodes OAuth state blobs.
type Codec struct {
	encryptor *crypto.Encryptor
}

// NewCodec creates a Codec backed by the given encryptor.
func NewCodec(encryptor *crypto.Encryptor) *Codec {
	return &Codec{encryptor: encryptor}
}

// Encode encrypts the state and packs it into a URL-safe string.
func (c *Codec) Encode(state State) (string, error) {
	payload, err := c.encryptor.EncryptJSON(state)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt oauth state: %w", err)
	}

	wrapped, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal oauth state payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(wrapped), nil
}

// Decode unpacks and decrypts an encoded state string. Any failure along
// the way, including a bad authentication tag, is reported as
// ErrStateTampered: the caller cannot distinguish corruption from forgery
// and should not try.
func (c *Codec) Decode(encoded string) (State, error) {
	var state State

	wrapped, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrStateTampered, err)
	}

	var payload crypto.EncryptedPayload
	if err := json.Unmarshal(wrapped, &payload); err != nil {
		return state, fmt.Errorf("%w: %v", ErrStateTampered, err)
	}

	if err := c.encryptor.DecryptJSON(&payload, &state); err != nil {
		return state, fmt.Errorf("%w: %v", ErrStateTampered, err)
	}

	return state, nil
}
