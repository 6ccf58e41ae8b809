package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// nonceSize is the GCM nonce length in bytes (96 bits).
const nonceSize = 12

// ErrAuthenticationFailed is returned when a ciphertext fails tag
// verification: it was tampered with, truncated, or encrypted under a
// different key.
var ErrAuthenticationFailed = errors.New("ciphertext authentication failed")

// EncryptedPayload is the three-part representation of an encrypted value.
// The parts are stored as three independent columns so that a record with
// any part missing is unambiguously "no credentials". All fields are
// standard base64.
type EncryptedPayload struct {
	IV         string `json:"iv"`
	CipherText string `json:"cipherText"`
	AuthTag    string `json:"authTag"`
}

// Encryptor provides authenticated encryption using AES-256-GCM.
// GCM gives both confidentiality and tamper detection, which is what we
// need for OAuth credential bundles and state blobs that round-trip
// through the browser.
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new Encryptor with the given key.
// The key must be exactly 32 bytes once base64-decoded; anything else is
// a configuration error and fails before any cryptographic use.
func NewEncryptor(base64Key string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	return &Encryptor{key: key}, nil
}

// Encrypt encrypts the given plaintext using AES-GCM with a fresh random
// 12-byte nonce per call. The GCM tag is split off the sealed output and
// returned as a separate field so the three parts can be persisted in
// independent columns.
func (e *Encryptor) Encrypt(plaintext string) (*EncryptedPayload, error) {
	gcm, err := e.newGCM()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()

	return &EncryptedPayload{
		IV:         base64.StdEncoding.EncodeToString(iv),
		CipherText: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt decrypts the given payload. It returns ErrAuthenticationFailed
// (wrapped) when the tag does not verify or any part has an invalid
// length, never partially decrypted plaintext.
func (e *Encryptor) Decrypt(payload *EncryptedPayload) (string, error) {
	gcm, err := e.newGCM()
	if err != nil {
		return "", err
	}

	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil {
		return "", fmt.Errorf("failed to decode iv: %w", err)
	}
	cipherText, err := base64.StdEncoding.DecodeString(payload.CipherText)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	authTag, err := base64.StdEncoding.DecodeString(payload.AuthTag)
	if err != nil {
		return "", fmt.Errorf("failed to decode auth tag: %w", err)
	}

	if len(iv) != nonceSize || len(authTag) != gcm.Overhead() {
		return "", fmt.Errorf("%w: invalid part length", ErrAuthenticationFailed)
	}

	plaintext, err := gcm.Open(nil, iv, append(cipherText, authTag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	return string(plaintext), nil
}

// EncryptJSON marshals the value to JSON and encrypts it.
func (e *Encryptor) EncryptJSON(value any) (*EncryptedPayload, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return e.Encrypt(string(data))
}

// DecryptJSON decrypts the payload and unmarshals the plaintext into out.
func (e *Encryptor) DecryptJSON(payload *EncryptedPayload, out any) error {
	plaintext, err := e.Decrypt(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	return nil
}

func (e *Encryptor) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
