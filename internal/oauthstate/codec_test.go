package oauthstate

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/sharedmail/backend/internal/crypto"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}

	encryptor, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("Failed to create encryptor: %v", err)
	}
	return NewCodec(encryptor)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	in := State{
		InboxID:      "0c9e7c1e-8f43-4af1-9a39-2b3a1cf7a111",
		TeamID:       "f2d6b7aa-43e1-4f10-a2c4-67e1f0b2c222",
		RedirectPath: "/inbox?tab=mine",
	}

	encoded, err := codec.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out != in {
		t.Errorf("Expected %+v, got %+v", in, out)
	}
}

func TestCodecProducesURLSafeOutput(t *testing.T) {
	codec := newTestCodec(t)

	encoded, err := codec.Encode(State{InboxID: "a", TeamID: "b", RedirectPath: "/"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		t.Errorf("Encoded state is not URL-safe base64: %v", err)
	}
}

func TestCodecRejectsTamperedState(t *testing.T) {
	codec := newTestCodec(t)

	encoded, err := codec.Encode(State{InboxID: "inbox", TeamID: "team", RedirectPath: "/inbox"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	t.Run("garbage input", func(t *testing.T) {
		if _, err := codec.Decode("%%% not base64 %%%"); !errors.Is(err, ErrStateTampered) {
			t.Errorf("Expected ErrStateTampered, got %v", err)
		}
	})

	t.Run("valid base64, not a payload", func(t *testing.T) {
		bogus := base64.RawURLEncoding.EncodeToString([]byte("not json"))
		if _, err := codec.Decode(bogus); !errors.Is(err, ErrStateTampered) {
			t.Errorf("Expected ErrStateTampered, got %v", err)
		}
	})

	t.Run("flipped byte in the blob", func(t *testing.T) {
		raw, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		// Flip a byte inside the JSON-wrapped ciphertext.
		raw[len(raw)/2] ^= 0x40
		if _, err := codec.Decode(base64.RawURLEncoding.EncodeToString(raw)); !errors.Is(err, ErrStateTampered) {
			t.Errorf("Expected ErrStateTampered, got %v", err)
		}
	})

	t.Run("different deployment secret", func(t *testing.T) {
		otherKey := make([]byte, 32)
		for i := range otherKey {
			otherKey[i] = byte(100 + i)
		}
		otherEncryptor, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(otherKey))
		if err != nil {
			t.Fatalf("Failed to create encryptor: %v", err)
		}
		other := NewCodec(otherEncryptor)
		if _, err := other.Decode(encoded); !errors.Is(err, ErrStateTampered) {
			t.Errorf("Expected ErrStateTampered, got %v", err)
		}
	})
}
