package db

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/sharedmail/backend/internal/crypto"
	"github.com/sharedmail/backend/internal/testutil"
)

func testPayload() *crypto.EncryptedPayload {
	return &crypto.EncryptedPayload{
		IV:         base64.StdEncoding.EncodeToString([]byte("0123456789ab")),
		CipherText: base64.StdEncoding.EncodeToString([]byte("ciphertext")),
		AuthTag:    base64.StdEncoding.EncodeToString([]byte("0123456789abcdef")),
	}
}

func TestInboxCredentials(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	teamID := testutil.CreateTestTeam(t, pool, "Acme")
	inboxID := testutil.CreateTestInbox(t, pool, teamID, "support@example.com")

	t.Run("fresh inbox has no credentials", func(t *testing.T) {
		inbox, err := GetInboxByID(ctx, pool, inboxID)
		if err != nil {
			t.Fatalf("GetInboxByID failed: %v", err)
		}
		if inbox.Credentials() != nil {
			t.Error("Expected nil credentials on a fresh inbox")
		}
	})

	t.Run("save and read back the triple", func(t *testing.T) {
		email := "account@gmail.com"
		if err := SaveInboxCredentials(ctx, pool, inboxID, testPayload(), &email); err != nil {
			t.Fatalf("SaveInboxCredentials failed: %v", err)
		}

		inbox, err := GetInboxByID(ctx, pool, inboxID)
		if err != nil {
			t.Fatalf("GetInboxByID failed: %v", err)
		}

		payload := inbox.Credentials()
		if payload == nil {
			t.Fatal("Expected credentials after save")
		}
		if payload.IV != testPayload().IV || payload.CipherText != testPayload().CipherText || payload.AuthTag != testPayload().AuthTag {
			t.Errorf("Round-tripped payload differs: %+v", payload)
		}
		if inbox.GoogleAccountEmail == nil || *inbox.GoogleAccountEmail != email {
			t.Errorf("Expected account email stored, got %v", inbox.GoogleAccountEmail)
		}
	})

	t.Run("save keeps account email when not provided", func(t *testing.T) {
		if err := SaveInboxCredentials(ctx, pool, inboxID, testPayload(), nil); err != nil {
			t.Fatalf("SaveInboxCredentials failed: %v", err)
		}
		inbox, err := GetInboxByID(ctx, pool, inboxID)
		if err != nil {
			t.Fatalf("GetInboxByID failed: %v", err)
		}
		if inbox.GoogleAccountEmail == nil || *inbox.GoogleAccountEmail != "account@gmail.com" {
			t.Errorf("Expected account email preserved, got %v", inbox.GoogleAccountEmail)
		}
	})

	t.Run("clear removes the whole triple", func(t *testing.T) {
		if err := ClearInboxCredentials(ctx, pool, inboxID); err != nil {
			t.Fatalf("ClearInboxCredentials failed: %v", err)
		}
		inbox, err := GetInboxByID(ctx, pool, inboxID)
		if err != nil {
			t.Fatalf("GetInboxByID failed: %v", err)
		}
		if inbox.Credentials() != nil {
			t.Error("Expected nil credentials after clear")
		}
	})

	t.Run("unknown inbox yields not found", func(t *testing.T) {
		err := SaveInboxCredentials(ctx, pool, "00000000-0000-0000-0000-000000000000", testPayload(), nil)
		if !errors.Is(err, ErrInboxNotFound) {
			t.Errorf("Expected ErrInboxNotFound, got %v", err)
		}
		_, err = GetInboxByID(ctx, pool, "00000000-0000-0000-0000-000000000000")
		if !errors.Is(err, ErrInboxNotFound) {
			t.Errorf("Expected ErrInboxNotFound, got %v", err)
		}
	})
}

func TestActiveInboxes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	teamID := testutil.CreateTestTeam(t, pool, "Acme")
	activeID := testutil.CreateTestInbox(t, pool, teamID, "support@example.com")
	inactiveID := testutil.CreateTestInbox(t, pool, teamID, "sales@example.com")

	if err := SetInboxActive(ctx, pool, inactiveID, false); err != nil {
		t.Fatalf("SetInboxActive failed: %v", err)
	}

	inboxes, err := GetActiveInboxes(ctx, pool)
	if err != nil {
		t.Fatalf("GetActiveInboxes failed: %v", err)
	}
	if len(inboxes) != 1 || inboxes[0].ID != activeID {
		t.Errorf("Expected only the active inbox, got %d rows", len(inboxes))
	}

	t.Run("last synced at round trips", func(t *testing.T) {
		syncedAt := time.Now().Truncate(time.Millisecond)
		if err := SetInboxLastSyncedAt(ctx, pool, activeID, syncedAt); err != nil {
			t.Fatalf("SetInboxLastSyncedAt failed: %v", err)
		}
		inbox, err := GetInboxByID(ctx, pool, activeID)
		if err != nil {
			t.Fatalf("GetInboxByID failed: %v", err)
		}
		if inbox.LastSyncedAt == nil || !inbox.LastSyncedAt.Equal(syncedAt) {
			t.Errorf("Expected %v, got %v", syncedAt, inbox.LastSyncedAt)
		}
	})
}
