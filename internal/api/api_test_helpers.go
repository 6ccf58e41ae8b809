package api

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sharedmail/backend/internal/testutil"
	"github.com/sharedmail/backend/internal/tokens"
)

// noRefresh is a tokens.Refresher for tests whose credentials never expire.
type noRefresh struct{}

func (noRefresh) RefreshToken(ctx context.Context, token *tokens.StoredToken) (*tokens.StoredToken, error) {
	return nil, fmt.Errorf("refresh not expected in this test")
}

func (noRefresh) Revoke(ctx context.Context, token *tokens.StoredToken) error { return nil }

func newTestVault(t *testing.T, pool *pgxpool.Pool) *tokens.Vault {
	t.Helper()
	return tokens.NewVault(pool, testutil.GetTestEncryptor(t), noRefresh{})
}

func storeTestCredentials(t *testing.T, vault *tokens.Vault, inboxID string) {
	t.Helper()

	token := &tokens.StoredToken{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiryDate:   time.Now().Add(time.Hour).UnixMilli(),
	}
	if err := vault.Store(context.Background(), inboxID, token, nil); err != nil {
		t.Fatalf("Failed to store test credentials: %v", err)
	}
}

// fakeSender records the last reply handed to the provider.
type fakeSender struct {
	sentID       string
	sentThreadID string
	err          error
	lastRaw      []byte
	lastThreadID string
}

func (f *fakeSender) SendMessage(ctx context.Context, token *tokens.StoredToken, raw []byte, threadID string) (string, string, error) {
	f.lastRaw = raw
	f.lastThreadID = threadID
	if f.err != nil {
		return "", "", f.err
	}
	return f.sentID, f.sentThreadID, nil
}
