package db

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/crypto"
	"github.com/sharedmail/backend/internal/models"
)

// ErrInboxNotFound is returned when a requested inbox cannot be found.
var ErrInboxNotFound = errors.New("inbox not found")

const inboxColumns = `
	id,
	team_id,
	name,
	gmail_address,
	google_account_email,
	is_active,
	last_synced_at,
	token_encrypted,
	token_iv,
	token_auth_tag`

func scanInbox(row pgx.Row) (*models.Inbox, error) {
	var inbox models.Inbox
	err := row.Scan(
		&inbox.ID,
		&inbox.TeamID,
		&inbox.Name,
		&inbox.GmailAddress,
		&inbox.GoogleAccountEmail,
		&inbox.IsActive,
		&inbox.LastSyncedAt,
		&inbox.TokenEncrypted,
		&inbox.TokenIV,
		&inbox.TokenAuthTag,
	)
	if err != nil {
		return nil, err
	}
	return &inbox, nil
}

// CreateInbox inserts a new, disconnected inbox for a team.
func CreateInbox(ctx context.Context, pool *pgxpool.Pool, inbox *models.Inbox) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO inboxes (team_id, name, gmail_address, is_active)
		VALUES ($1, $2, $3, true)
		RETURNING id
	`, inbox.TeamID, inbox.Name, inbox.GmailAddress).Scan(&inbox.ID)

	if err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	inbox.IsActive = true
	return nil
}

// GetInboxByID returns an inbox by its ID.
func GetInboxByID(ctx context.Context, pool *pgxpool.Pool, inboxID string) (*models.Inbox, error) {
	inbox, err := scanInbox(pool.QueryRow(ctx, `
		SELECT `+inboxColumns+`
		FROM inboxes
		WHERE id = $1
	`, inboxID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInboxNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get inbox: %w", err)
	}

	return inbox, nil
}

// GetInboxesForTeam returns all inboxes belonging to a team.
func GetInboxesForTeam(ctx context.Context, pool *pgxpool.Pool, teamID string) ([]*models.Inbox, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+inboxColumns+`
		FROM inboxes
		WHERE team_id = $1
		ORDER BY name
	`, teamID)

	if err != nil {
		return nil, fmt.Errorf("failed to get inboxes: %w", err)
	}
	defer rows.Close()

	var inboxes []*models.Inbox
	for rows.Next() {
		inbox, err := scanInbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox: %w", err)
		}
		inboxes = append(inboxes, inbox)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inboxes: %w", err)
	}

	return inboxes, nil
}

// GetActiveInboxes returns every active inbox across all teams, for the
// sync cycle to walk.
func GetActiveInboxes(ctx context.Context, pool *pgxpool.Pool) ([]*models.Inbox, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+inboxColumns+`
		FROM inboxes
		WHERE is_active = true
		ORDER BY id
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to get active inboxes: %w", err)
	}
	defer rows.Close()

	var inboxes []*models.Inbox
	for rows.Next() {
		inbox, err := scanInbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inbox: %w", err)
		}
		inboxes = append(inboxes, inbox)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inboxes: %w", err)
	}

	return inboxes, nil
}

// SaveInboxCredentials writes the three credential columns together, in a
// single statement. Partial writes would leave the inbox in an undefined
// connection state, so the triple is never split across statements.
func SaveInboxCredentials(ctx context.Context, pool *pgxpool.Pool, inboxID string, payload *crypto.EncryptedPayload, accountEmail *string) error {
	cipherText, err := base64.StdEncoding.DecodeString(payload.CipherText)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil {
		return fmt.Errorf("failed to decode iv: %w", err)
	}
	authTag, err := base64.StdEncoding.DecodeString(payload.AuthTag)
	if err != nil {
		return fmt.Errorf("failed to decode auth tag: %w", err)
	}

	tag, err := pool.Exec(ctx, `
		UPDATE inboxes
		SET token_encrypted = $2,
			token_iv = $3,
			token_auth_tag = $4,
			google_account_email = COALESCE($5, google_account_email)
		WHERE id = $1
	`, inboxID, cipherText, iv, authTag, accountEmail)

	if err != nil {
		return fmt.Errorf("failed to save inbox credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInboxNotFound
	}

	return nil
}

// ClearInboxCredentials removes the credential triple and account email,
// marking the inbox as disconnected.
func ClearInboxCredentials(ctx context.Context, pool *pgxpool.Pool, inboxID string) error {
	_, err := pool.Exec(ctx, `
		UPDATE inboxes
		SET token_encrypted = NULL,
			token_iv = NULL,
			token_auth_tag = NULL,
			google_account_email = NULL
		WHERE id = $1
	`, inboxID)

	if err != nil {
		return fmt.Errorf("failed to clear inbox credentials: %w", err)
	}

	return nil
}

// SetInboxLastSyncedAt advances the sync checkpoint for an inbox.
func SetInboxLastSyncedAt(ctx context.Context, pool *pgxpool.Pool, inboxID string, syncedAt time.Time) error {
	_, err := pool.Exec(ctx, `
		UPDATE inboxes
		SET last_synced_at = $2
		WHERE id = $1
	`, inboxID, syncedAt)

	if err != nil {
		return fmt.Errorf("failed to set last synced at: %w", err)
	}

	return nil
}

// SetInboxActive marks an inbox active or inactive.
func SetInboxActive(ctx context.Context, pool *pgxpool.Pool, inboxID string, active bool) error {
	_, err := pool.Exec(ctx, `
		UPDATE inboxes
		SET is_active = $2
		WHERE id = $1
	`, inboxID, active)

	if err != nil {
		return fmt.Errorf("failed to set inbox active flag: %w", err)
	}

	return nil
}
