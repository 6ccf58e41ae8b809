package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/models"
)

// AttachmentID derives the stable attachment row id from the Gmail message
// id and attachment id. The derivation must stay exactly this shape to
// interoperate with rows persisted by earlier versions; the unique
// (message_id, gmail_attachment_id) constraint guards against separator
// collisions in provider attachment ids.
func AttachmentID(gmailMessageID, gmailAttachmentID string) string {
	return gmailMessageID + "-" + gmailAttachmentID
}

// UpsertAttachment saves or updates an attachment row keyed on its derived id.
func UpsertAttachment(ctx context.Context, pool *pgxpool.Pool, attachment *models.Attachment) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO attachments (
			id,
			message_id,
			gmail_attachment_id,
			filename,
			mime_type,
			size_bytes,
			storage_path
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			storage_path = EXCLUDED.storage_path
	`,
		attachment.ID,
		attachment.MessageID,
		attachment.GmailAttachmentID,
		attachment.Filename,
		attachment.MimeType,
		attachment.SizeBytes,
		attachment.StoragePath,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}

	return nil
}

// GetAttachmentsForMessage returns all attachments for a message.
func GetAttachmentsForMessage(ctx context.Context, pool *pgxpool.Pool, messageID string) ([]*models.Attachment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, message_id, gmail_attachment_id, filename, mime_type, size_bytes, storage_path
		FROM attachments
		WHERE message_id = $1
		ORDER BY id
	`, messageID)

	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.GmailAttachmentID,
			&att.Filename,
			&att.MimeType,
			&att.SizeBytes,
			&att.StoragePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, &att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

// GetAttachmentsForMessages returns attachments for multiple messages in a
// single query, as a map from message id to its attachments.
func GetAttachmentsForMessages(ctx context.Context, pool *pgxpool.Pool, messageIDs []string) (map[string][]*models.Attachment, error) {
	if len(messageIDs) == 0 {
		return make(map[string][]*models.Attachment), nil
	}

	rows, err := pool.Query(ctx, `
		SELECT id, message_id, gmail_attachment_id, filename, mime_type, size_bytes, storage_path
		FROM attachments
		WHERE message_id = ANY($1)
		ORDER BY message_id, id
	`, messageIDs)

	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	attachmentsMap := make(map[string][]*models.Attachment)
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.GmailAttachmentID,
			&att.Filename,
			&att.MimeType,
			&att.SizeBytes,
			&att.StoragePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachmentsMap[att.MessageID] = append(attachmentsMap[att.MessageID], &att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachmentsMap, nil
}
