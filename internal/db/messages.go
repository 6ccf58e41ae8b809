package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// SaveMessage saves or updates a message keyed on gmail_message_id.
// Re-processing the same Gmail message converges on the same row.
func SaveMessage(ctx context.Context, pool *pgxpool.Pool, message *models.Message) error {
	headersJSON, err := json.Marshal(message.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO messages (
			conversation_id,
			gmail_message_id,
			from_addr,
			to_addrs,
			cc_addrs,
			bcc_addrs,
			sent_at,
			body_html,
			body_text,
			headers,
			has_attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (gmail_message_id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			from_addr = EXCLUDED.from_addr,
			to_addrs = EXCLUDED.to_addrs,
			cc_addrs = EXCLUDED.cc_addrs,
			bcc_addrs = EXCLUDED.bcc_addrs,
			sent_at = EXCLUDED.sent_at,
			body_html = COALESCE(EXCLUDED.body_html, messages.body_html),
			body_text = COALESCE(EXCLUDED.body_text, messages.body_text),
			headers = EXCLUDED.headers,
			has_attachments = EXCLUDED.has_attachments
		RETURNING id
	`,
		message.ConversationID,
		message.GmailMessageID,
		message.FromAddr,
		message.ToAddrs,
		message.CcAddrs,
		message.BccAddrs,
		message.SentAt,
		message.BodyHTML,
		message.BodyText,
		headersJSON,
		message.HasAttachments,
	).Scan(&message.ID)

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	var headersJSON []byte

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.GmailMessageID,
		&msg.FromAddr,
		&msg.ToAddrs,
		&msg.CcAddrs,
		&msg.BccAddrs,
		&msg.SentAt,
		&msg.BodyHTML,
		&msg.BodyText,
		&headersJSON,
		&msg.HasAttachments,
	)
	if err != nil {
		return nil, err
	}

	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &msg.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}

	return &msg, nil
}

const messageColumns = `
	id,
	conversation_id,
	gmail_message_id,
	from_addr,
	to_addrs,
	cc_addrs,
	bcc_addrs,
	sent_at,
	body_html,
	body_text,
	headers,
	has_attachments`

// GetMessagesForConversation returns all messages for a conversation,
// oldest first.
func GetMessagesForConversation(ctx context.Context, pool *pgxpool.Pool, conversationID string) ([]*models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at
	`, conversationID)

	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// GetMessageByGmailID returns a message by its Gmail message id.
func GetMessageByGmailID(ctx context.Context, pool *pgxpool.Pool, gmailMessageID string) (*models.Message, error) {
	msg, err := scanMessage(pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE gmail_message_id = $1
	`, gmailMessageID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// GetLatestMessageForConversation returns the newest message in a
// conversation, used to thread outbound replies.
func GetLatestMessageForConversation(ctx context.Context, pool *pgxpool.Pool, conversationID string) (*models.Message, error) {
	msg, err := scanMessage(pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC
		LIMIT 1
	`, conversationID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}

	return msg, nil
}

// CountMessagesForConversation returns how many messages a conversation has.
func CountMessagesForConversation(ctx context.Context, pool *pgxpool.Pool, conversationID string) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1
	`, conversationID).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}
