package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/models"
)

// ErrConversationNotFound is returned when a requested conversation cannot be found.
var ErrConversationNotFound = errors.New("conversation not found")

const conversationColumns = `
	id,
	inbox_id,
	gmail_thread_id,
	subject,
	status,
	assignee_id,
	preview,
	last_customer_msg_at,
	last_agent_msg_at,
	snoozed_until`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.InboxID,
		&conv.GmailThreadID,
		&conv.Subject,
		&conv.Status,
		&conv.AssigneeID,
		&conv.Preview,
		&conv.LastCustomerMsgAt,
		&conv.LastAgentMsgAt,
		&conv.SnoozedUntil,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpsertConversation saves or updates a conversation keyed on
// (inbox_id, gmail_thread_id). A new row starts open; re-syncing an
// existing thread refreshes the subject without touching triage state.
// The inbound timestamp only moves forward, and the preview follows it,
// so a batch processed in any order lands on the latest inbound message.
func UpsertConversation(ctx context.Context, pool *pgxpool.Pool, conv *models.Conversation) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO conversations (
			inbox_id,
			gmail_thread_id,
			subject,
			status,
			preview,
			last_customer_msg_at
		) VALUES ($1, $2, $3, 'open', $4, $5)
		ON CONFLICT (inbox_id, gmail_thread_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			preview = CASE
				WHEN EXCLUDED.last_customer_msg_at IS NOT NULL
					AND (conversations.last_customer_msg_at IS NULL
						OR EXCLUDED.last_customer_msg_at >= conversations.last_customer_msg_at)
				THEN EXCLUDED.preview
				ELSE conversations.preview
			END,
			last_customer_msg_at = GREATEST(conversations.last_customer_msg_at, EXCLUDED.last_customer_msg_at)
		RETURNING id, status
	`,
		conv.InboxID,
		conv.GmailThreadID,
		conv.Subject,
		conv.Preview,
		conv.LastCustomerMsgAt,
	).Scan(&conv.ID, &conv.Status)

	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	return nil
}

// GetConversationByID returns a conversation by its database ID.
func GetConversationByID(ctx context.Context, pool *pgxpool.Pool, conversationID string) (*models.Conversation, error) {
	conv, err := scanConversation(pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, conversationID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// GetConversationByThreadID returns the conversation for a Gmail thread
// within one inbox.
func GetConversationByThreadID(ctx context.Context, pool *pgxpool.Pool, inboxID, gmailThreadID string) (*models.Conversation, error) {
	conv, err := scanConversation(pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE inbox_id = $1 AND gmail_thread_id = $2
	`, inboxID, gmailThreadID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get conversation by thread id: %w", err)
	}

	return conv, nil
}

// ConversationFilter narrows ListConversations. Zero values mean "any".
type ConversationFilter struct {
	TeamID     string
	InboxID    string
	Status     string
	AssigneeID string
	Snoozed    *bool
	Limit      int
	Offset     int
}

// ListConversations returns conversations for a team, newest inbound
// first, honoring the optional filters.
func ListConversations(ctx context.Context, pool *pgxpool.Pool, filter ConversationFilter) ([]*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumnsPrefixed("c") + `
		FROM conversations c
		INNER JOIN inboxes i ON c.inbox_id = i.id
		WHERE i.team_id = $1`
	args := []any{filter.TeamID}

	if filter.InboxID != "" {
		args = append(args, filter.InboxID)
		query += fmt.Sprintf(" AND c.inbox_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND c.status = $%d", len(args))
	}
	if filter.AssigneeID != "" {
		args = append(args, filter.AssigneeID)
		query += fmt.Sprintf(" AND c.assignee_id = $%d", len(args))
	}
	if filter.Snoozed != nil {
		if *filter.Snoozed {
			query += " AND c.snoozed_until IS NOT NULL AND c.snoozed_until > now()"
		} else {
			query += " AND (c.snoozed_until IS NULL OR c.snoozed_until <= now())"
		}
	}

	query += " ORDER BY c.last_customer_msg_at DESC NULLS LAST"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

func conversationColumnsPrefixed(alias string) string {
	return alias + `.id,
	` + alias + `.inbox_id,
	` + alias + `.gmail_thread_id,
	` + alias + `.subject,
	` + alias + `.status,
	` + alias + `.assignee_id,
	` + alias + `.preview,
	` + alias + `.last_customer_msg_at,
	` + alias + `.last_agent_msg_at,
	` + alias + `.snoozed_until`
}

// SetConversationStatus updates the triage status.
func SetConversationStatus(ctx context.Context, pool *pgxpool.Pool, conversationID string, status models.ConversationStatus) error {
	tag, err := pool.Exec(ctx, `
		UPDATE conversations
		SET status = $2
		WHERE id = $1
	`, conversationID, status)

	if err != nil {
		return fmt.Errorf("failed to set conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// SetConversationAssignee assigns or unassigns (nil) a conversation.
func SetConversationAssignee(ctx context.Context, pool *pgxpool.Pool, conversationID string, assigneeID *string) error {
	tag, err := pool.Exec(ctx, `
		UPDATE conversations
		SET assignee_id = $2
		WHERE id = $1
	`, conversationID, assigneeID)

	if err != nil {
		return fmt.Errorf("failed to set conversation assignee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// SetConversationSnoozedUntil snoozes (or with nil, unsnoozes) a conversation.
func SetConversationSnoozedUntil(ctx context.Context, pool *pgxpool.Pool, conversationID string, until *time.Time) error {
	tag, err := pool.Exec(ctx, `
		UPDATE conversations
		SET snoozed_until = $2
		WHERE id = $1
	`, conversationID, until)

	if err != nil {
		return fmt.Errorf("failed to snooze conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// MarkConversationReplied records an outbound reply: the conversation
// moves to waiting, gets the replying agent as assignee, and the agent
// timestamp advances. A thread id obtained from the send response is
// stored when the conversation did not have one yet.
func MarkConversationReplied(ctx context.Context, pool *pgxpool.Pool, conversationID, assigneeID string, repliedAt time.Time, gmailThreadID string) error {
	_, err := pool.Exec(ctx, `
		UPDATE conversations
		SET status = 'waiting',
			assignee_id = $2,
			last_agent_msg_at = $3,
			gmail_thread_id = COALESCE(NULLIF(gmail_thread_id, ''), $4)
		WHERE id = $1
	`, conversationID, assigneeID, repliedAt, gmailThreadID)

	if err != nil {
		return fmt.Errorf("failed to mark conversation replied: %w", err)
	}

	return nil
}
