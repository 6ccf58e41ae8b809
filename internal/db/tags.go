package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/models"
)

// AddConversationTag attaches a tag to a conversation. Attaching the same
// tag twice is a no-op.
func AddConversationTag(ctx context.Context, pool *pgxpool.Pool, conversationID, tagID string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO conversation_tags (conversation_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, tag_id) DO NOTHING
	`, conversationID, tagID)

	if err != nil {
		return fmt.Errorf("failed to add conversation tag: %w", err)
	}

	return nil
}

// RemoveConversationTag detaches a tag from a conversation.
func RemoveConversationTag(ctx context.Context, pool *pgxpool.Pool, conversationID, tagID string) error {
	_, err := pool.Exec(ctx, `
		DELETE FROM conversation_tags
		WHERE conversation_id = $1 AND tag_id = $2
	`, conversationID, tagID)

	if err != nil {
		return fmt.Errorf("failed to remove conversation tag: %w", err)
	}

	return nil
}

// GetTagsForConversation returns the tags attached to a conversation.
func GetTagsForConversation(ctx context.Context, pool *pgxpool.Pool, conversationID string) ([]models.Tag, error) {
	rows, err := pool.Query(ctx, `
		SELECT t.id, t.team_id, t.name, t.color
		FROM tags t
		INNER JOIN conversation_tags ct ON ct.tag_id = t.id
		WHERE ct.conversation_id = $1
		ORDER BY t.name
	`, conversationID)

	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.TeamID, &tag.Name, &tag.Color); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// CreateTag inserts a new tag for a team.
func CreateTag(ctx context.Context, pool *pgxpool.Pool, tag *models.Tag) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO tags (team_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING id
	`, tag.TeamID, tag.Name, tag.Color).Scan(&tag.ID)

	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}

	return nil
}
