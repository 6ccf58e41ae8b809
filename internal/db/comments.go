package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/models"
)

// CreateComment inserts an internal note on a conversation.
func CreateComment(ctx context.Context, pool *pgxpool.Pool, comment *models.Comment) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO comments (conversation_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, comment.ConversationID, comment.AuthorID, comment.Body).Scan(&comment.ID, &comment.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	return nil
}

// GetCommentsForConversation returns all comments on a conversation,
// oldest first.
func GetCommentsForConversation(ctx context.Context, pool *pgxpool.Pool, conversationID string) ([]*models.Comment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, conversation_id, author_id, body, created_at
		FROM comments
		WHERE conversation_id = $1
		ORDER BY created_at
	`, conversationID)

	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.ConversationID,
			&comment.AuthorID,
			&comment.Body,
			&comment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}
