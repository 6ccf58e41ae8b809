package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sharedmail/backend/internal/models"
)

// ErrProfileNotFound is returned when a requested profile cannot be found.
var ErrProfileNotFound = errors.New("profile not found")

// GetProfileByEmail returns the team member profile for an email address.
func GetProfileByEmail(ctx context.Context, pool *pgxpool.Pool, email string) (*models.Profile, error) {
	var profile models.Profile

	err := pool.QueryRow(ctx, `
		SELECT id, email, name, role, team_id
		FROM profiles
		WHERE email = $1
	`, email).Scan(
		&profile.ID,
		&profile.Email,
		&profile.Name,
		&profile.Role,
		&profile.TeamID,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

// CreateProfile inserts a team member.
func CreateProfile(ctx context.Context, pool *pgxpool.Pool, profile *models.Profile) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO profiles (email, name, role, team_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, profile.Email, profile.Name, profile.Role, profile.TeamID).Scan(&profile.ID)

	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}
