// Package repository provides PostgreSQL access for the commute matching
// system.
//
// Nested documents (route geometry, scores, decisions) live in JSONB
// columns; pgx's JSON codec maps them onto the model structs directly. The
// schema is created by migrations/001_create_schema.up.sql.
//
// Get-style methods return (nil, nil) when no row matches; errors are
// reserved for database failures.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meera/waymate/internal/model"
)

// UserRepository provides database access for user profiles.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new repository backed by the given PG pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, name, occupation, gender, interests, created_at, updated_at`

// GetByID fetches a single profile.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &model.UserProfile{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Occupation, &user.Gender,
		&user.Interests, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// ListByIDs fetches the profiles for a set of user ids. Missing ids are
// silently absent from the result.
func (r *UserRepository) ListByIDs(ctx context.Context, ids []string) ([]model.UserProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.UserProfile
	for rows.Next() {
		var user model.UserProfile
		if err := rows.Scan(
			&user.ID, &user.Name, &user.Occupation, &user.Gender,
			&user.Interests, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Upsert creates or replaces a profile keyed by id.
func (r *UserRepository) Upsert(ctx context.Context, profile *model.UserProfile) error {
	query := `
		INSERT INTO users (id, name, occupation, gender, interests, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			occupation = EXCLUDED.occupation,
			gender = EXCLUDED.gender,
			interests = EXCLUDED.interests,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		profile.ID, profile.Name, profile.Occupation, profile.Gender,
		profile.Interests, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", profile.ID, err)
	}
	return nil
}
