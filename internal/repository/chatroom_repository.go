package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meera/waymate/internal/model"
)

// ChatRoomRepository provides database access for chat rooms.
type ChatRoomRepository struct {
	pool *pgxpool.Pool
}

// NewChatRoomRepository creates a new repository backed by the given PG pool.
func NewChatRoomRepository(pool *pgxpool.Pool) *ChatRoomRepository {
	return &ChatRoomRepository{pool: pool}
}

// Insert stores a new room and fills in its generated id and timestamps.
func (r *ChatRoomRepository) Insert(ctx context.Context, room *model.ChatRoom) error {
	query := `
		INSERT INTO chat_rooms (match_id, participants, type)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		room.MatchID, room.Participants, room.Type,
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat room: %w", err)
	}
	return nil
}

// ListByParticipant returns the rooms the user belongs to, newest first.
// The JSONB containment predicate hits the GIN index on participants.
func (r *ChatRoomRepository) ListByParticipant(ctx context.Context, userID string) ([]model.ChatRoom, error) {
	query := `
		SELECT id, match_id, participants, type, created_at, updated_at
		FROM chat_rooms
		WHERE participants @> to_jsonb(ARRAY[$1::text])
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat rooms for %s: %w", userID, err)
	}
	defer rows.Close()

	var rooms []model.ChatRoom
	for rows.Next() {
		var room model.ChatRoom
		if err := rows.Scan(
			&room.ID, &room.MatchID, &room.Participants, &room.Type,
			&room.CreatedAt, &room.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
