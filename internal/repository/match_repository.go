package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meera/waymate/internal/model"
)

// MatchRepository provides database access for match documents.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a new repository backed by the given PG pool.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

const matchColumns = `
	id, source, kind, status, participants, transport_mode,
	scores, compatibility_percent, shared_segment_start, shared_segment_end,
	estimated_time_minutes, decisions, chat_room_id, commute_date,
	created_at, updated_at`

func scanMatch(row pgx.Row) (*model.Match, error) {
	match := &model.Match{}
	var chatRoomID *string
	err := row.Scan(
		&match.ID, &match.Source, &match.Kind, &match.Status, &match.Participants, &match.TransportMode,
		&match.Scores, &match.CompatibilityPercent, &match.SharedSegmentStart, &match.SharedSegmentEnd,
		&match.EstimatedTimeMinutes, &match.Decisions, &chatRoomID, &match.CommuteDate,
		&match.CreatedAt, &match.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if chatRoomID != nil {
		match.ChatRoomID = *chatRoomID
	}
	return match, nil
}

// Get fetches a single match by id.
func (r *MatchRepository) Get(ctx context.Context, id string) (*model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match, err := scanMatch(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match %s: %w", id, err)
	}
	return match, nil
}

// Insert stores a new match and fills in its generated id.
func (r *MatchRepository) Insert(ctx context.Context, match *model.Match) error {
	query := `
		INSERT INTO matches (
			source, kind, status, participants, transport_mode,
			scores, compatibility_percent, shared_segment_start, shared_segment_end,
			estimated_time_minutes, decisions, chat_room_id, commute_date,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		match.Source, match.Kind, match.Status, match.Participants, match.TransportMode,
		match.Scores, match.CompatibilityPercent, match.SharedSegmentStart, match.SharedSegmentEnd,
		match.EstimatedTimeMinutes, match.Decisions, nullable(match.ChatRoomID), match.CommuteDate,
		match.CreatedAt, match.UpdatedAt,
	).Scan(&match.ID)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// Save writes back every mutable field of an existing match.
func (r *MatchRepository) Save(ctx context.Context, match *model.Match) error {
	query := `
		UPDATE matches
		SET source = $2, status = $3, decisions = $4, chat_room_id = $5,
		    commute_date = $6, updated_at = $7
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query,
		match.ID, match.Source, match.Status, match.Decisions,
		nullable(match.ChatRoomID), match.CommuteDate, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save match %s: %w", match.ID, err)
	}
	return nil
}

// ListByStatus returns all matches in the given lifecycle state.
func (r *MatchRepository) ListByStatus(ctx context.Context, status model.MatchStatus) ([]model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE status = $1 ORDER BY created_at`
	return r.listMatches(ctx, query, status)
}

// ListBySourceKind returns all matches of one source and kind regardless of
// status.
func (r *MatchRepository) ListBySourceKind(ctx context.Context, source model.MatchSource, kind model.MatchKind) ([]model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE source = $1 AND kind = $2 ORDER BY created_at`
	return r.listMatches(ctx, query, source, kind)
}

// ListQueueAssignedForDate returns queue assignments of one kind targeting a
// commute date.
func (r *MatchRepository) ListQueueAssignedForDate(ctx context.Context, kind model.MatchKind, date time.Time) ([]model.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE source = 'queue_assigned' AND kind = $1 AND commute_date = $2::date
		ORDER BY created_at
	`
	return r.listMatches(ctx, query, kind, date)
}

func (r *MatchRepository) listMatches(ctx context.Context, query string, args ...any) ([]model.Match, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *match)
	}
	return matches, rows.Err()
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
