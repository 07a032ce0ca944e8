package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meera/waymate/internal/model"
)

// CommuteRepository provides database access for commutes (1:1 with users).
type CommuteRepository struct {
	pool *pgxpool.Pool
}

// NewCommuteRepository creates a new repository backed by the given PG pool.
func NewCommuteRepository(pool *pgxpool.Pool) *CommuteRepository {
	return &CommuteRepository{pool: pool}
}

const commuteColumns = `
	id, user_id, start_point, end_point, time_window,
	transport_mode, match_preference, group_size_pref, gender_preference,
	status, enable_queue_flow, enable_suggestions_flow, queue_days_of_week,
	route_segments, route_coordinates, total_duration_minutes,
	created_at, updated_at`

func scanCommute(row pgx.Row) (*model.Commute, error) {
	commute := &model.Commute{}
	err := row.Scan(
		&commute.ID, &commute.UserID, &commute.Start, &commute.End, &commute.TimeWindow,
		&commute.TransportMode, &commute.MatchPreference, &commute.GroupSizePref, &commute.GenderPreference,
		&commute.Status, &commute.EnableQueueFlow, &commute.EnableSuggestionsFlow, &commute.QueueDaysOfWeek,
		&commute.RouteSegments, &commute.RouteCoordinates, &commute.TotalDurationMinutes,
		&commute.CreatedAt, &commute.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return commute, nil
}

// GetByUserID fetches the user's commute.
func (r *CommuteRepository) GetByUserID(ctx context.Context, userID string) (*model.Commute, error) {
	query := `SELECT ` + commuteColumns + ` FROM commutes WHERE user_id = $1`

	commute, err := scanCommute(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get commute for %s: %w", userID, err)
	}
	return commute, nil
}

// ListForSuggestions returns commutes participating in the suggestions flow
// whose match preference admits the kind.
func (r *CommuteRepository) ListForSuggestions(ctx context.Context, kind model.MatchKind) ([]model.Commute, error) {
	query := `
		SELECT ` + commuteColumns + `
		FROM commutes
		WHERE enable_suggestions_flow
		  AND match_preference IN ($1, 'both')
		ORDER BY user_id
	`
	return r.listCommutes(ctx, query, kind)
}

// ListQueued returns queued commutes participating in the queue flow whose
// match preference admits the kind.
func (r *CommuteRepository) ListQueued(ctx context.Context, kind model.MatchKind) ([]model.Commute, error) {
	query := `
		SELECT ` + commuteColumns + `
		FROM commutes
		WHERE status = 'queued'
		  AND enable_queue_flow
		  AND match_preference IN ($1, 'both')
		ORDER BY user_id
	`
	return r.listCommutes(ctx, query, kind)
}

func (r *CommuteRepository) listCommutes(ctx context.Context, query string, args ...any) ([]model.Commute, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commutes: %w", err)
	}
	defer rows.Close()

	var commutes []model.Commute
	for rows.Next() {
		commute, err := scanCommute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commute: %w", err)
		}
		commutes = append(commutes, *commute)
	}
	return commutes, rows.Err()
}

// Upsert creates or replaces the user's commute. A replaced commute keeps
// its row id.
func (r *CommuteRepository) Upsert(ctx context.Context, commute *model.Commute) error {
	query := `
		INSERT INTO commutes (
			user_id, start_point, end_point, time_window,
			transport_mode, match_preference, group_size_pref, gender_preference,
			status, enable_queue_flow, enable_suggestions_flow, queue_days_of_week,
			route_segments, route_coordinates, total_duration_minutes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id) DO UPDATE SET
			start_point = EXCLUDED.start_point,
			end_point = EXCLUDED.end_point,
			time_window = EXCLUDED.time_window,
			transport_mode = EXCLUDED.transport_mode,
			match_preference = EXCLUDED.match_preference,
			group_size_pref = EXCLUDED.group_size_pref,
			gender_preference = EXCLUDED.gender_preference,
			status = EXCLUDED.status,
			enable_queue_flow = EXCLUDED.enable_queue_flow,
			enable_suggestions_flow = EXCLUDED.enable_suggestions_flow,
			queue_days_of_week = EXCLUDED.queue_days_of_week,
			route_segments = EXCLUDED.route_segments,
			route_coordinates = EXCLUDED.route_coordinates,
			total_duration_minutes = EXCLUDED.total_duration_minutes,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		commute.UserID, commute.Start, commute.End, commute.TimeWindow,
		commute.TransportMode, commute.MatchPreference, commute.GroupSizePref, commute.GenderPreference,
		commute.Status, commute.EnableQueueFlow, commute.EnableSuggestionsFlow, commute.QueueDaysOfWeek,
		commute.RouteSegments, commute.RouteCoordinates, commute.TotalDurationMinutes,
		commute.CreatedAt, commute.UpdatedAt,
	).Scan(&commute.ID)
	if err != nil {
		return fmt.Errorf("upsert commute for %s: %w", commute.UserID, err)
	}
	return nil
}

// PauseQueue flips the given users' commutes to paused with the queue flow
// disabled, the state a committed queue assignment leaves them in.
func (r *CommuteRepository) PauseQueue(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `
		UPDATE commutes
		SET status = 'paused', enable_queue_flow = FALSE, updated_at = NOW()
		WHERE user_id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, query, userIDs); err != nil {
		return fmt.Errorf("pause queue commutes: %w", err)
	}
	return nil
}
