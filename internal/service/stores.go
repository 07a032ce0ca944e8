// Package service contains the core business logic for commute matching:
// the matching-cycle lifecycle controller, accept/pass decision operations,
// and commute management. All persistence goes through the narrow store
// interfaces below so the engine-facing logic stays testable without a
// database.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/internal/routing"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrNotFound covers both a genuinely missing record and a record the
	// caller may not touch; the two are indistinguishable to avoid
	// enumeration.
	ErrNotFound = errors.New("not found")

	// ErrCycleBusy is returned when another matching cycle holds the lease.
	ErrCycleBusy = errors.New("a matching cycle is already running")

	// ErrInvalidInput marks payloads that violate the schema.
	ErrInvalidInput = errors.New("invalid input")
)

// ─── Store Interfaces ───────────────────────────────────────
//
// Get-style methods return (nil, nil) when the record does not exist;
// errors are reserved for store failures.

// UserStore reads and writes user profiles.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.UserProfile, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.UserProfile, error)
	Upsert(ctx context.Context, profile *model.UserProfile) error
}

// CommuteStore reads and writes commutes (1:1 with users).
type CommuteStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.Commute, error)
	// ListForSuggestions returns commutes with the suggestions flow enabled
	// whose preference admits the kind ("both" admits either).
	ListForSuggestions(ctx context.Context, kind model.MatchKind) ([]model.Commute, error)
	// ListQueued returns queued commutes with the queue flow enabled whose
	// preference admits the kind.
	ListQueued(ctx context.Context, kind model.MatchKind) ([]model.Commute, error)
	Upsert(ctx context.Context, commute *model.Commute) error
	// PauseQueue flips the given users' commutes to paused with the queue
	// flow disabled.
	PauseQueue(ctx context.Context, userIDs []string) error
}

// MatchStore reads and writes match documents.
type MatchStore interface {
	Get(ctx context.Context, id string) (*model.Match, error)
	Insert(ctx context.Context, match *model.Match) error
	Save(ctx context.Context, match *model.Match) error
	ListByStatus(ctx context.Context, status model.MatchStatus) ([]model.Match, error)
	ListBySourceKind(ctx context.Context, source model.MatchSource, kind model.MatchKind) ([]model.Match, error)
	ListQueueAssignedForDate(ctx context.Context, kind model.MatchKind, date time.Time) ([]model.Match, error)
}

// ChatRoomStore creates and lists chat rooms.
type ChatRoomStore interface {
	Insert(ctx context.Context, room *model.ChatRoom) error
	ListByParticipant(ctx context.Context, userID string) ([]model.ChatRoom, error)
}

// ─── Collaborator Interfaces ────────────────────────────────

// RoutePlanner turns an (origin, destination, departure, mode) question into
// a canonical route plan. Implemented by routing.Client.
type RoutePlanner interface {
	Configured() bool
	PlanRoute(ctx context.Context, req routing.PlanRequest) (*routing.Plan, error)
}

// CycleLock serializes matching-cycle execution. Implemented by
// cache.CycleLease; a nil lock means cycles run unguarded (tests,
// single-replica deployments without redis).
type CycleLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
