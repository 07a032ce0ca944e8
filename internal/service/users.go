package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meera/waymate/internal/model"
)

// ─── UserService ────────────────────────────────────────────

// UserService manages user profiles. Identity comes from the auth gateway;
// this service only owns the matching-relevant profile fields.
type UserService struct {
	users UserStore
	now   func() time.Time
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users, now: time.Now}
}

// ProfileInput is the client payload for creating or updating a profile.
type ProfileInput struct {
	Name       string   `json:"name"`
	Occupation string   `json:"occupation"`
	Gender     string   `json:"gender"`
	Interests  []string `json:"interests"`
}

// GetProfile returns the caller's profile.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

// UpsertProfile creates or replaces the caller's profile. Interests are
// stored as given; matching normalizes them at comparison time.
func (s *UserService) UpsertProfile(ctx context.Context, userID string, input ProfileInput) (*model.UserProfile, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	profile := &model.UserProfile{
		ID:         userID,
		Name:       strings.TrimSpace(input.Name),
		Occupation: strings.TrimSpace(input.Occupation),
		Gender:     input.Gender,
		Interests:  input.Interests,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	} else if existing != nil {
		profile.CreatedAt = existing.CreatedAt
	}

	if err := s.users.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
