package service

import (
	"context"
	"log"
	"time"

	"github.com/meera/waymate/internal/model"
)

// ─── Accept / Pass ──────────────────────────────────────────

// Accept records the user's acceptance of a suggested match. Once every
// participant has accepted, the match activates and gets a chat room.
//
// Only suggested-source matches take decisions; queue assignments are
// committed on the participants' behalf. A missing match, a non-suggested
// source, or a non-participant caller all read as ErrNotFound.
func (s *MatchingService) Accept(ctx context.Context, matchID, userID string) (*model.Match, error) {
	match, err := s.decidableMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.Status != model.MatchSuggested {
		return match, nil
	}

	now := s.now().UTC()
	decision := match.Decision(userID)
	decision.AcceptedAt = &now
	decision.PassedAt = nil
	decision.PassCooldownUntil = nil

	if allAccepted(match.Decisions) {
		roomID, err := s.createRoom(ctx, match)
		if err != nil {
			return nil, err
		}
		match.ChatRoomID = roomID
		match.Status = model.MatchActive
		log.Printf("[matching] match %s activated by unanimous accept", match.ID)
	}

	match.UpdatedAt = now
	if err := s.matches.Save(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// Pass records the user's rejection of a suggested match. With a positive
// cooldown the suggestion is hidden from this user until the cooldown
// elapses; with cooldown disabled the whole suggestion completes
// immediately so the cycle can propose a fresh pairing.
func (s *MatchingService) Pass(ctx context.Context, matchID, userID string) (*model.Match, error) {
	match, err := s.decidableMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.Status != model.MatchSuggested {
		return match, nil
	}

	now := s.now().UTC()
	decision := match.Decision(userID)
	decision.PassedAt = &now
	decision.AcceptedAt = nil
	if s.passCooldownDays > 0 {
		until := now.AddDate(0, 0, s.passCooldownDays)
		decision.PassCooldownUntil = &until
	} else {
		decision.PassCooldownUntil = &now
		match.Status = model.MatchCompleted
	}

	match.UpdatedAt = now
	if err := s.matches.Save(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// decidableMatch loads a match the user may decide on. Missing, wrong
// source, and non-participant all collapse to ErrNotFound.
func (s *MatchingService) decidableMatch(ctx context.Context, matchID, userID string) (*model.Match, error) {
	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil || match.Source != model.SourceSuggested || !match.HasParticipant(userID) {
		return nil, ErrNotFound
	}
	if match.Decision(userID) == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

func allAccepted(decisions []model.ParticipantDecision) bool {
	for _, decision := range decisions {
		if decision.AcceptedAt == nil {
			return false
		}
	}
	return true
}

// ─── Listings ───────────────────────────────────────────────

// ListSuggestionsForUser returns the pending suggestions the user can still
// act on: not yet accepted by them, not hidden behind their pass cooldown.
func (s *MatchingService) ListSuggestionsForUser(ctx context.Context, userID string) ([]model.Match, error) {
	matches, err := s.listBySource(ctx, model.SourceSuggested)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var visible []model.Match
	for _, match := range matches {
		if match.Status != model.MatchSuggested || !match.HasParticipant(userID) {
			continue
		}
		decision := match.Decision(userID)
		if decision == nil || decision.AcceptedAt != nil {
			continue
		}
		if decision.PassCooldownUntil != nil && decision.PassCooldownUntil.After(now) {
			continue
		}
		if s.passCooldownDays <= 0 && decision.PassedAt != nil {
			continue
		}
		visible = append(visible, match)
	}
	return visible, nil
}

// ListActiveForUser returns the user's active matches across both sources.
func (s *MatchingService) ListActiveForUser(ctx context.Context, userID string) ([]model.Match, error) {
	matches, err := s.matches.ListByStatus(ctx, model.MatchActive)
	if err != nil {
		return nil, err
	}
	var mine []model.Match
	for _, match := range matches {
		if match.HasParticipant(userID) {
			mine = append(mine, match)
		}
	}
	return mine, nil
}

// ListAssignmentsForUser returns the user's queue assignments for a commute
// date. A zero date defaults to the date the next cycle would target.
func (s *MatchingService) ListAssignmentsForUser(ctx context.Context, userID string, date time.Time) ([]model.Match, error) {
	if date.IsZero() {
		date = s.commuteDate()
	}
	var mine []model.Match
	for _, kind := range []model.MatchKind{model.KindIndividual, model.KindGroup} {
		matches, err := s.matches.ListQueueAssignedForDate(ctx, kind, date)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if match.HasParticipant(userID) {
				mine = append(mine, match)
			}
		}
	}
	return mine, nil
}

func (s *MatchingService) listBySource(ctx context.Context, source model.MatchSource) ([]model.Match, error) {
	individual, err := s.matches.ListBySourceKind(ctx, source, model.KindIndividual)
	if err != nil {
		return nil, err
	}
	group, err := s.matches.ListBySourceKind(ctx, source, model.KindGroup)
	if err != nil {
		return nil, err
	}
	return append(individual, group...), nil
}

// ─── Chat Room Listing ──────────────────────────────────────

// ListRoomsForUser returns the chat rooms the user belongs to.
func (s *MatchingService) ListRoomsForUser(ctx context.Context, userID string) ([]model.ChatRoom, error) {
	return s.rooms.ListByParticipant(ctx, userID)
}
