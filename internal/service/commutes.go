package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/internal/routing"
)

// ─── CommuteService ─────────────────────────────────────────

// CommuteService manages each user's single commute definition and its
// queue/suggestions participation flags.
type CommuteService struct {
	commutes CommuteStore
	planner  RoutePlanner
	now      func() time.Time
}

// NewCommuteService wires the commute service. planner may be nil when no
// trip planner is deployed; commutes must then carry client-supplied
// geometry.
func NewCommuteService(commutes CommuteStore, planner RoutePlanner) *CommuteService {
	return &CommuteService{commutes: commutes, planner: planner, now: time.Now}
}

// CommuteInput is the client payload for creating or replacing a commute.
// Route geometry is optional; when absent the trip planner fills it in.
type CommuteInput struct {
	Start            model.NamedPoint       `json:"start"`
	End              model.NamedPoint       `json:"end"`
	TimeWindow       model.TimeWindow       `json:"time_window"`
	TransportMode    model.TransportMode    `json:"transport_mode"`
	MatchPreference  model.MatchPreference  `json:"match_preference"`
	GroupSizePref    model.GroupSizePref    `json:"group_size_pref"`
	GenderPreference model.GenderPreference `json:"gender_preference"`
	EnableQueueFlow  bool                   `json:"enable_queue_flow"`
	QueueDaysOfWeek  []int                  `json:"queue_days_of_week"`
	RouteSegments    []model.RouteSegment   `json:"route_segments,omitempty"`
	RouteCoordinates []model.Location       `json:"route_coordinates,omitempty"`
}

// GetMine returns the caller's commute.
func (s *CommuteService) GetMine(ctx context.Context, userID string) (*model.Commute, error) {
	commute, err := s.commutes.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if commute == nil {
		return nil, ErrNotFound
	}
	return commute, nil
}

// CreateOrReplace validates the input, plans route geometry when none was
// supplied, and upserts the caller's commute. A replaced commute keeps
// nothing from its predecessor.
func (s *CommuteService) CreateOrReplace(ctx context.Context, userID string, input CommuteInput) (*model.Commute, error) {
	if err := validateCommuteInput(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	commute := &model.Commute{
		UserID:                userID,
		Start:                 input.Start,
		End:                   input.End,
		TimeWindow:            input.TimeWindow,
		TransportMode:         input.TransportMode,
		MatchPreference:       input.MatchPreference,
		GroupSizePref:         normalizeGroupSize(input.MatchPreference, input.GroupSizePref),
		GenderPreference:      input.GenderPreference,
		Status:                model.CommutePaused,
		EnableQueueFlow:       input.EnableQueueFlow,
		EnableSuggestionsFlow: true,
		QueueDaysOfWeek:       input.QueueDaysOfWeek,
		RouteSegments:         input.RouteSegments,
		RouteCoordinates:      input.RouteCoordinates,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if input.EnableQueueFlow {
		commute.Status = model.CommuteQueued
	}

	if len(commute.RouteCoordinates) == 0 && len(commute.RouteSegments) == 0 {
		if err := s.planGeometry(ctx, commute); err != nil {
			return nil, err
		}
	}

	if err := s.commutes.Upsert(ctx, commute); err != nil {
		return nil, err
	}
	return commute, nil
}

// planGeometry fills the commute's route from the trip planner. A missing
// planner leaves the commute without geometry; it then cannot match on
// route overlap until geometry is supplied.
func (s *CommuteService) planGeometry(ctx context.Context, commute *model.Commute) error {
	if s.planner == nil || !s.planner.Configured() {
		log.Printf("[commutes] no planner configured, storing commute for %s without geometry", commute.UserID)
		return nil
	}
	plan, err := s.planner.PlanRoute(ctx, routing.PlanRequest{
		From:      commute.Start.Location(),
		To:        commute.End.Location(),
		Departure: nextDeparture(s.now().UTC(), commute.TimeWindow.StartMinute),
		Mode:      commute.TransportMode,
	})
	if err != nil {
		return err
	}
	commute.RouteSegments = plan.Segments
	commute.RouteCoordinates = plan.Coordinates
	commute.TotalDurationMinutes = plan.DurationMinutes
	return nil
}

// nextDeparture returns the next occurrence of the given minute-of-day.
func nextDeparture(now time.Time, startMinute int) time.Time {
	departure := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		Add(time.Duration(startMinute) * time.Minute)
	if departure.Before(now) {
		departure = departure.AddDate(0, 0, 1)
	}
	return departure
}

// SetQueueEnabled flips queue-flow participation. Enabling also re-queues a
// paused commute; disabling pauses it.
func (s *CommuteService) SetQueueEnabled(ctx context.Context, userID string, enabled bool) (*model.Commute, error) {
	commute, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}
	commute.EnableQueueFlow = enabled
	if enabled {
		commute.Status = model.CommuteQueued
	} else {
		commute.Status = model.CommutePaused
	}
	commute.UpdatedAt = s.now().UTC()
	if err := s.commutes.Upsert(ctx, commute); err != nil {
		return nil, err
	}
	return commute, nil
}

// SetSuggestionsEnabled flips suggestions-flow participation.
func (s *CommuteService) SetSuggestionsEnabled(ctx context.Context, userID string, enabled bool) (*model.Commute, error) {
	commute, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}
	commute.EnableSuggestionsFlow = enabled
	commute.UpdatedAt = s.now().UTC()
	if err := s.commutes.Upsert(ctx, commute); err != nil {
		return nil, err
	}
	return commute, nil
}

// Pause takes the commute out of the queue without touching its flags, the
// same state a committed queue assignment leaves it in.
func (s *CommuteService) Pause(ctx context.Context, userID string) (*model.Commute, error) {
	commute, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}
	commute.Status = model.CommutePaused
	commute.UpdatedAt = s.now().UTC()
	if err := s.commutes.Upsert(ctx, commute); err != nil {
		return nil, err
	}
	return commute, nil
}

// ─── Validation ─────────────────────────────────────────────

func validateCommuteInput(input CommuteInput) error {
	switch input.TransportMode {
	case model.ModeWalk, model.ModeTransit:
	default:
		return fmt.Errorf("%w: transport_mode must be walk or transit", ErrInvalidInput)
	}
	switch input.MatchPreference {
	case model.PrefIndividual, model.PrefGroup, model.PrefBoth:
	default:
		return fmt.Errorf("%w: match_preference must be individual, group or both", ErrInvalidInput)
	}
	switch input.GenderPreference {
	case model.GenderAny, model.GenderSame:
	default:
		return fmt.Errorf("%w: gender_preference must be any or same", ErrInvalidInput)
	}

	window := input.TimeWindow
	if window.StartMinute < 0 || window.StartMinute > 1439 {
		return fmt.Errorf("%w: start_minute out of range", ErrInvalidInput)
	}
	if window.EndMinute < 1 || window.EndMinute > 1440 {
		return fmt.Errorf("%w: end_minute out of range", ErrInvalidInput)
	}
	if window.EndMinute <= window.StartMinute {
		return fmt.Errorf("%w: time window must end after it starts", ErrInvalidInput)
	}

	for _, day := range input.QueueDaysOfWeek {
		if day < 0 || day > 6 {
			return fmt.Errorf("%w: queue day of week out of range", ErrInvalidInput)
		}
	}
	return nil
}

// normalizeGroupSize clamps the group size preference to the bounds the
// selection algorithm operates over. A strictly individual commuter always
// reads as (2,2); group-capable commuters get Min >= 3 and Min <= Max <= 4.
func normalizeGroupSize(pref model.MatchPreference, size model.GroupSizePref) model.GroupSizePref {
	if pref == model.PrefIndividual {
		return model.GroupSizePref{Min: 2, Max: 2}
	}
	if size.Min < 3 {
		size.Min = 3
	}
	if size.Max < size.Min {
		size.Max = size.Min
	}
	if size.Max > 4 {
		size.Max = 4
	}
	if size.Min > 4 {
		size.Min = 4
	}
	return size
}
