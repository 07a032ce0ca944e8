package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/internal/routing"
)

type fakePlanner struct {
	configured bool
	lastReq    routing.PlanRequest
	plan       *routing.Plan
	err        error
}

func (f *fakePlanner) Configured() bool { return f.configured }

func (f *fakePlanner) PlanRoute(_ context.Context, req routing.PlanRequest) (*routing.Plan, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func validInput() CommuteInput {
	return CommuteInput{
		Start:            model.NamedPoint{Name: "Embarcadero Station", Lat: 37.7749, Lng: -122.4194},
		End:              model.NamedPoint{Name: "Castro Station", Lat: 37.7829, Lng: -122.4194},
		TimeWindow:       model.TimeWindow{StartMinute: 480, EndMinute: 540},
		TransportMode:    model.ModeTransit,
		MatchPreference:  model.PrefIndividual,
		GenderPreference: model.GenderAny,
	}
}

func newCommuteService(planner RoutePlanner) (*CommuteService, *fakeCommuteStore) {
	store := newFakeCommuteStore()
	svc := NewCommuteService(store, planner)
	svc.now = func() time.Time { return fixedNow }
	return svc, store
}

func TestCreateOrReplace_PlansMissingGeometry(t *testing.T) {
	planner := &fakePlanner{
		configured: true,
		plan: &routing.Plan{
			Segments: []model.RouteSegment{
				{Type: model.ModeTransit, Coordinates: marketStreetRoute(), Label: "38 to Castro"},
			},
			Coordinates:     marketStreetRoute(),
			DurationMinutes: 12,
		},
	}
	svc, store := newCommuteService(planner)

	commute, err := svc.CreateOrReplace(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.Len(t, commute.RouteCoordinates, 5)
	assert.Equal(t, 12, commute.TotalDurationMinutes)
	assert.Equal(t, model.CommutePaused, commute.Status)

	// Departure snaps to the next occurrence of the window start. fixedNow
	// is 08:00 UTC; start minute 480 is 08:00, already passed once seconds
	// tick, so same-day 08:00 is kept only when not strictly before now.
	assert.Equal(t, time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC), planner.lastReq.Departure)
	assert.Equal(t, model.ModeTransit, planner.lastReq.Mode)

	stored := store.commutes["u1"]
	assert.Equal(t, "u1", stored.UserID)
	assert.True(t, stored.EnableSuggestionsFlow)
}

func TestCreateOrReplace_KeepsSuppliedGeometry(t *testing.T) {
	planner := &fakePlanner{configured: true, err: routing.ErrPlanner}
	svc, _ := newCommuteService(planner)

	input := validInput()
	input.RouteCoordinates = marketStreetRoute()

	commute, err := svc.CreateOrReplace(context.Background(), "u1", input)
	require.NoError(t, err, "planner is not consulted when geometry is supplied")
	assert.Len(t, commute.RouteCoordinates, 5)
}

func TestCreateOrReplace_PlannerFailurePropagates(t *testing.T) {
	planner := &fakePlanner{configured: true, err: routing.ErrNoRoute}
	svc, _ := newCommuteService(planner)

	_, err := svc.CreateOrReplace(context.Background(), "u1", validInput())
	assert.ErrorIs(t, err, routing.ErrNoRoute)
}

func TestCreateOrReplace_NoPlannerStoresWithoutGeometry(t *testing.T) {
	svc, store := newCommuteService(nil)

	commute, err := svc.CreateOrReplace(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.Empty(t, commute.RouteCoordinates)
	assert.NotEmpty(t, store.commutes["u1"].ID)
}

func TestCreateOrReplace_QueueFlowStartsQueued(t *testing.T) {
	svc, _ := newCommuteService(nil)
	input := validInput()
	input.EnableQueueFlow = true

	commute, err := svc.CreateOrReplace(context.Background(), "u1", input)
	require.NoError(t, err)
	assert.Equal(t, model.CommuteQueued, commute.Status)
}

func TestCreateOrReplace_Validation(t *testing.T) {
	svc, _ := newCommuteService(nil)

	cases := []struct {
		name   string
		mutate func(*CommuteInput)
	}{
		{"bad mode", func(in *CommuteInput) { in.TransportMode = "bike" }},
		{"bad preference", func(in *CommuteInput) { in.MatchPreference = "solo" }},
		{"bad gender preference", func(in *CommuteInput) { in.GenderPreference = "other" }},
		{"start minute too large", func(in *CommuteInput) { in.TimeWindow.StartMinute = 1440 }},
		{"end minute too large", func(in *CommuteInput) { in.TimeWindow.EndMinute = 1441 }},
		{"inverted window", func(in *CommuteInput) { in.TimeWindow = model.TimeWindow{StartMinute: 540, EndMinute: 480} }},
		{"empty window", func(in *CommuteInput) { in.TimeWindow = model.TimeWindow{StartMinute: 480, EndMinute: 480} }},
		{"bad queue day", func(in *CommuteInput) { in.QueueDaysOfWeek = []int{7} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, err := svc.CreateOrReplace(context.Background(), "u1", input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNormalizeGroupSize(t *testing.T) {
	cases := []struct {
		name string
		pref model.MatchPreference
		in   model.GroupSizePref
		want model.GroupSizePref
	}{
		{"individual always pairs", model.PrefIndividual, model.GroupSizePref{Min: 3, Max: 4}, model.GroupSizePref{Min: 2, Max: 2}},
		{"group floor", model.PrefGroup, model.GroupSizePref{Min: 2, Max: 2}, model.GroupSizePref{Min: 3, Max: 3}},
		{"group ceiling", model.PrefGroup, model.GroupSizePref{Min: 3, Max: 9}, model.GroupSizePref{Min: 3, Max: 4}},
		{"both uses group bounds", model.PrefBoth, model.GroupSizePref{}, model.GroupSizePref{Min: 3, Max: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeGroupSize(tc.pref, tc.in))
		})
	}
}

func TestSetQueueEnabled(t *testing.T) {
	svc, store := newCommuteService(nil)
	_, err := svc.CreateOrReplace(context.Background(), "u1", validInput())
	require.NoError(t, err)

	commute, err := svc.SetQueueEnabled(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.True(t, commute.EnableQueueFlow)
	assert.Equal(t, model.CommuteQueued, commute.Status)

	commute, err = svc.SetQueueEnabled(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.False(t, commute.EnableQueueFlow)
	assert.Equal(t, model.CommutePaused, store.commutes["u1"].Status)
}

func TestCommuteService_MissingCommute(t *testing.T) {
	svc, _ := newCommuteService(nil)

	_, err := svc.GetMine(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Pause(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
