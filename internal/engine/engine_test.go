package engine

import (
	"math"
	"reflect"
	"testing"

	"github.com/meera/waymate/internal/model"
)

func defaultParams() Params {
	return Params{
		MinTimeOverlapMinutes:    10,
		MinOverlapDistanceMeters: 250.0,
		OverlapToleranceMeters:   120.0,
		OverlapWeight:            0.7,
		InterestWeight:           0.3,
		SharedMetersPerMinute:    80.0,
	}
}

// downtownRoute is ~500 m long with ~160 m point spacing.
func downtownRoute() []model.Location {
	return []model.Location{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.7760, Lng: -122.4180},
		{Lat: 37.7770, Lng: -122.4170},
		{Lat: 37.7780, Lng: -122.4160},
	}
}

// oaklandRoute is tens of kilometers from downtownRoute.
func oaklandRoute() []model.Location {
	return []model.Location{
		{Lat: 37.8044, Lng: -122.2712},
		{Lat: 37.8055, Lng: -122.2700},
		{Lat: 37.8064, Lng: -122.2691},
		{Lat: 37.8072, Lng: -122.2680},
	}
}

func buildUser(id, gender string, interests ...string) User {
	return User{ID: id, Gender: gender, Interests: interests}
}

type commuteOpt func(*Commute)

func withPreference(pref model.MatchPreference, min, max int) commuteOpt {
	return func(c *Commute) {
		c.MatchPreference = pref
		c.GroupSizeMin = min
		c.GroupSizeMax = max
	}
}

func withGenderPref(pref model.GenderPreference) commuteOpt {
	return func(c *Commute) { c.GenderPreference = pref }
}

func withWindow(start, end int) commuteOpt {
	return func(c *Commute) { c.StartMinute = start; c.EndMinute = end }
}

func withMode(mode model.TransportMode) commuteOpt {
	return func(c *Commute) { c.TransportMode = mode }
}

func withRoute(route []model.Location) commuteOpt {
	return func(c *Commute) { c.Route = route }
}

func buildCommute(userID string, opts ...commuteOpt) Commute {
	commute := Commute{
		UserID:           userID,
		TransportMode:    model.ModeWalk,
		MatchPreference:  model.PrefIndividual,
		GroupSizeMin:     2,
		GroupSizeMax:     2,
		GenderPreference: model.GenderAny,
		StartMinute:      8 * 60,
		EndMinute:        9 * 60,
		Route:            downtownRoute(),
	}
	for _, opt := range opts {
		opt(&commute)
	}
	return commute
}

func participantSets(candidates []Candidate) []map[string]bool {
	var sets []map[string]bool
	for _, candidate := range candidates {
		set := make(map[string]bool)
		for _, id := range candidate.Participants {
			set[id] = true
		}
		sets = append(sets, set)
	}
	return sets
}

func TestIndividualMatchingRespectsHardConstraints(t *testing.T) {
	users := []User{
		buildUser("u1", "women", "music", "coffee", "hiking"),
		buildUser("u2", "women", "coffee", "movies", "reading"),
		buildUser("u3", "men", "coffee", "running", "music"),
	}
	commutes := []Commute{
		buildCommute("u1", withGenderPref(model.GenderSame)),
		buildCommute("u2"),
		buildCommute("u3", withRoute(oaklandRoute())),
	}

	results := Run(users, commutes, model.KindIndividual, defaultParams())

	if len(results) != 1 {
		t.Fatalf("got %d candidates, want 1", len(results))
	}
	got := participantSets(results)[0]
	if !got["u1"] || !got["u2"] || len(got) != 2 {
		t.Errorf("participants = %v, want {u1, u2}", results[0].Participants)
	}
	if results[0].Scores.Composite <= 0 {
		t.Errorf("composite score = %v, want > 0", results[0].Scores.Composite)
	}
}

func TestIndividualRejectsModeMismatch(t *testing.T) {
	users := []User{buildUser("u1", "women"), buildUser("u2", "women")}
	commutes := []Commute{
		buildCommute("u1", withMode(model.ModeWalk)),
		buildCommute("u2", withMode(model.ModeTransit)),
	}
	if results := Run(users, commutes, model.KindIndividual, defaultParams()); len(results) != 0 {
		t.Errorf("got %d candidates across transport modes, want 0", len(results))
	}
}

func TestNoMatchWhenTimeWindowsDisjoint(t *testing.T) {
	users := []User{buildUser("u1", "women"), buildUser("u2", "women")}
	commutes := []Commute{
		buildCommute("u1", withWindow(8*60, 8*60+20)),
		buildCommute("u2", withWindow(9*60, 9*60+20)),
	}
	if results := Run(users, commutes, model.KindIndividual, defaultParams()); len(results) != 0 {
		t.Errorf("got %d candidates for disjoint windows, want 0", len(results))
	}
}

func TestNoMatchBelowMinimumOverlapDistance(t *testing.T) {
	// A two-point route ~160 m long, below the 250 m threshold.
	short := downtownRoute()[:2]
	users := []User{buildUser("u1", "women"), buildUser("u2", "women")}
	commutes := []Commute{
		buildCommute("u1", withRoute(short)),
		buildCommute("u2", withRoute(short)),
	}
	if results := Run(users, commutes, model.KindIndividual, defaultParams()); len(results) != 0 {
		t.Errorf("got %d candidates below the distance threshold, want 0", len(results))
	}
}

func TestSameGenderPreferenceNormalizesStrings(t *testing.T) {
	users := []User{
		buildUser("u1", "  Women ", "coffee"),
		buildUser("u2", "women", "coffee"),
	}
	commutes := []Commute{
		buildCommute("u1", withGenderPref(model.GenderSame)),
		buildCommute("u2", withGenderPref(model.GenderSame)),
	}
	results := Run(users, commutes, model.KindIndividual, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d candidates, want 1 (gender compared trimmed+lowercased)", len(results))
	}
}

func TestScoreComponents(t *testing.T) {
	params := defaultParams()
	users := []User{
		buildUser("u1", "women", "coffee", "music", "hiking"),
		buildUser("u2", "women", "coffee", "movies"),
	}
	commutes := []Commute{buildCommute("u1"), buildCommute("u2")}

	results := Run(users, commutes, model.KindIndividual, params)
	if len(results) != 1 {
		t.Fatalf("got %d candidates, want 1", len(results))
	}

	scores := results[0].Scores
	// Identical routes: full overlap ratio.
	if math.Abs(scores.Overlap-1.0) > 1e-9 {
		t.Errorf("overlap score = %v, want 1.0", scores.Overlap)
	}
	// |{coffee}| / |{coffee, music, hiking, movies}| = 0.25.
	if math.Abs(scores.Interest-0.25) > 1e-9 {
		t.Errorf("interest score = %v, want 0.25", scores.Interest)
	}
	wantComposite := params.OverlapWeight*1.0 + params.InterestWeight*0.25
	if math.Abs(scores.Composite-wantComposite) > 1e-9 {
		t.Errorf("composite = %v, want %v", scores.Composite, wantComposite)
	}
	if results[0].EstimatedMinutes < 1 {
		t.Errorf("estimated minutes = %d, want >= 1", results[0].EstimatedMinutes)
	}
}

func TestEmptyInterestsScoreZero(t *testing.T) {
	users := []User{buildUser("u1", "women"), buildUser("u2", "women")}
	commutes := []Commute{buildCommute("u1"), buildCommute("u2")}

	results := Run(users, commutes, model.KindIndividual, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d candidates, want 1", len(results))
	}
	if results[0].Scores.Interest != 0 {
		t.Errorf("interest score = %v, want 0 for empty sets", results[0].Scores.Interest)
	}
}

func TestGreedySelectionKeepsPairsDisjoint(t *testing.T) {
	// Four mutually compatible users: greedy selection must produce two
	// disjoint pairs, the higher-interest pairing first.
	users := []User{
		buildUser("u1", "women", "coffee", "music"),
		buildUser("u2", "women", "coffee", "music"),
		buildUser("u3", "women", "reading"),
		buildUser("u4", "women", "reading"),
	}
	commutes := []Commute{
		buildCommute("u1"), buildCommute("u2"),
		buildCommute("u3"), buildCommute("u4"),
	}

	results := Run(users, commutes, model.KindIndividual, defaultParams())
	if len(results) != 2 {
		t.Fatalf("got %d candidates, want 2", len(results))
	}
	sets := participantSets(results)
	if !sets[0]["u1"] || !sets[0]["u2"] {
		t.Errorf("first pair = %v, want the higher-interest pair {u1, u2}", results[0].Participants)
	}
	if !sets[1]["u3"] || !sets[1]["u4"] {
		t.Errorf("second pair = %v, want {u3, u4}", results[1].Participants)
	}
	seen := make(map[string]bool)
	for _, set := range sets {
		for id := range set {
			if seen[id] {
				t.Fatalf("user %s appears in two candidates", id)
			}
			seen[id] = true
		}
	}
}

func TestTieBreakUsesAscendingParticipantTuple(t *testing.T) {
	// All four users identical, so every pair scores the same; the winner
	// must be the lexicographically smallest tuple.
	var users []User
	var commutes []Commute
	for _, id := range []string{"u4", "u2", "u3", "u1"} {
		users = append(users, buildUser(id, "women", "coffee"))
		commutes = append(commutes, buildCommute(id))
	}

	results := Run(users, commutes, model.KindIndividual, defaultParams())
	if len(results) != 2 {
		t.Fatalf("got %d candidates, want 2", len(results))
	}
	if !reflect.DeepEqual(results[0].Participants, []string{"u1", "u2"}) {
		t.Errorf("first pair = %v, want [u1 u2]", results[0].Participants)
	}
}

func TestBothPreferenceJoinsIndividualSelection(t *testing.T) {
	users := []User{buildUser("u1", "women", "coffee"), buildUser("u2", "women", "coffee")}
	commutes := []Commute{
		buildCommute("u1", withPreference(model.PrefBoth, 3, 4)),
		buildCommute("u2"),
	}
	results := Run(users, commutes, model.KindIndividual, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d candidates, want 1 (pref=both joins individual selection)", len(results))
	}
}

func TestGroupMatchingBuildsCliqueOfThree(t *testing.T) {
	users := []User{
		buildUser("u1", "women", "music", "coffee", "hiking"),
		buildUser("u2", "women", "coffee", "movies", "reading"),
		buildUser("u3", "women", "music", "running", "coffee"),
	}
	commutes := []Commute{
		buildCommute("u1", withPreference(model.PrefGroup, 3, 4)),
		buildCommute("u2", withPreference(model.PrefGroup, 3, 4)),
		buildCommute("u3", withPreference(model.PrefGroup, 3, 4)),
	}

	results := Run(users, commutes, model.KindGroup, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d group candidates, want 1", len(results))
	}
	if results[0].Kind != model.KindGroup {
		t.Errorf("kind = %s, want group", results[0].Kind)
	}
	if len(results[0].Participants) != 3 {
		t.Errorf("group size = %d, want 3 (no size-4 clique possible)", len(results[0].Participants))
	}
}

func TestGroupPrefersSizeFourWhenAvailable(t *testing.T) {
	var users []User
	var commutes []Commute
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		users = append(users, buildUser(id, "women", "coffee"))
		commutes = append(commutes, buildCommute(id, withPreference(model.PrefGroup, 3, 4)))
	}

	results := Run(users, commutes, model.KindGroup, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d group candidates, want 1", len(results))
	}
	if len(results[0].Participants) != 4 {
		t.Errorf("group size = %d, want 4", len(results[0].Participants))
	}
}

func TestGroupHonorsSizePreferenceBounds(t *testing.T) {
	// u4 refuses groups of four, so only a triple can form.
	var users []User
	var commutes []Commute
	for _, id := range []string{"u1", "u2", "u3"} {
		users = append(users, buildUser(id, "women", "coffee"))
		commutes = append(commutes, buildCommute(id, withPreference(model.PrefGroup, 3, 4)))
	}
	users = append(users, buildUser("u4", "women", "coffee"))
	commutes = append(commutes, buildCommute("u4", withPreference(model.PrefGroup, 3, 3)))

	results := Run(users, commutes, model.KindGroup, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d group candidates, want 1", len(results))
	}
	if len(results[0].Participants) != 3 {
		t.Errorf("group size = %d, want 3 (u4 caps at 3)", len(results[0].Participants))
	}
}

func TestGroupScoresAreMeanOfPairScores(t *testing.T) {
	users := []User{
		buildUser("u1", "women", "coffee"),
		buildUser("u2", "women", "coffee"),
		buildUser("u3", "women", "coffee"),
	}
	commutes := []Commute{
		buildCommute("u1", withPreference(model.PrefGroup, 3, 4)),
		buildCommute("u2", withPreference(model.PrefGroup, 3, 4)),
		buildCommute("u3", withPreference(model.PrefGroup, 3, 4)),
	}

	results := Run(users, commutes, model.KindGroup, defaultParams())
	if len(results) != 1 {
		t.Fatalf("got %d group candidates, want 1", len(results))
	}
	// Identical users and routes: every pair scores the same, so the mean
	// must equal the pair score (overlap 1.0, interest 1.0).
	scores := results[0].Scores
	if math.Abs(scores.Overlap-1.0) > 1e-9 || math.Abs(scores.Interest-1.0) > 1e-9 {
		t.Errorf("group scores = %+v, want overlap 1.0 and interest 1.0", scores)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	users := []User{
		buildUser("u5", "women", "coffee", "music"),
		buildUser("u2", "women", "coffee"),
		buildUser("u9", "women", "music"),
		buildUser("u1", "women", "coffee", "music"),
	}
	commutes := []Commute{
		buildCommute("u5"), buildCommute("u2"),
		buildCommute("u9"), buildCommute("u1"),
	}

	first := Run(users, commutes, model.KindIndividual, defaultParams())
	second := Run(users, commutes, model.KindIndividual, defaultParams())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over the same snapshot diverged:\n%+v\n%+v", first, second)
	}
}

func TestFewerThanTwoEligibleUsersYieldsNothing(t *testing.T) {
	users := []User{buildUser("u1", "women")}
	commutes := []Commute{buildCommute("u1")}
	if results := Run(users, commutes, model.KindIndividual, defaultParams()); results != nil {
		t.Errorf("got %v, want nil for a single user", results)
	}

	// Commute without a matching profile is dropped.
	commutes = append(commutes, buildCommute("ghost"))
	if results := Run(users, commutes, model.KindIndividual, defaultParams()); results != nil {
		t.Errorf("got %v, want nil when the second commute has no profile", results)
	}
}
