// Package engine implements the pure matching core: pairwise eligibility,
// scoring, and greedy selection of non-conflicting pairs and group cliques.
//
// The engine is deterministic and has no I/O. It operates on a snapshot of
// commuters loaded by the service layer and returns candidates; everything
// about persistence, dedup and slot budgets happens above it.
package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/pkg/geo"
)

// ─── Inputs ─────────────────────────────────────────────────

// User is the engine's view of a profile.
type User struct {
	ID        string
	Gender    string
	Interests []string
}

// Commute is the engine's view of a commute.
type Commute struct {
	UserID           string
	TransportMode    model.TransportMode
	MatchPreference  model.MatchPreference
	GroupSizeMin     int
	GroupSizeMax     int
	GenderPreference model.GenderPreference
	StartMinute      int
	EndMinute        int
	Route            []model.Location
}

// Params are the algorithm thresholds and weights (config §algorithm).
type Params struct {
	MinTimeOverlapMinutes    int
	MinOverlapDistanceMeters float64
	OverlapToleranceMeters   float64
	OverlapWeight            float64
	InterestWeight           float64
	SharedMetersPerMinute    float64
}

// ─── Outputs ────────────────────────────────────────────────

// Scores holds the score components of a candidate, each in [0,1].
type Scores struct {
	Overlap   float64
	Interest  float64
	Composite float64
}

// Candidate is a selected match proposal: a disjoint pair or clique with its
// aggregate scores and shared-segment geometry.
type Candidate struct {
	Participants     []string
	Kind             model.MatchKind
	TransportMode    model.TransportMode
	Scores           Scores
	Overlap          geo.Overlap
	EstimatedMinutes int
}

// pairCompat is one edge of the compatibility graph.
type pairCompat struct {
	left             string
	right            string
	scores           Scores
	overlap          geo.Overlap
	mode             model.TransportMode
	estimatedMinutes int
}

// ─── Entry Point ────────────────────────────────────────────

// Run selects match candidates of the given kind from a snapshot.
//
// Users without a commute are dropped; commutes whose preference does not
// admit the kind ("both" admits either) are dropped. Fewer than two eligible
// users yields no candidates.
//
// Complexity: O(N²·L·R) for pair building; group selection additionally
// enumerates O(C(N,4)) member combinations, acceptable at expected scales
// (hundreds of users).
func Run(users []User, commutes []Commute, kind model.MatchKind, params Params) []Candidate {
	usersByID := make(map[string]User, len(users))
	for _, user := range users {
		usersByID[user.ID] = user
	}
	commutesByUser := make(map[string]Commute, len(commutes))
	for _, commute := range commutes {
		commutesByUser[commute.UserID] = commute
	}

	var eligible []string
	for _, user := range users {
		commute, ok := commutesByUser[user.ID]
		if !ok {
			continue
		}
		if !commute.MatchPreference.AllowsKind(kind) {
			continue
		}
		eligible = append(eligible, user.ID)
	}
	if len(eligible) < 2 {
		return nil
	}
	sort.Strings(eligible)

	pairs := buildPairCompatibilities(eligible, usersByID, commutesByUser, params)
	if len(pairs) == 0 {
		return nil
	}

	if kind == model.KindIndividual {
		return selectIndividual(pairs)
	}
	return selectGroups(pairs, eligible, commutesByUser)
}

// ─── Eligibility & Scoring ──────────────────────────────────

// buildPairCompatibilities evaluates every unordered pair against the hard
// filters, in order: transport mode, time window, gender preference, route
// overlap. A surviving pair gets its scores computed once.
func buildPairCompatibilities(
	userIDs []string,
	usersByID map[string]User,
	commutesByUser map[string]Commute,
	params Params,
) []pairCompat {
	var pairs []pairCompat

	for i := 0; i < len(userIDs); i++ {
		for j := i + 1; j < len(userIDs); j++ {
			leftID, rightID := userIDs[i], userIDs[j]
			leftCommute := commutesByUser[leftID]
			rightCommute := commutesByUser[rightID]

			if leftCommute.TransportMode != rightCommute.TransportMode {
				continue
			}
			if windowOverlapMinutes(leftCommute, rightCommute) < params.MinTimeOverlapMinutes {
				continue
			}
			if !genderCompatible(usersByID[leftID], leftCommute, usersByID[rightID], rightCommute) {
				continue
			}

			overlap, ok := geo.OverlapSegment(leftCommute.Route, rightCommute.Route, params.OverlapToleranceMeters)
			if !ok {
				continue
			}
			if overlap.DistanceM < params.MinOverlapDistanceMeters {
				continue
			}

			overlapScore := overlapRatio(overlap.DistanceM, leftCommute.Route, rightCommute.Route)
			interestScore := interestJaccard(usersByID[leftID], usersByID[rightID])
			composite := params.OverlapWeight*overlapScore + params.InterestWeight*interestScore

			metersPerMinute := math.Max(1.0, params.SharedMetersPerMinute)
			estimated := int(math.Round(overlap.DistanceM / metersPerMinute))
			if estimated < 1 {
				estimated = 1
			}

			pairs = append(pairs, pairCompat{
				left:  leftID,
				right: rightID,
				scores: Scores{
					Overlap:   overlapScore,
					Interest:  interestScore,
					Composite: composite,
				},
				overlap:          *overlap,
				mode:             leftCommute.TransportMode,
				estimatedMinutes: estimated,
			})
		}
	}
	return pairs
}

func windowOverlapMinutes(left, right Commute) int {
	start := left.StartMinute
	if right.StartMinute > start {
		start = right.StartMinute
	}
	end := left.EndMinute
	if right.EndMinute < end {
		end = right.EndMinute
	}
	if end < start {
		return 0
	}
	return end - start
}

func normalizeGender(gender string) string {
	return strings.ToLower(strings.TrimSpace(gender))
}

// genderCompatible: if either side insists on same gender, the normalized
// gender strings must be equal.
func genderCompatible(leftUser User, leftCommute Commute, rightUser User, rightCommute Commute) bool {
	if leftCommute.GenderPreference != model.GenderSame && rightCommute.GenderPreference != model.GenderSame {
		return true
	}
	return normalizeGender(leftUser.Gender) == normalizeGender(rightUser.Gender)
}

// overlapRatio measures the shared distance against the shorter of the two
// routes, capped at 1. A degenerate baseline scores zero.
func overlapRatio(overlapDistanceM float64, leftRoute, rightRoute []model.Location) float64 {
	baseline := math.Min(geo.PolylineLengthM(leftRoute), geo.PolylineLengthM(rightRoute))
	if baseline <= 0 {
		return 0
	}
	return math.Min(1.0, overlapDistanceM/baseline)
}

// interestJaccard computes |A ∩ B| / |A ∪ B| over trimmed, lower-cased,
// non-empty interest tokens. Two empty sets score zero.
func interestJaccard(left, right User) float64 {
	leftSet := interestSet(left.Interests)
	rightSet := interestSet(right.Interests)
	if len(leftSet) == 0 && len(rightSet) == 0 {
		return 0
	}

	union := make(map[string]struct{}, len(leftSet)+len(rightSet))
	intersection := 0
	for token := range leftSet {
		union[token] = struct{}{}
	}
	for token := range rightSet {
		if _, ok := leftSet[token]; ok {
			intersection++
		}
		union[token] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func interestSet(interests []string) map[string]struct{} {
	set := make(map[string]struct{}, len(interests))
	for _, interest := range interests {
		token := strings.ToLower(strings.TrimSpace(interest))
		if token == "" {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}

// ─── Individual Selection ───────────────────────────────────

// selectIndividual greedily accepts pairs in score order, consuming both
// users of each accepted pair. Ties break on the ascending sorted
// participant tuple so two runs over the same snapshot agree.
func selectIndividual(pairs []pairCompat) []Candidate {
	ordered := make([]pairCompat, len(pairs))
	copy(ordered, pairs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].scores.Composite != ordered[j].scores.Composite {
			return ordered[i].scores.Composite > ordered[j].scores.Composite
		}
		return lessParticipants(
			sortedPair(ordered[i].left, ordered[i].right),
			sortedPair(ordered[j].left, ordered[j].right),
		)
	})

	consumed := make(map[string]struct{})
	var selected []Candidate
	for _, pair := range ordered {
		if _, ok := consumed[pair.left]; ok {
			continue
		}
		if _, ok := consumed[pair.right]; ok {
			continue
		}
		consumed[pair.left] = struct{}{}
		consumed[pair.right] = struct{}{}
		selected = append(selected, Candidate{
			Participants:     []string{pair.left, pair.right},
			Kind:             model.KindIndividual,
			TransportMode:    pair.mode,
			Scores:           pair.scores,
			Overlap:          pair.overlap,
			EstimatedMinutes: pair.estimatedMinutes,
		})
	}
	return selected
}

// ─── Group Selection ────────────────────────────────────────

type pairKey struct{ a, b string }

func keyFor(left, right string) pairKey {
	if left < right {
		return pairKey{left, right}
	}
	return pairKey{right, left}
}

// selectGroups repeatedly picks the highest-scoring clique of size 4, then 3,
// among still-available users whose group size preferences admit the target
// size, until none remains.
func selectGroups(pairs []pairCompat, eligible []string, commutesByUser map[string]Commute) []Candidate {
	pairLookup := make(map[pairKey]pairCompat, len(pairs))
	for _, pair := range pairs {
		pairLookup[keyFor(pair.left, pair.right)] = pair
	}

	available := make(map[string]struct{}, len(eligible))
	for _, id := range eligible {
		available[id] = struct{}{}
	}

	var selected []Candidate
	for {
		best, ok := bestClique(available, pairLookup, commutesByUser)
		if !ok {
			break
		}
		selected = append(selected, best)
		for _, member := range best.Participants {
			delete(available, member)
		}
	}
	return selected
}

// bestClique scans sizes 4 then 3 and returns the highest mean-composite
// clique across both sizes, ties broken by ascending participant tuple.
func bestClique(
	available map[string]struct{},
	pairLookup map[pairKey]pairCompat,
	commutesByUser map[string]Commute,
) (Candidate, bool) {
	sorted := make([]string, 0, len(available))
	for id := range available {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var best Candidate
	found := false

	for _, targetSize := range []int{4, 3} {
		if len(sorted) < targetSize {
			continue
		}
		forEachCombination(sorted, targetSize, func(members []string) {
			for _, member := range members {
				commute := commutesByUser[member]
				if targetSize < commute.GroupSizeMin || targetSize > commute.GroupSizeMax {
					return
				}
			}
			if !isClique(members, pairLookup) {
				return
			}
			candidate := aggregateGroup(members, pairLookup)
			if !found ||
				candidate.Scores.Composite > best.Scores.Composite ||
				(candidate.Scores.Composite == best.Scores.Composite &&
					lessParticipants(candidate.Participants, best.Participants)) {
				best = candidate
				found = true
			}
		})
	}
	return best, found
}

func isClique(members []string, pairLookup map[pairKey]pairCompat) bool {
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if _, ok := pairLookup[keyFor(members[i], members[j])]; !ok {
				return false
			}
		}
	}
	return true
}

// aggregateGroup folds pairwise edges into a group candidate: arithmetic
// mean of each score component, the longest pairwise overlap as the shared
// geometry, and the mean of pairwise time estimates (min 1).
func aggregateGroup(members []string, pairLookup map[pairKey]pairCompat) Candidate {
	var (
		overlapSum, interestSum, compositeSum float64
		minutesSum                            int
		pairCount                             int
		longest                               geo.Overlap
		mode                                  model.TransportMode = model.ModeWalk
	)

	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pair := pairLookup[keyFor(members[i], members[j])]
			overlapSum += pair.scores.Overlap
			interestSum += pair.scores.Interest
			compositeSum += pair.scores.Composite
			minutesSum += pair.estimatedMinutes
			if pairCount == 0 || pair.overlap.DistanceM > longest.DistanceM {
				longest = pair.overlap
			}
			mode = pair.mode
			pairCount++
		}
	}

	n := float64(pairCount)
	minutes := int(math.Round(float64(minutesSum) / n))
	if minutes < 1 {
		minutes = 1
	}

	participants := make([]string, len(members))
	copy(participants, members)

	return Candidate{
		Participants:  participants,
		Kind:          model.KindGroup,
		TransportMode: mode,
		Scores: Scores{
			Overlap:   overlapSum / n,
			Interest:  interestSum / n,
			Composite: compositeSum / n,
		},
		Overlap:          longest,
		EstimatedMinutes: minutes,
	}
}

// forEachCombination visits every k-combination of the sorted slice in
// lexicographic order. The callback must not retain the slice.
func forEachCombination(sorted []string, k int, visit func(members []string)) {
	n := len(sorted)
	if k > n {
		return
	}
	indices := make([]int, k)
	for i := range indices {
		indices[i] = i
	}
	members := make([]string, k)
	for {
		for i, idx := range indices {
			members[i] = sorted[idx]
		}
		visit(members)

		// Advance to the next combination.
		i := k - 1
		for i >= 0 && indices[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		indices[i]++
		for j := i + 1; j < k; j++ {
			indices[j] = indices[j-1] + 1
		}
	}
}

// ─── Ordering Helpers ───────────────────────────────────────

func sortedPair(a, b string) []string {
	if a < b {
		return []string{a, b}
	}
	return []string{b, a}
}

// lessParticipants compares two already-sorted participant tuples
// lexicographically.
func lessParticipants(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
