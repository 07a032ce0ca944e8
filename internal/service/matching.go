package service

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/meera/waymate/config"
	"github.com/meera/waymate/internal/engine"
	"github.com/meera/waymate/internal/model"
	"github.com/meera/waymate/pkg/geo"
)

// ─── MatchingService ────────────────────────────────────────

// MatchingService orchestrates matching cycles and owns the match document
// lifecycle.
//
// A cycle is a sequential pipeline per kind: load a snapshot, compute
// candidates in memory (pure, via the engine), then reconcile against
// persisted matches with per-candidate writes in score-descending order.
// Promotion writes precede fresh assignment writes. The cycle is not
// re-entrant on the same data, so a CycleLock serializes triggers; it can
// be aborted between writes and already-written matches stay well-formed.
type MatchingService struct {
	users    UserStore
	commutes CommuteStore
	matches  MatchStore
	rooms    ChatRoomStore
	lock     CycleLock

	algo             engine.Params
	passCooldownDays int
	queueDaysAhead   int

	now func() time.Time
}

// NewMatchingService wires the matching controller. lock may be nil.
func NewMatchingService(
	users UserStore,
	commutes CommuteStore,
	matches MatchStore,
	rooms ChatRoomStore,
	lock CycleLock,
	algoCfg config.AlgorithmConfig,
	svcCfg config.ServiceConfig,
) *MatchingService {
	return &MatchingService{
		users:    users,
		commutes: commutes,
		matches:  matches,
		rooms:    rooms,
		lock:     lock,
		algo: engine.Params{
			MinTimeOverlapMinutes:    algoCfg.MinTimeOverlapMinutes,
			MinOverlapDistanceMeters: algoCfg.MinOverlapDistanceMeters,
			OverlapToleranceMeters:   algoCfg.OverlapToleranceMeters,
			OverlapWeight:            algoCfg.OverlapWeight,
			InterestWeight:           algoCfg.InterestWeight,
			SharedMetersPerMinute:    algoCfg.SharedMetersPerMinute,
		},
		passCooldownDays: svcCfg.PassCooldownDays,
		queueDaysAhead:   svcCfg.QueueAssignmentDaysAhead,
		now:              time.Now,
	}
}

// CycleResult reports how many match documents each phase created or
// promoted.
type CycleResult struct {
	SuggestionsIndividual int `json:"suggestions_individual"`
	SuggestionsGroup      int `json:"suggestions_group"`
	AssignmentsIndividual int `json:"assignments_individual"`
	AssignmentsGroup      int `json:"assignments_group"`
}

// RunCycle executes one matching cycle: a suggestions phase for each kind
// and, when runQueue is set, a queue-assignment phase for each kind
// targeting today + QueueAssignmentDaysAhead.
func (s *MatchingService) RunCycle(ctx context.Context, runQueue bool) (*CycleResult, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrCycleBusy
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				log.Printf("[matching] cycle lease release failed: %v", err)
			}
		}()
	}

	result := &CycleResult{}
	var err error

	if result.SuggestionsIndividual, err = s.runSuggestionsForKind(ctx, model.KindIndividual); err != nil {
		return nil, err
	}
	if result.SuggestionsGroup, err = s.runSuggestionsForKind(ctx, model.KindGroup); err != nil {
		return nil, err
	}

	if runQueue {
		commuteDate := s.commuteDate()
		if result.AssignmentsIndividual, err = s.runQueueAssignmentsForKind(ctx, model.KindIndividual, commuteDate); err != nil {
			return nil, err
		}
		if result.AssignmentsGroup, err = s.runQueueAssignmentsForKind(ctx, model.KindGroup, commuteDate); err != nil {
			return nil, err
		}
	}

	log.Printf("[matching] cycle done: suggestions(ind=%d grp=%d) assignments(ind=%d grp=%d)",
		result.SuggestionsIndividual, result.SuggestionsGroup,
		result.AssignmentsIndividual, result.AssignmentsGroup)
	return result, nil
}

// commuteDate returns the UTC date (midnight) queue assignments target.
func (s *MatchingService) commuteDate() time.Time {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, s.queueDaysAhead)
}

// ─── Snapshot Loading ───────────────────────────────────────

// loadSnapshot joins commutes to profiles by owner and discards commutes
// without a matching profile.
func (s *MatchingService) loadSnapshot(ctx context.Context, commutes []model.Commute) ([]model.UserProfile, []model.Commute, error) {
	if len(commutes) == 0 {
		return nil, nil, nil
	}
	userIDs := make([]string, 0, len(commutes))
	for _, commute := range commutes {
		userIDs = append(userIDs, commute.UserID)
	}
	users, err := s.users.ListByIDs(ctx, userIDs)
	if err != nil {
		return nil, nil, err
	}
	usersByID := make(map[string]struct{}, len(users))
	for _, user := range users {
		usersByID[user.ID] = struct{}{}
	}
	joined := commutes[:0:0]
	for _, commute := range commutes {
		if _, ok := usersByID[commute.UserID]; ok {
			joined = append(joined, commute)
		}
	}
	return users, joined, nil
}

func toEngineInputs(users []model.UserProfile, commutes []model.Commute) ([]engine.User, []engine.Commute) {
	engineUsers := make([]engine.User, 0, len(users))
	for _, user := range users {
		engineUsers = append(engineUsers, engine.User{
			ID:        user.ID,
			Gender:    user.Gender,
			Interests: user.Interests,
		})
	}
	engineCommutes := make([]engine.Commute, 0, len(commutes))
	for _, commute := range commutes {
		engineCommutes = append(engineCommutes, engine.Commute{
			UserID:           commute.UserID,
			TransportMode:    commute.TransportMode,
			MatchPreference:  commute.MatchPreference,
			GroupSizeMin:     commute.GroupSizePref.Min,
			GroupSizeMax:     commute.GroupSizePref.Max,
			GenderPreference: commute.GenderPreference,
			StartMinute:      commute.TimeWindow.StartMinute,
			EndMinute:        commute.TimeWindow.EndMinute,
			Route:            commute.Route(),
		})
	}
	return engineUsers, engineCommutes
}

// ─── Suggestions Phase ──────────────────────────────────────

func (s *MatchingService) runSuggestionsForKind(ctx context.Context, kind model.MatchKind) (int, error) {
	eligible, err := s.commutes.ListForSuggestions(ctx, kind)
	if err != nil {
		return 0, err
	}
	users, commutes, err := s.loadSnapshot(ctx, eligible)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 || len(commutes) < 2 {
		return 0, nil
	}

	// Users already in an active match (any source, any kind) sit out.
	activeMatches, err := s.matches.ListByStatus(ctx, model.MatchActive)
	if err != nil {
		return 0, err
	}
	blocked := make(map[string]struct{})
	for _, match := range activeMatches {
		for _, userID := range match.Participants {
			blocked[userID] = struct{}{}
		}
	}
	users = filterUsers(users, blocked)
	commutes = filterCommutes(commutes, blocked)
	if len(users) < 2 || len(commutes) < 2 {
		return 0, nil
	}

	engineUsers, engineCommutes := toEngineInputs(users, commutes)
	candidates := engine.Run(engineUsers, engineCommutes, kind, s.algo)
	if len(candidates) == 0 {
		return 0, nil
	}

	existing, err := s.matches.ListBySourceKind(ctx, model.SourceSuggested, kind)
	if err != nil {
		return 0, err
	}
	openExisting := s.openSuggestions(existing)

	countByUser := make(map[string]int)
	for _, match := range openExisting {
		for _, userID := range match.Participants {
			countByUser[userID]++
		}
	}

	commutesByUser := commutesByUserID(commutes)

	// Per-user slot budget: one open group match; one open individual
	// match, or two for "both" users so they can hold an individual and a
	// group match at once.
	slotBudget := func(userID string) int {
		if kind != model.KindIndividual {
			return 1
		}
		commute, ok := commutesByUser[userID]
		if ok && commute.MatchPreference == model.PrefBoth {
			return 2
		}
		return 1
	}

	created := 0
	for _, candidate := range candidates {
		if hasMatchWithParticipants(openExisting, candidate.Participants) {
			continue
		}
		overBudget := false
		for _, userID := range candidate.Participants {
			if countByUser[userID] >= slotBudget(userID) {
				overBudget = true
				break
			}
		}
		if overBudget {
			continue
		}

		doc := s.candidateToMatch(candidate, model.SourceSuggested, model.MatchSuggested, commutesByUser, nil)
		if err := s.matches.Insert(ctx, doc); err != nil {
			return created, err
		}
		for _, userID := range candidate.Participants {
			countByUser[userID]++
		}
		created++
	}

	if created > 0 {
		log.Printf("[matching] %s suggestions: %d new from %d candidates", kind, created, len(candidates))
	}
	return created, nil
}

// openSuggestions filters suggested-source matches to the ones that still
// occupy a slot: status suggested or active, except that with cooldown
// disabled a suggested match anyone passed on is effectively terminal.
func (s *MatchingService) openSuggestions(matches []model.Match) []model.Match {
	var open []model.Match
	for _, match := range matches {
		if match.Status != model.MatchSuggested && match.Status != model.MatchActive {
			continue
		}
		if s.passCooldownDays <= 0 && match.Status == model.MatchSuggested && anyPassed(match.Decisions) {
			continue
		}
		open = append(open, match)
	}
	return open
}

// ─── Queue Assignment Phase ─────────────────────────────────

func (s *MatchingService) runQueueAssignmentsForKind(ctx context.Context, kind model.MatchKind, commuteDate time.Time) (int, error) {
	queued, err := s.commutes.ListQueued(ctx, kind)
	if err != nil {
		return 0, err
	}
	users, commutes, err := s.loadSnapshot(ctx, queued)
	if err != nil {
		return 0, err
	}
	if len(users) < 2 {
		return 0, nil
	}

	engineUsers, engineCommutes := toEngineInputs(users, commutes)
	candidates := engine.Run(engineUsers, engineCommutes, kind, s.algo)

	existingQueue, err := s.matches.ListQueueAssignedForDate(ctx, kind, commuteDate)
	if err != nil {
		return 0, err
	}
	suggestedAll, err := s.matches.ListBySourceKind(ctx, model.SourceSuggested, kind)
	if err != nil {
		return 0, err
	}
	queueAll, err := s.matches.ListBySourceKind(ctx, model.SourceQueueAssigned, kind)
	if err != nil {
		return 0, err
	}

	var existingSuggested []model.Match
	for _, match := range suggestedAll {
		if match.Status == model.MatchSuggested || match.Status == model.MatchActive {
			existingSuggested = append(existingSuggested, match)
		}
	}
	var existingActiveQueue []model.Match
	for _, match := range queueAll {
		if match.Status == model.MatchActive {
			existingActiveQueue = append(existingActiveQueue, match)
		}
	}

	// Anyone already held by an open queue match is off the table, whatever
	// that match's commute date.
	consumed := make(map[string]struct{})
	for _, match := range append(append([]model.Match{}, existingQueue...), existingActiveQueue...) {
		if !isOpenStatus(match.Status) {
			continue
		}
		for _, userID := range match.Participants {
			consumed[userID] = struct{}{}
		}
	}

	suggestedByParticipants := make(map[string]*model.Match, len(existingSuggested))
	for i := range existingSuggested {
		suggestedByParticipants[participantKey(existingSuggested[i].Participants)] = &existingSuggested[i]
	}

	queuedUsers := make(map[string]struct{}, len(queued))
	for _, commute := range queued {
		queuedUsers[commute.UserID] = struct{}{}
	}

	commutesByUser := commutesByUserID(commutes)
	created := 0

	// ── Promotion pass ──────────────────────────────────
	// Pending suggestions whose every participant is queued are committed
	// directly, best score first.
	var promotable []*model.Match
	for i := range existingSuggested {
		match := &existingSuggested[i]
		if match.Status != model.MatchSuggested {
			continue
		}
		allQueued := true
		for _, userID := range match.Participants {
			if _, ok := queuedUsers[userID]; !ok {
				allQueued = false
				break
			}
		}
		if allQueued {
			promotable = append(promotable, match)
		}
	}
	sort.SliceStable(promotable, func(i, j int) bool {
		return promotable[i].Scores.CompositeScore > promotable[j].Scores.CompositeScore
	})

	for _, suggestion := range promotable {
		if anyConsumed(suggestion.Participants, consumed) {
			continue
		}
		if err := s.promoteToQueueAssigned(ctx, suggestion, commuteDate); err != nil {
			return created, err
		}
		markConsumed(suggestion.Participants, consumed)
		created++
	}

	// ── Fresh assignment pass ───────────────────────────
	for _, candidate := range candidates {
		if suggestion, ok := suggestedByParticipants[participantKey(candidate.Participants)]; ok {
			// Source flips on promotion, so a suggestion the first pass
			// already committed is not promoted twice.
			if suggestion.Source == model.SourceSuggested &&
				(suggestion.Status == model.MatchSuggested || suggestion.Status == model.MatchActive) {
				if err := s.promoteToQueueAssigned(ctx, suggestion, commuteDate); err != nil {
					return created, err
				}
				markConsumed(candidate.Participants, consumed)
				created++
				continue
			}
		}

		if anyConsumed(candidate.Participants, consumed) {
			continue
		}
		if duplicate := openQueueMatchWithParticipants(existingQueue, candidate.Participants); duplicate {
			continue
		}

		doc := s.candidateToMatch(candidate, model.SourceQueueAssigned, model.MatchAssigned, commutesByUser, &commuteDate)
		if err := s.matches.Insert(ctx, doc); err != nil {
			return created, err
		}
		if err := s.activateWithRoom(ctx, doc); err != nil {
			return created, err
		}
		if err := s.commutes.PauseQueue(ctx, doc.Participants); err != nil {
			return created, err
		}
		markConsumed(candidate.Participants, consumed)
		created++
	}

	if created > 0 {
		log.Printf("[matching] %s queue assignments for %s: %d committed",
			kind, commuteDate.Format("2006-01-02"), created)
	}
	return created, nil
}

// promoteToQueueAssigned commits a pending suggestion as a queue
// assignment: all decisions force-accepted, a chat room ensured, source and
// status flipped, and every participant's commute paused.
func (s *MatchingService) promoteToQueueAssigned(ctx context.Context, suggestion *model.Match, commuteDate time.Time) error {
	now := s.now().UTC()
	for i := range suggestion.Decisions {
		suggestion.Decisions[i].AcceptedAt = &now
		suggestion.Decisions[i].PassedAt = nil
		suggestion.Decisions[i].PassCooldownUntil = nil
	}
	if suggestion.ChatRoomID == "" {
		roomID, err := s.createRoom(ctx, suggestion)
		if err != nil {
			return err
		}
		suggestion.ChatRoomID = roomID
	}
	suggestion.Source = model.SourceQueueAssigned
	suggestion.Status = model.MatchActive
	date := commuteDate
	suggestion.CommuteDate = &date
	suggestion.UpdatedAt = now
	if err := s.matches.Save(ctx, suggestion); err != nil {
		return err
	}
	return s.commutes.PauseQueue(ctx, suggestion.Participants)
}

// activateWithRoom creates the match's chat room and flips it active.
func (s *MatchingService) activateWithRoom(ctx context.Context, match *model.Match) error {
	roomID, err := s.createRoom(ctx, match)
	if err != nil {
		return err
	}
	match.ChatRoomID = roomID
	match.Status = model.MatchActive
	match.UpdatedAt = s.now().UTC()
	return s.matches.Save(ctx, match)
}

func (s *MatchingService) createRoom(ctx context.Context, match *model.Match) (string, error) {
	room := &model.ChatRoom{
		MatchID:      match.ID,
		Participants: match.Participants,
		Type:         model.RoomTypeFor(len(match.Participants)),
	}
	if err := s.rooms.Insert(ctx, room); err != nil {
		return "", err
	}
	return room.ID, nil
}

// ─── Candidate → Match Document ─────────────────────────────

func (s *MatchingService) candidateToMatch(
	candidate engine.Candidate,
	source model.MatchSource,
	status model.MatchStatus,
	commutesByUser map[string]model.Commute,
	commuteDate *time.Time,
) *model.Match {
	now := s.now().UTC()

	var participantCommutes []model.Commute
	for _, userID := range candidate.Participants {
		if commute, ok := commutesByUser[userID]; ok {
			participantCommutes = append(participantCommutes, commute)
		}
	}

	meet := candidate.Overlap.MeetPoint
	split := candidate.Overlap.SplitPoint
	meetName := nearestAnchorName(meet, participantCommutes)
	if meetName == "" {
		meetName = "Shared route start"
	}
	splitName := nearestAnchorName(split, participantCommutes)
	if splitName == "" {
		splitName = "Shared route end"
	}

	decisions := make([]model.ParticipantDecision, 0, len(candidate.Participants))
	for _, userID := range candidate.Participants {
		decisions = append(decisions, model.ParticipantDecision{UserID: userID})
	}

	var date *time.Time
	if commuteDate != nil {
		d := *commuteDate
		date = &d
	}

	return &model.Match{
		Source:        source,
		Kind:          candidate.Kind,
		Status:        status,
		Participants:  candidate.Participants,
		TransportMode: candidate.TransportMode,
		Scores: model.MatchScores{
			OverlapScore:   candidate.Scores.Overlap,
			InterestScore:  candidate.Scores.Interest,
			CompositeScore: candidate.Scores.Composite,
		},
		CompatibilityPercent: int(math.Round(candidate.Scores.Composite * 100)),
		SharedSegmentStart:   model.NamedPoint{Name: meetName, Lat: meet.Lat, Lng: meet.Lng},
		SharedSegmentEnd:     model.NamedPoint{Name: splitName, Lat: split.Lat, Lng: split.Lng},
		EstimatedTimeMinutes: candidate.EstimatedMinutes,
		Decisions:            decisions,
		CommuteDate:          date,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// ─── Point Naming ───────────────────────────────────────────

// anchorSearchRadiusM bounds how far a named stop may sit from the
// computed meet/split point before the generic fallback name is used.
const anchorSearchRadiusM = 400.0

// nearestAnchorName scans the participants' named anchors (commute start
// and end, plus the last coordinate of transit segments labelled
// "... to <destination>") and returns the nearest name within range, or "".
func nearestAnchorName(target model.Location, commutes []model.Commute) string {
	bestName := ""
	bestDistance := math.Inf(1)
	for _, commute := range commutes {
		for _, anchor := range namedAnchors(commute) {
			distance := geo.HaversineM(target, anchor.Location())
			if distance < bestDistance {
				bestDistance = distance
				bestName = anchor.Name
			}
		}
	}
	if bestName == "" || bestDistance > anchorSearchRadiusM {
		return ""
	}
	return bestName
}

func namedAnchors(commute model.Commute) []model.NamedPoint {
	anchors := []model.NamedPoint{commute.Start, commute.End}
	for _, segment := range commute.RouteSegments {
		destination := segmentDestinationName(segment.Label)
		if destination == "" || len(segment.Coordinates) == 0 {
			continue
		}
		last := segment.Coordinates[len(segment.Coordinates)-1]
		anchors = append(anchors, model.NamedPoint{Name: destination, Lat: last.Lat, Lng: last.Lng})
	}
	return anchors
}

// segmentDestinationName extracts "<destination>" from labels shaped like
// "... to <destination>" (case-insensitive). Plain walk segments carry no
// destination.
func segmentDestinationName(label string) string {
	text := strings.TrimSpace(label)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	if lower == "walk segment" {
		return ""
	}
	marker := strings.LastIndex(lower, " to ")
	if marker == -1 {
		return ""
	}
	return strings.TrimSpace(text[marker+len(" to "):])
}

// ─── Helpers ────────────────────────────────────────────────

func filterUsers(users []model.UserProfile, excluded map[string]struct{}) []model.UserProfile {
	kept := users[:0:0]
	for _, user := range users {
		if _, ok := excluded[user.ID]; !ok {
			kept = append(kept, user)
		}
	}
	return kept
}

func filterCommutes(commutes []model.Commute, excluded map[string]struct{}) []model.Commute {
	kept := commutes[:0:0]
	for _, commute := range commutes {
		if _, ok := excluded[commute.UserID]; !ok {
			kept = append(kept, commute)
		}
	}
	return kept
}

func commutesByUserID(commutes []model.Commute) map[string]model.Commute {
	byUser := make(map[string]model.Commute, len(commutes))
	for _, commute := range commutes {
		byUser[commute.UserID] = commute
	}
	return byUser
}

func anyPassed(decisions []model.ParticipantDecision) bool {
	for _, decision := range decisions {
		if decision.PassedAt != nil {
			return true
		}
	}
	return false
}

func isOpenStatus(status model.MatchStatus) bool {
	return status == model.MatchSuggested || status == model.MatchAssigned || status == model.MatchActive
}

func hasMatchWithParticipants(matches []model.Match, participants []string) bool {
	for i := range matches {
		if matches[i].SameParticipants(participants) {
			return true
		}
	}
	return false
}

func openQueueMatchWithParticipants(matches []model.Match, participants []string) bool {
	for i := range matches {
		if isOpenStatus(matches[i].Status) && matches[i].SameParticipants(participants) {
			return true
		}
	}
	return false
}

// participantKey builds an order-insensitive map key for a participant set.
func participantKey(participants []string) string {
	sorted := make([]string, len(participants))
	copy(sorted, participants)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

func anyConsumed(participants []string, consumed map[string]struct{}) bool {
	for _, userID := range participants {
		if _, ok := consumed[userID]; ok {
			return true
		}
	}
	return false
}

func markConsumed(participants []string, consumed map[string]struct{}) {
	for _, userID := range participants {
		consumed[userID] = struct{}{}
	}
}
