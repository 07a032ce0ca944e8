// Package model contains domain models for the commute matching system.
// These structs map to the PostgreSQL schema defined in migrations/001_create_schema.up.sql;
// nested documents (routes, scores, decisions) live in JSONB columns.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type TransportMode string

const (
	ModeWalk    TransportMode = "walk"
	ModeTransit TransportMode = "transit"
)

type MatchKind string

const (
	KindIndividual MatchKind = "individual"
	KindGroup      MatchKind = "group"
)

// MatchPreference is a commuter's declared appetite: strictly pairwise,
// strictly group, or open to both.
type MatchPreference string

const (
	PrefIndividual MatchPreference = "individual"
	PrefGroup      MatchPreference = "group"
	PrefBoth       MatchPreference = "both"
)

// AllowsKind reports whether the preference admits matches of the given kind.
func (p MatchPreference) AllowsKind(kind MatchKind) bool {
	return p == PrefBoth || string(p) == string(kind)
}

type GenderPreference string

const (
	GenderAny  GenderPreference = "any"
	GenderSame GenderPreference = "same"
)

type CommuteStatus string

const (
	CommuteQueued CommuteStatus = "queued"
	CommutePaused CommuteStatus = "paused"
)

type MatchSource string

const (
	SourceSuggested     MatchSource = "suggested"
	SourceQueueAssigned MatchSource = "queue_assigned"
)

type MatchStatus string

const (
	MatchSuggested MatchStatus = "suggested"
	MatchAssigned  MatchStatus = "assigned"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
)

type RoomType string

const (
	RoomDM    RoomType = "dm"
	RoomGroup RoomType = "group"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ─── Domain Models ──────────────────────────────────────────

// UserProfile maps to the `users` table. Gender is free text compared
// trimmed and lower-cased; interests are matched the same way.
type UserProfile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Occupation string    `json:"occupation"`
	Gender     string    `json:"gender"`
	Interests  []string  `json:"interests"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NamedPoint is a geographic point with a human-readable stop name.
type NamedPoint struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// Location returns the point without its name.
func (p NamedPoint) Location() Location {
	return Location{Lat: p.Lat, Lng: p.Lng}
}

// GroupSizePref bounds the group sizes a commuter will join.
// Invariants: individual preference normalizes to (2,2); group preference
// normalizes so that Min >= 3 and Min <= Max <= 4.
type GroupSizePref struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// TimeWindow is a daily departure window in minutes from midnight.
// 0 <= StartMinute <= 1439, 1 <= EndMinute <= 1440, EndMinute > StartMinute.
type TimeWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// RouteSegment is one leg of a planned route in canonical form: one shape
// regardless of which planner response variant produced it.
type RouteSegment struct {
	Type            TransportMode `json:"type"`
	Coordinates     []Location    `json:"coordinates"`
	Label           string        `json:"label,omitempty"`
	TransitLine     string        `json:"transit_line,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
}

// Commute maps to the `commutes` table (1:1 with a user profile).
type Commute struct {
	ID                    string           `json:"id"`
	UserID                string           `json:"user_id"`
	Start                 NamedPoint       `json:"start"`
	End                   NamedPoint       `json:"end"`
	TimeWindow            TimeWindow       `json:"time_window"`
	TransportMode         TransportMode    `json:"transport_mode"`
	MatchPreference       MatchPreference  `json:"match_preference"`
	GroupSizePref         GroupSizePref    `json:"group_size_pref"`
	GenderPreference      GenderPreference `json:"gender_preference"`
	Status                CommuteStatus    `json:"status"`
	EnableQueueFlow       bool             `json:"enable_queue_flow"`
	EnableSuggestionsFlow bool             `json:"enable_suggestions_flow"`
	QueueDaysOfWeek       []int            `json:"queue_days_of_week"`
	RouteSegments         []RouteSegment   `json:"route_segments"`
	RouteCoordinates      []Location       `json:"route_coordinates"`
	TotalDurationMinutes  int              `json:"total_duration_minutes,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// Route returns the commute's full coordinate sequence, falling back to the
// concatenated segment coordinates (deduplicating consecutive duplicates)
// when the flattened list was never stored.
func (c *Commute) Route() []Location {
	if len(c.RouteCoordinates) > 0 {
		return c.RouteCoordinates
	}
	var flattened []Location
	for _, segment := range c.RouteSegments {
		for _, point := range segment.Coordinates {
			if n := len(flattened); n > 0 && flattened[n-1] == point {
				continue
			}
			flattened = append(flattened, point)
		}
	}
	return flattened
}

// MatchScores holds the three score components, each in [0,1].
type MatchScores struct {
	OverlapScore   float64 `json:"overlap_score"`
	InterestScore  float64 `json:"interest_score"`
	CompositeScore float64 `json:"composite_score"`
}

// ParticipantDecision tracks one participant's accept/pass state on a match.
// Decisions exist 1:1 with participants.
type ParticipantDecision struct {
	UserID            string     `json:"user_id"`
	AcceptedAt        *time.Time `json:"accepted_at"`
	PassedAt          *time.Time `json:"passed_at"`
	PassCooldownUntil *time.Time `json:"pass_cooldown_until"`
}

// Match maps to the `matches` table. The matching engine owns its lifecycle:
// suggested → active (all accept), suggested → completed (pass with cooldown
// disabled), assigned → active (queue assignment commit).
type Match struct {
	ID                   string                `json:"id"`
	Source               MatchSource           `json:"source"`
	Kind                 MatchKind             `json:"kind"`
	Status               MatchStatus           `json:"status"`
	Participants         []string              `json:"participants"`
	TransportMode        TransportMode         `json:"transport_mode"`
	Scores               MatchScores           `json:"scores"`
	CompatibilityPercent int                   `json:"compatibility_percent"`
	SharedSegmentStart   NamedPoint            `json:"shared_segment_start"`
	SharedSegmentEnd     NamedPoint            `json:"shared_segment_end"`
	EstimatedTimeMinutes int                   `json:"estimated_time_minutes"`
	Decisions            []ParticipantDecision `json:"decisions"`
	ChatRoomID           string                `json:"chat_room_id,omitempty"`
	CommuteDate          *time.Time            `json:"commute_date,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// HasParticipant reports whether the user belongs to the match.
func (m *Match) HasParticipant(userID string) bool {
	for _, id := range m.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// Decision returns the decision entry for the given participant, or nil.
func (m *Match) Decision(userID string) *ParticipantDecision {
	for i := range m.Decisions {
		if m.Decisions[i].UserID == userID {
			return &m.Decisions[i]
		}
	}
	return nil
}

// SameParticipants reports whether the match covers exactly the given user
// set. Order is display-only; membership is what matters.
func (m *Match) SameParticipants(userIDs []string) bool {
	if len(m.Participants) != len(userIDs) {
		return false
	}
	members := make(map[string]struct{}, len(m.Participants))
	for _, id := range m.Participants {
		members[id] = struct{}{}
	}
	for _, id := range userIDs {
		if _, ok := members[id]; !ok {
			return false
		}
	}
	return true
}

// ChatRoom maps to the `chat_rooms` table. Rooms are created by the engine
// when a match activates: "dm" for pairs, "group" for three or more.
type ChatRoom struct {
	ID           string    `json:"id"`
	MatchID      string    `json:"match_id"`
	Participants []string  `json:"participants"`
	Type         RoomType  `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoomTypeFor returns the chat room type for a participant count.
func RoomTypeFor(participantCount int) RoomType {
	if participantCount > 2 {
		return RoomGroup
	}
	return RoomDM
}
