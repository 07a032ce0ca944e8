package routing

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/meera/waymate/internal/model"
)

// ─── Raw Payload Shapes ─────────────────────────────────────

type rawRoute struct {
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
}

type rawGeometry struct {
	Points string `json:"points"`
}

type rawLeg struct {
	Mode        string          `json:"mode"`
	Duration    json.RawMessage `json:"duration"`
	Route       *rawRoute       `json:"route"`
	LegGeometry *rawGeometry    `json:"legGeometry"`
}

type rawPlanData struct {
	Plan struct {
		Edges []struct {
			Node struct {
				Legs []rawLeg `json:"legs"`
			} `json:"node"`
		} `json:"edges"`
		Itineraries []struct {
			Legs []rawLeg `json:"legs"`
		} `json:"itineraries"`
	} `json:"plan"`
}

// ─── Normalization ──────────────────────────────────────────

// normalizePlan converts either planner payload shape into a canonical Plan.
// Legs without geometry are dropped; a plan left with no usable segments or
// fewer than two coordinates is ErrNoRoute.
func normalizePlan(data json.RawMessage) (*Plan, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: response carried no plan data", ErrPlanner)
	}

	var raw rawPlanData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed plan payload", ErrPlanner)
	}

	legs := firstItineraryLegs(&raw)
	if len(legs) == 0 {
		return nil, ErrNoRoute
	}

	var (
		segments    []model.RouteSegment
		coordinates []model.Location
		totalMins   int
	)
	for _, leg := range legs {
		if leg.LegGeometry == nil || leg.LegGeometry.Points == "" {
			continue
		}
		points := DecodePolyline(leg.LegGeometry.Points)
		if len(points) < 2 {
			continue
		}

		segmentType := model.ModeTransit
		if strings.EqualFold(leg.Mode, "WALK") {
			segmentType = model.ModeWalk
		}

		var label, transitLine string
		if leg.Route != nil {
			if leg.Route.LongName != "" {
				label = leg.Route.LongName
			} else {
				label = leg.Route.ShortName
			}
			if segmentType == model.ModeTransit {
				transitLine = leg.Route.ShortName
			}
		}

		minutes := durationMinutes(leg.Duration)
		totalMins += minutes

		segments = append(segments, model.RouteSegment{
			Type:            segmentType,
			Coordinates:     points,
			Label:           label,
			TransitLine:     transitLine,
			DurationMinutes: minutes,
		})
		for _, point := range points {
			if n := len(coordinates); n > 0 && coordinates[n-1] == point {
				continue
			}
			coordinates = append(coordinates, point)
		}
	}

	if len(segments) == 0 || len(coordinates) < 2 {
		return nil, ErrNoRoute
	}

	return &Plan{
		Segments:        segments,
		Coordinates:     coordinates,
		DurationMinutes: totalMins,
	}, nil
}

// firstItineraryLegs picks the legs of the first itinerary, preferring the
// current edges shape over the legacy itineraries shape.
func firstItineraryLegs(raw *rawPlanData) []rawLeg {
	if len(raw.Plan.Edges) > 0 {
		return raw.Plan.Edges[0].Node.Legs
	}
	if len(raw.Plan.Itineraries) > 0 {
		return raw.Plan.Itineraries[0].Legs
	}
	return nil
}

// durationMinutes accepts the two duration encodings planners emit: a
// number of seconds, or an ISO-8601 duration string like "PT12M30S".
// Unparseable values degrade to zero.
func durationMinutes(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return int(math.Round(seconds / 60.0))
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0
	}
	if parsed, ok := parseISODurationSeconds(text); ok {
		return int(math.Round(parsed / 60.0))
	}
	if parsed, err := strconv.ParseFloat(text, 64); err == nil {
		return int(math.Round(parsed / 60.0))
	}
	return 0
}

// parseISODurationSeconds handles the PT#H#M#S subset planners use.
func parseISODurationSeconds(text string) (float64, bool) {
	text = strings.ToUpper(strings.TrimSpace(text))
	if !strings.HasPrefix(text, "PT") {
		return 0, false
	}
	rest := text[2:]
	if rest == "" {
		return 0, false
	}

	total := 0.0
	number := strings.Builder{}
	for _, r := range rest {
		switch {
		case (r >= '0' && r <= '9') || r == '.':
			number.WriteRune(r)
		case r == 'H' || r == 'M' || r == 'S':
			value, err := strconv.ParseFloat(number.String(), 64)
			if err != nil {
				return 0, false
			}
			switch r {
			case 'H':
				total += value * 3600
			case 'M':
				total += value * 60
			case 'S':
				total += value
			}
			number.Reset()
		default:
			return 0, false
		}
	}
	if number.Len() != 0 {
		return 0, false
	}
	return total, true
}
