// Package geo provides geographic primitives for commute matching.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// Route overlap is a pure point-proximity predicate: a point of one route is
// "shared" when some point of the other route lies within the tolerance.
package geo

import (
	"math"

	"github.com/meera/waymate/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

// EarthRadiusM is the mean radius of Earth in meters.
const EarthRadiusM = 6_371_000.0

// ─── Distance ───────────────────────────────────────────────

// HaversineM returns the great-circle distance between two points in meters.
//
// Complexity: O(1)
func HaversineM(a, b model.Location) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PolylineLengthM returns the total length of an ordered polyline in meters.
// Sequences of fewer than two points have zero length.
//
// Complexity: O(N)
func PolylineLengthM(points []model.Location) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineM(points[i-1], points[i])
	}
	return total
}

// ─── Route Overlap ──────────────────────────────────────────

// Overlap describes the shared portion of two routes: where the commuters
// meet, where they split, and how far they travel together.
type Overlap struct {
	MeetPoint  model.Location
	SplitPoint model.Location
	DistanceM  float64
}

// OverlapSegment extracts the shared portion of two routes. It collects the
// ordered subsequence of `left` whose points lie within toleranceM of some
// point of `right`; fewer than two matched points, or a zero-length matched
// polyline, means no overlap.
//
// Complexity: O(L × R). Acceptable at expected route sizes (a few hundred
// points); a grid index over `right` keyed by τ-sized cells would reduce it
// if routes grow.
func OverlapSegment(left, right []model.Location, toleranceM float64) (*Overlap, bool) {
	if len(left) == 0 || len(right) == 0 {
		return nil, false
	}

	var matched []model.Location
	for _, point := range left {
		for _, other := range right {
			if HaversineM(point, other) <= toleranceM {
				matched = append(matched, point)
				break
			}
		}
	}

	if len(matched) < 2 {
		return nil, false
	}

	distance := PolylineLengthM(matched)
	if distance <= 0 {
		return nil, false
	}

	return &Overlap{
		MeetPoint:  matched[0],
		SplitPoint: matched[len(matched)-1],
		DistanceM:  distance,
	}, true
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
