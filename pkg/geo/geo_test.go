package geo

import (
	"math"
	"testing"

	"github.com/meera/waymate/internal/model"
)

func TestHaversineM_SamePoint(t *testing.T) {
	loc := model.Location{Lat: 37.7749, Lng: -122.4194}
	got := HaversineM(loc, loc)
	if got != 0 {
		t.Errorf("HaversineM(same point) = %v, want 0", got)
	}
}

func TestHaversineM_KnownDistance(t *testing.T) {
	// Ferry Building to Golden Gate Bridge (~8.3 km)
	ferry := model.Location{Lat: 37.7955, Lng: -122.3937}
	bridge := model.Location{Lat: 37.8199, Lng: -122.4783}
	got := HaversineM(ferry, bridge)
	wantMin, wantMax := 7000.0, 9500.0
	if got < wantMin || got > wantMax {
		t.Errorf("HaversineM(Ferry→Bridge) = %.0f m, want between %.0f and %.0f", got, wantMin, wantMax)
	}
}

func TestHaversineM_OneDegreeLatitude(t *testing.T) {
	// One degree of latitude ≈ 111.2 km everywhere.
	a := model.Location{Lat: 0, Lng: 0}
	b := model.Location{Lat: 1, Lng: 0}
	got := HaversineM(a, b)
	if math.Abs(got-111_195) > 500 {
		t.Errorf("HaversineM(1° lat) = %.0f m, want ≈111195", got)
	}
}

func TestPolylineLengthM(t *testing.T) {
	route := []model.Location{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.7760, Lng: -122.4180},
		{Lat: 37.7770, Lng: -122.4170},
	}
	got := PolylineLengthM(route)
	if got <= 0 {
		t.Errorf("PolylineLengthM = %v, want positive", got)
	}

	sum := HaversineM(route[0], route[1]) + HaversineM(route[1], route[2])
	if math.Abs(got-sum) > 1e-9 {
		t.Errorf("PolylineLengthM = %v, want sum of legs %v", got, sum)
	}
}

func TestPolylineLengthM_DegeneratePolylines(t *testing.T) {
	if got := PolylineLengthM(nil); got != 0 {
		t.Errorf("PolylineLengthM(nil) = %v, want 0", got)
	}
	if got := PolylineLengthM([]model.Location{{Lat: 1, Lng: 1}}); got != 0 {
		t.Errorf("PolylineLengthM(single point) = %v, want 0", got)
	}
}

func TestOverlapSegment_IdenticalRoutes(t *testing.T) {
	route := []model.Location{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.7760, Lng: -122.4180},
		{Lat: 37.7770, Lng: -122.4170},
		{Lat: 37.7780, Lng: -122.4160},
	}
	overlap, ok := OverlapSegment(route, route, 120)
	if !ok {
		t.Fatal("OverlapSegment(identical routes) = no overlap, want overlap")
	}
	if overlap.MeetPoint != route[0] {
		t.Errorf("MeetPoint = %v, want first point %v", overlap.MeetPoint, route[0])
	}
	if overlap.SplitPoint != route[3] {
		t.Errorf("SplitPoint = %v, want last point %v", overlap.SplitPoint, route[3])
	}
	want := PolylineLengthM(route)
	if math.Abs(overlap.DistanceM-want) > 1e-9 {
		t.Errorf("DistanceM = %v, want full length %v", overlap.DistanceM, want)
	}
}

func TestOverlapSegment_DisjointRoutes(t *testing.T) {
	left := []model.Location{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.7760, Lng: -122.4180},
	}
	// Across the bay, tens of kilometers away.
	right := []model.Location{
		{Lat: 37.8044, Lng: -122.2712},
		{Lat: 37.8055, Lng: -122.2700},
	}
	if _, ok := OverlapSegment(left, right, 120); ok {
		t.Error("OverlapSegment(disjoint routes) = overlap, want none")
	}
}

func TestOverlapSegment_PartialOverlap(t *testing.T) {
	// Left route's middle two points coincide with the right route; its
	// endpoints are far away.
	shared := []model.Location{
		{Lat: 37.7760, Lng: -122.4180},
		{Lat: 37.7770, Lng: -122.4170},
	}
	left := []model.Location{
		{Lat: 37.8044, Lng: -122.2712},
		shared[0],
		shared[1],
		{Lat: 37.8500, Lng: -122.3000},
	}
	overlap, ok := OverlapSegment(left, shared, 120)
	if !ok {
		t.Fatal("OverlapSegment(partial) = no overlap, want overlap")
	}
	if overlap.MeetPoint != shared[0] || overlap.SplitPoint != shared[1] {
		t.Errorf("overlap = %v..%v, want %v..%v",
			overlap.MeetPoint, overlap.SplitPoint, shared[0], shared[1])
	}
}

func TestOverlapSegment_SingleMatchedPoint(t *testing.T) {
	left := []model.Location{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.9000, Lng: -122.6000},
	}
	right := []model.Location{{Lat: 37.7749, Lng: -122.4194}}
	if _, ok := OverlapSegment(left, right, 120); ok {
		t.Error("OverlapSegment(one matched point) = overlap, want none")
	}
}

func TestOverlapSegment_ZeroLengthMatch(t *testing.T) {
	// Two matched points at the same coordinate give a zero-length polyline.
	point := model.Location{Lat: 37.7749, Lng: -122.4194}
	left := []model.Location{point, point}
	right := []model.Location{point}
	if _, ok := OverlapSegment(left, right, 120); ok {
		t.Error("OverlapSegment(zero-length match) = overlap, want none")
	}
}

func TestOverlapSegment_EmptyInputs(t *testing.T) {
	route := []model.Location{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}
	if _, ok := OverlapSegment(nil, route, 120); ok {
		t.Error("OverlapSegment(nil left) = overlap, want none")
	}
	if _, ok := OverlapSegment(route, nil, 120); ok {
		t.Error("OverlapSegment(nil right) = overlap, want none")
	}
}
