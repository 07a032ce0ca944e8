package routing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meera/waymate/config"
	"github.com/meera/waymate/internal/model"
)

func TestDecodePolyline_KnownValue(t *testing.T) {
	// Reference example from the encoded polyline format docs.
	got := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	want := []model.Location{
		{Lat: 38.5, Lng: -120.2},
		{Lat: 40.7, Lng: -120.95},
		{Lat: 43.252, Lng: -126.453},
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d points, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i].Lat-want[i].Lat) > 1e-5 || math.Abs(got[i].Lng-want[i].Lng) > 1e-5 {
			t.Errorf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodePolyline_Empty(t *testing.T) {
	if got := DecodePolyline(""); got != nil {
		t.Errorf("DecodePolyline(\"\") = %v, want nil", got)
	}
}

const testPolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func edgesPayload() string {
	return `{
		"plan": {
			"edges": [{
				"node": {
					"legs": [
						{"mode": "WALK", "duration": 300, "legGeometry": {"points": "` + testPolyline + `"}},
						{"mode": "BUS", "duration": "PT10M30S",
						 "route": {"shortName": "38", "longName": "Geary Express to Ocean Beach"},
						 "legGeometry": {"points": "` + testPolyline + `"}}
					]
				}
			}]
		}
	}`
}

func itinerariesPayload() string {
	return `{
		"plan": {
			"itineraries": [{
				"legs": [
					{"mode": "WALK", "duration": 600, "legGeometry": {"points": "` + testPolyline + `"}}
				]
			}]
		}
	}`
}

func TestNormalizePlan_EdgesShape(t *testing.T) {
	plan, err := normalizePlan(json.RawMessage(edgesPayload()))
	if err != nil {
		t.Fatalf("normalizePlan: %v", err)
	}
	if len(plan.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(plan.Segments))
	}
	if plan.Segments[0].Type != model.ModeWalk || plan.Segments[1].Type != model.ModeTransit {
		t.Errorf("segment types = %s, %s; want walk, transit",
			plan.Segments[0].Type, plan.Segments[1].Type)
	}
	if plan.Segments[1].Label != "Geary Express to Ocean Beach" {
		t.Errorf("transit label = %q, want long name", plan.Segments[1].Label)
	}
	if plan.Segments[1].TransitLine != "38" {
		t.Errorf("transit line = %q, want \"38\"", plan.Segments[1].TransitLine)
	}
	// 300 s + PT10M30S → 5 + 11 (rounded) minutes.
	if plan.DurationMinutes != 16 {
		t.Errorf("duration = %d minutes, want 16", plan.DurationMinutes)
	}
	if len(plan.Coordinates) != 6 {
		t.Errorf("got %d coordinates, want 6 (segments concatenated)", len(plan.Coordinates))
	}
}

func TestNormalizePlan_ItinerariesShape(t *testing.T) {
	plan, err := normalizePlan(json.RawMessage(itinerariesPayload()))
	if err != nil {
		t.Fatalf("normalizePlan: %v", err)
	}
	if len(plan.Segments) != 1 || plan.Segments[0].Type != model.ModeWalk {
		t.Fatalf("segments = %+v, want one walk segment", plan.Segments)
	}
	if plan.DurationMinutes != 10 {
		t.Errorf("duration = %d minutes, want 10", plan.DurationMinutes)
	}
}

func TestNormalizePlan_NoUsableGeometry(t *testing.T) {
	payload := `{"plan": {"edges": [{"node": {"legs": [{"mode": "WALK", "duration": 60}]}}]}}`
	if _, err := normalizePlan(json.RawMessage(payload)); !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestNormalizePlan_EmptyPlan(t *testing.T) {
	if _, err := normalizePlan(json.RawMessage(`{"plan": {}}`)); !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestDurationMinutes(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`630`, 11},
		{`"PT10M30S"`, 11},
		{`"PT1H"`, 60},
		{`"120"`, 2},
		{`"bogus"`, 0},
		{``, 0},
	}
	for _, tc := range cases {
		if got := durationMinutes(json.RawMessage(tc.raw)); got != tc.want {
			t.Errorf("durationMinutes(%s) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func newTestClient(serverURL string) *Client {
	return NewClient(config.PlannerConfig{
		BaseURL:     serverURL,
		GraphQLPath: "/otp/routers/default/index/graphql",
		Timeout:     5 * time.Second,
	}, nil)
}

func planRequest() PlanRequest {
	return PlanRequest{
		From:      model.Location{Lat: 37.7749, Lng: -122.4194},
		To:        model.Location{Lat: 37.7780, Lng: -122.4160},
		Departure: time.Date(2025, 3, 10, 8, 15, 0, 0, time.UTC),
		Mode:      model.ModeTransit,
	}
}

func TestPlanRoute_CurrentShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": ` + edgesPayload() + `}`))
	}))
	defer server.Close()

	plan, err := newTestClient(server.URL).PlanRoute(context.Background(), planRequest())
	if err != nil {
		t.Fatalf("PlanRoute: %v", err)
	}
	if len(plan.Segments) != 2 {
		t.Errorf("got %d segments, want 2", len(plan.Segments))
	}
}

func TestPlanRoute_FallsBackToLegacyShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "itineraries") {
			w.Write([]byte(`{"data": ` + itinerariesPayload() + `}`))
			return
		}
		w.Write([]byte(`{"errors": [{"message": "unknown field edges"}]}`))
	}))
	defer server.Close()

	plan, err := newTestClient(server.URL).PlanRoute(context.Background(), planRequest())
	if err != nil {
		t.Fatalf("PlanRoute fallback: %v", err)
	}
	if len(plan.Segments) != 1 {
		t.Errorf("got %d segments, want 1 from the legacy shape", len(plan.Segments))
	}
}

func TestPlanRoute_GraphQLErrorsOnBothShapes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"message": "graph unavailable"}]}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).PlanRoute(context.Background(), planRequest()); !errors.Is(err, ErrPlanner) {
		t.Errorf("err = %v, want ErrPlanner", err)
	}
}

func TestPlanRoute_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).PlanRoute(context.Background(), planRequest()); !errors.Is(err, ErrPlanner) {
		t.Errorf("err = %v, want ErrPlanner", err)
	}
}

func TestPlanRoute_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).PlanRoute(context.Background(), planRequest()); !errors.Is(err, ErrPlanner) {
		t.Errorf("err = %v, want ErrPlanner", err)
	}
}

func TestPlanRoute_NotConfigured(t *testing.T) {
	client := NewClient(config.PlannerConfig{}, nil)
	if _, err := client.PlanRoute(context.Background(), planRequest()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
