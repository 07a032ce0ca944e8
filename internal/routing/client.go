// Package routing talks to an OpenTripPlanner instance over GraphQL and
// normalizes its plans into one canonical shape: typed segments with decoded
// polylines and integer-minute durations. Downstream code never sees the raw
// planner payload.
//
// OTP deployments answer one of two plan shapes: the current API
// (plan -> edges -> node -> legs) and the legacy one (plan -> itineraries ->
// legs). The client issues the current query first and falls back to the
// legacy query when the server rejects it with GraphQL errors.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/meera/waymate/config"
	"github.com/meera/waymate/internal/model"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrPlanner marks upstream failures: unreachable planner, non-JSON
	// payloads, HTTP errors, GraphQL errors on both query shapes.
	ErrPlanner = errors.New("route planner request failed")

	// ErrNoRoute is returned when the planner answered but produced no
	// usable geometry or duration.
	ErrNoRoute = errors.New("route planner returned no usable route")

	// ErrNotConfigured is returned when no planner base URL is set.
	ErrNotConfigured = errors.New("route planner is not configured")
)

// ─── Types ──────────────────────────────────────────────────

// PlanRequest describes one routing question.
type PlanRequest struct {
	From      model.Location
	To        model.Location
	Departure time.Time
	Mode      model.TransportMode
}

// Plan is the canonical planner result.
type Plan struct {
	Segments        []model.RouteSegment `json:"segments"`
	Coordinates     []model.Location     `json:"coordinates"`
	DurationMinutes int                  `json:"duration_minutes"`
}

// PlanCache memoizes planner responses keyed by (origin, dest,
// departure-minute, mode). Purely an optimization: cache failures are
// swallowed and the planner is asked again.
type PlanCache interface {
	GetPlan(ctx context.Context, key string) (*Plan, bool)
	SetPlan(ctx context.Context, key string, plan *Plan)
}

// Client is an OTP GraphQL client.
type Client struct {
	endpoint string
	http     *http.Client
	cache    PlanCache
}

// NewClient builds a planner client. cache may be nil.
func NewClient(cfg config.PlannerConfig, cache PlanCache) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	path := cfg.GraphQLPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	endpoint := ""
	if base != "" {
		endpoint = base + path
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
	}
}

// Configured reports whether a planner endpoint is set.
func (c *Client) Configured() bool { return c.endpoint != "" }

// ─── Planning ───────────────────────────────────────────────

// PlanRoute asks the planner for a route and returns it in canonical form.
func (c *Client) PlanRoute(ctx context.Context, req PlanRequest) (*Plan, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	key := cacheKey(req)
	if c.cache != nil {
		if plan, ok := c.cache.GetPlan(ctx, key); ok {
			return plan, nil
		}
	}

	response, err := c.postGraphQL(ctx, buildPlanQueryV2(req))
	if err != nil {
		return nil, err
	}
	if len(response.Errors) > 0 {
		log.Printf("[routing] v2 plan query rejected (%d errors), retrying legacy shape", len(response.Errors))
		response, err = c.postGraphQL(ctx, buildPlanQueryV1(req))
		if err != nil {
			return nil, err
		}
		if len(response.Errors) > 0 {
			return nil, fmt.Errorf("%w: GraphQL errors: %s", ErrPlanner, response.Errors[0].Message)
		}
	}

	plan, err := normalizePlan(response.Data)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.SetPlan(ctx, key, plan)
	}
	return plan, nil
}

func cacheKey(req PlanRequest) string {
	departureMinute := req.Departure.Hour()*60 + req.Departure.Minute()
	return fmt.Sprintf("plan:%.5f,%.5f:%.5f,%.5f:%d:%s",
		req.From.Lat, req.From.Lng, req.To.Lat, req.To.Lng, departureMinute, req.Mode)
}

// ─── Transport ──────────────────────────────────────────────

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (c *Client) postGraphQL(ctx context.Context, query string) (*graphQLResponse, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrPlanner, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrPlanner, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanner, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrPlanner, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := string(raw)
		if len(detail) > 300 {
			detail = detail[:300]
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrPlanner, resp.StatusCode, detail)
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: non-JSON response", ErrPlanner)
	}
	return &parsed, nil
}

// ─── Query Builders ─────────────────────────────────────────

func modeBlockV2(mode model.TransportMode) string {
	if mode == model.ModeWalk {
		return "direct: [WALK]"
	}
	return "direct: [WALK]\n      transit: { transit: [{ mode: BUS }, { mode: RAIL }, { mode: TRAM }] }"
}

func buildPlanQueryV2(req PlanRequest) string {
	return fmt.Sprintf(`{
  plan(
    from: { location: { coordinate: { latitude: %f, longitude: %f } } }
    to: { location: { coordinate: { latitude: %f, longitude: %f } } }
    dateTime: { earliestDeparture: %q }
    modes: {
      %s
    }
  ) {
    edges {
      node {
        legs {
          mode
          duration
          route { longName shortName }
          legGeometry { points }
        }
      }
    }
  }
}`,
		req.From.Lat, req.From.Lng,
		req.To.Lat, req.To.Lng,
		req.Departure.Format(time.RFC3339),
		modeBlockV2(req.Mode),
	)
}

func modeBlockV1(mode model.TransportMode) string {
	if mode == model.ModeWalk {
		return "{ mode: WALK }"
	}
	return "{ mode: WALK }, { mode: TRANSIT }"
}

func buildPlanQueryV1(req PlanRequest) string {
	date := req.Departure.Format("2006-01-02")
	clock := strings.ToLower(req.Departure.Format("3:04PM"))
	return fmt.Sprintf(`{
  plan(
    from: { lat: %f, lon: %f }
    to: { lat: %f, lon: %f }
    date: %q
    time: %q
    numItineraries: 1
    transportModes: [%s]
  ) {
    itineraries {
      duration
      legs {
        mode
        duration
        route { longName shortName }
        legGeometry { points }
      }
    }
  }
}`,
		req.From.Lat, req.From.Lng,
		req.To.Lat, req.To.Lng,
		date, clock,
		modeBlockV1(req.Mode),
	)
}
