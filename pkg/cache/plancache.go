package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meera/waymate/internal/routing"
)

// planCacheTTL keeps planner responses warm across a commute-setup session
// without letting stale transit schedules linger.
const planCacheTTL = 10 * time.Minute

// PlanCache memoizes normalized planner responses in redis. All failures
// are treated as cache misses; the planner is the source of truth.
type PlanCache struct {
	client *redis.Client
}

// NewPlanCache creates a redis-backed plan cache.
func NewPlanCache(client *redis.Client) *PlanCache {
	return &PlanCache{client: client}
}

// GetPlan returns the cached plan for a key, if present.
func (c *PlanCache) GetPlan(ctx context.Context, key string) (*routing.Plan, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var plan routing.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false
	}
	return &plan, true
}

// SetPlan stores a plan; errors are fire-and-forget.
func (c *PlanCache) SetPlan(ctx context.Context, key string, plan *routing.Plan) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, planCacheTTL).Err()
}
