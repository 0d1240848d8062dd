package destination

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
)

// checkAndIncrLuaScript atomically checks the hourly and daily counters
// against the destination's limits and increments both when allowed.
// Without the script two concurrent senders could both pass the check
// and overshoot the limit.
const checkAndIncrLuaScript = `
local hourlyKey = KEYS[1]
local dailyKey = KEYS[2]
local hourlyLimit = tonumber(ARGV[1])
local dailyLimit = tonumber(ARGV[2])
local hourlyTTL = tonumber(ARGV[3])
local dailyTTL = tonumber(ARGV[4])

local hourlyCurrent = tonumber(redis.call("GET", hourlyKey) or "0")
local dailyCurrent = tonumber(redis.call("GET", dailyKey) or "0")

if hourlyLimit > 0 and hourlyCurrent + 1 > hourlyLimit then
    return {0, 1, hourlyCurrent, hourlyLimit}
end
if dailyLimit > 0 and dailyCurrent + 1 > dailyLimit then
    return {0, 2, dailyCurrent, dailyLimit}
end

local newHourly = redis.call("INCRBY", hourlyKey, 1)
if newHourly == 1 then
    redis.call("EXPIRE", hourlyKey, hourlyTTL)
end
local newDaily = redis.call("INCRBY", dailyKey, 1)
if newDaily == 1 then
    redis.call("EXPIRE", dailyKey, dailyTTL)
end

return {1, 0, newHourly, newDaily}
`

// RateLimiter enforces per-destination hourly/daily send caps in Redis
// so the caps hold across processes. A nil limiter allows everything.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	now    func() time.Time
}

// NewRateLimiter creates a limiter over the given Redis client. Returns
// nil when rdb is nil; call sites treat a nil limiter as unlimited.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	if rdb == nil {
		return nil
	}
	return &RateLimiter{
		rdb:    rdb,
		script: redis.NewScript(checkAndIncrLuaScript),
		now:    time.Now,
	}
}

// Allow reserves one send slot for the destination. It returns false
// with a reason when a cap is exhausted. A Redis outage allows the
// send: the caps protect vendor quotas, they are not a delivery
// guarantee, and a down Redis must not stall the queue.
func (l *RateLimiter) Allow(ctx context.Context, dest domain.Destination, cfg domain.DestinationConfig) (bool, string) {
	if l == nil {
		return true, ""
	}
	if cfg.RateLimitPerHour <= 0 && cfg.RateLimitPerDay <= 0 {
		return true, ""
	}

	now := l.now().UTC()
	hourlyKey := fmt.Sprintf("exportq:ratelimit:%s:h:%s", dest, now.Format("2006010215"))
	dailyKey := fmt.Sprintf("exportq:ratelimit:%s:d:%s", dest, now.Format("20060102"))

	res, err := l.script.Run(ctx, l.rdb,
		[]string{hourlyKey, dailyKey},
		cfg.RateLimitPerHour, cfg.RateLimitPerDay,
		int((2 * time.Hour).Seconds()), int((25 * time.Hour).Seconds()),
	).Slice()
	if err != nil {
		logger.Warn("rate limiter unavailable, allowing send", "destination", string(dest), "error", err.Error())
		return true, ""
	}
	if len(res) < 4 {
		return true, ""
	}

	allowed, _ := res[0].(int64)
	if allowed == 1 {
		return true, ""
	}
	reason, _ := res[1].(int64)
	current, _ := res[2].(int64)
	limit, _ := res[3].(int64)
	window := "hourly"
	if reason == 2 {
		window = "daily"
	}
	return false, fmt.Sprintf("%s rate limit reached for %s (%d/%d)", window, dest, current, limit)
}
