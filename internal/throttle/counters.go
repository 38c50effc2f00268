package throttle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-core/internal/domain"
)

// Denial codes returned by the claim script.
const (
	denyNone   = 0
	denyDaily  = 1
	denyHourly = 2
	denyBurst  = 3
)

// Lua script for the atomic claim gate. All limits are checked BEFORE any
// counter is incremented, so a denied claim leaves the counters untouched.
// GET → check → INCR from Go would race under concurrent workers.
const claimLuaScript = `
local dayKey = KEYS[1]
local hourKey = KEYS[2]
local burstKey = KEYS[3]
local lastKey = KEYS[4]
local dayLimit = tonumber(ARGV[1])
local hourLimit = tonumber(ARGV[2])
local burstLimit = tonumber(ARGV[3])
local dayTTL = tonumber(ARGV[4])
local hourTTL = tonumber(ARGV[5])
local burstTTL = tonumber(ARGV[6])
local nowUnix = ARGV[7]

local dayCurrent = tonumber(redis.call("GET", dayKey) or "0")
local hourCurrent = tonumber(redis.call("GET", hourKey) or "0")
local burstCurrent = tonumber(redis.call("GET", burstKey) or "0")

if dayLimit > 0 and dayCurrent + 1 > dayLimit then
    return {0, 1, dayCurrent}
end
if hourLimit > 0 and hourCurrent + 1 > hourLimit then
    return {0, 2, hourCurrent}
end
if burstLimit > 0 and burstCurrent + 1 > burstLimit then
    return {0, 3, burstCurrent}
end

local newDay = redis.call("INCR", dayKey)
if newDay == 1 then
    redis.call("EXPIRE", dayKey, dayTTL)
end

local newHour = redis.call("INCR", hourKey)
if newHour == 1 then
    redis.call("EXPIRE", hourKey, hourTTL)
end

local newBurst = redis.call("INCR", burstKey)
if newBurst == 1 then
    redis.call("EXPIRE", burstKey, burstTTL)
end

redis.call("SET", lastKey, nowUnix, "EX", dayTTL)

return {1, 0, newDay}
`

// ClaimResult is the outcome of one atomic counter claim.
type ClaimResult struct {
	Allowed bool
	Reason  string
	// Current is the counter value that caused the denial, or the new
	// daily count on an allowed claim.
	Current int64
}

// CounterStore tracks per-mailbox send counters in Redis. Keys are bucketed
// by hour and by date so they expire on their own; there is no reset job.
type CounterStore struct {
	redis *redis.Client

	claimScript *redis.Script
}

// NewCounterStore creates a counter store with pre-compiled Lua scripts.
func NewCounterStore(redisClient *redis.Client) *CounterStore {
	return &CounterStore{
		redis:       redisClient,
		claimScript: redis.NewScript(claimLuaScript),
	}
}

// Client exposes the underlying Redis connection so singleton jobs can
// share it for distributed locking.
func (c *CounterStore) Client() *redis.Client {
	return c.redis
}

// NewCounterStoreFromURL connects to Redis and returns a counter store.
func NewCounterStoreFromURL(redisURL string) (*CounterStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[CounterStore] Connected to Redis")

	return NewCounterStore(client), nil
}

func dayKey(mailboxID string, now time.Time) string {
	return fmt.Sprintf("send:%s:day:%s", mailboxID, now.Format("2006-01-02"))
}

func hourKey(mailboxID string, now time.Time) string {
	return fmt.Sprintf("send:%s:hour:%s", mailboxID, now.Format("2006010215"))
}

func burstKey(mailboxID string, now time.Time, windowSeconds int) string {
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	return fmt.Sprintf("send:%s:burst:%d", mailboxID, now.Unix()/int64(windowSeconds))
}

func lastSentKey(mailboxID string) string {
	return fmt.Sprintf("send:%s:last", mailboxID)
}

// Claim atomically reserves one send slot for the mailbox. A denied claim
// increments nothing. Counters are consumed at claim time, before the send
// attempt; a slot that never reaches the wire is handed back via Release.
func (c *CounterStore) Claim(ctx context.Context, mailboxID string, cfg domain.ThrottleConfig, now time.Time) (ClaimResult, error) {
	result, err := c.claimScript.Run(ctx, c.redis,
		[]string{
			dayKey(mailboxID, now),
			hourKey(mailboxID, now),
			burstKey(mailboxID, now, cfg.BurstWindowSeconds),
			lastSentKey(mailboxID),
		},
		cfg.MaxPerDay,
		cfg.MaxPerHour,
		cfg.BurstLimit,
		90000, // daily TTL (25 hours)
		3700,  // hourly TTL
		burstTTL(cfg.BurstWindowSeconds),
		now.Unix(),
	).Slice()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("counter claim failed: %w", err)
	}

	allowed := result[0].(int64) == 1
	denial := result[1].(int64)
	current := result[2].(int64)

	return ClaimResult{
		Allowed: allowed,
		Reason:  denialReason(denial),
		Current: current,
	}, nil
}

func burstTTL(windowSeconds int) int {
	if windowSeconds <= 0 {
		return 2
	}
	// One extra window so a bucket never expires mid-check.
	return windowSeconds * 2
}

func denialReason(code int64) string {
	switch code {
	case denyDaily:
		return ReasonDailyLimit
	case denyHourly:
		return ReasonHourlyLimit
	case denyBurst:
		return "burst_limit_reached"
	default:
		return ""
	}
}

// Release refunds one previously claimed slot after a send that never made
// it onto the wire. The day, hour, and burst counters are decremented. The
// last-sent marker stays: the attempt did reach the provider, so
// min-spacing still paces the retry.
func (c *CounterStore) Release(ctx context.Context, mailboxID string, cfg domain.ThrottleConfig, now time.Time) error {
	pipe := c.redis.Pipeline()
	pipe.Decr(ctx, dayKey(mailboxID, now))
	pipe.Decr(ctx, hourKey(mailboxID, now))
	if cfg.BurstLimit > 0 {
		pipe.Decr(ctx, burstKey(mailboxID, now, cfg.BurstWindowSeconds))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("counter release failed: %w", err)
	}
	return nil
}

// Usage reads the current counters for one mailbox. Missing keys read as
// zero, so a brand-new mailbox reports a clean slate.
func (c *CounterStore) Usage(ctx context.Context, mailboxID string, now time.Time) (sentToday, sentThisHour int, lastSentAt *time.Time, err error) {
	pipe := c.redis.Pipeline()
	dayCmd := pipe.Get(ctx, dayKey(mailboxID, now))
	hourCmd := pipe.Get(ctx, hourKey(mailboxID, now))
	lastCmd := pipe.Get(ctx, lastSentKey(mailboxID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, nil, fmt.Errorf("counter usage read failed: %w", err)
	}

	day, _ := dayCmd.Int64()
	hour, _ := hourCmd.Int64()

	if unix, err := lastCmd.Int64(); err == nil && unix > 0 {
		t := time.Unix(unix, 0).UTC()
		lastSentAt = &t
	}

	return int(day), int(hour), lastSentAt, nil
}

// State assembles a SendingState from the live counters plus the mailbox's
// configured limits. Manual throttle flags come from the mailbox row, not
// from Redis, so they are left for the caller to overlay.
func (c *CounterStore) State(ctx context.Context, mailboxID string, cfg domain.ThrottleConfig, now time.Time) (domain.SendingState, error) {
	day, hour, last, err := c.Usage(ctx, mailboxID, now)
	if err != nil {
		return domain.SendingState{}, err
	}
	return domain.SendingState{
		MailboxID:    mailboxID,
		SentToday:    day,
		SentThisHour: hour,
		LastSentAt:   last,
		DailyLimit:   cfg.MaxPerDay,
		HourlyLimit:  cfg.MaxPerHour,
	}, nil
}

// Close closes the Redis connection.
func (c *CounterStore) Close() error {
	return c.redis.Close()
}
