package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TrialTracker remembers trial counts per visitor on the server side.
type TrialTracker interface {
	// Count returns the stored count, 0 for unknown visitors.
	Count(ctx context.Context, visitorID string) (int, error)
	// Reserve claims one trial when max(stored, floor) < limit, in a single
	// step. It returns the count after the call and whether a trial was
	// claimed.
	Reserve(ctx context.Context, visitorID string, floor, limit int) (int, bool, error)
	// Release gives back a claimed trial.
	Release(ctx context.Context, visitorID string) error
}

const (
	trialKeyPrefix  = "clicklone:trials:"
	DefaultTrialTTL = 365 * 24 * time.Hour
)

var reserveScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if floor > cur then
  cur = floor
end
if cur < tonumber(ARGV[2]) then
  cur = cur + 1
  redis.call('SET', KEYS[1], cur, 'EX', ARGV[3])
  return {cur, 1}
end
redis.call('SET', KEYS[1], cur, 'EX', ARGV[3])
return {cur, 0}
`)

var releaseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur > 0 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisTrials keeps counters in Redis so clearing browser storage does not
// reset a visitor's trials.
type RedisTrials struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTrials parses url (redis://...) and returns a tracker.
func NewRedisTrials(url string, ttl time.Duration) (*RedisTrials, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisTrialsWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisTrialsWithClient wraps an existing client.
func NewRedisTrialsWithClient(client *redis.Client, ttl time.Duration) *RedisTrials {
	if ttl <= 0 {
		ttl = DefaultTrialTTL
	}
	return &RedisTrials{client: client, ttl: ttl}
}

// Count reads the visitor's counter.
func (r *RedisTrials) Count(ctx context.Context, visitorID string) (int, error) {
	raw, err := r.client.Get(ctx, trialKeyPrefix+visitorID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get trial count: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse trial count %q: %w", raw, err)
	}
	return n, nil
}

// Reserve runs the check and the increment as one Lua script.
func (r *RedisTrials) Reserve(ctx context.Context, visitorID string, floor, limit int) (int, bool, error) {
	vals, err := reserveScript.Run(ctx, r.client, []string{trialKeyPrefix + visitorID}, floor, limit, int(r.ttl.Seconds())).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("reserve trial: %w", err)
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("reserve trial: unexpected reply %v", vals)
	}
	count, ok1 := vals[0].(int64)
	claimed, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return 0, false, fmt.Errorf("reserve trial: unexpected reply %v", vals)
	}
	return int(count), claimed == 1, nil
}

// Release decrements the counter, never below zero.
func (r *RedisTrials) Release(ctx context.Context, visitorID string) error {
	if err := releaseScript.Run(ctx, r.client, []string{trialKeyPrefix + visitorID}).Err(); err != nil {
		return fmt.Errorf("release trial: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisTrials) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisTrials) Close() error {
	return r.client.Close()
}

// MemoryTrials is the single-process tracker used without Redis. Counters
// live in a bounded LRU and are lost on restart.
type MemoryTrials struct {
	mu     sync.Mutex
	counts *expirable.LRU[string, int]
}

// NewMemoryTrials keeps at most size visitors for ttl.
func NewMemoryTrials(size int, ttl time.Duration) *MemoryTrials {
	if ttl <= 0 {
		ttl = DefaultTrialTTL
	}
	return &MemoryTrials{counts: expirable.NewLRU[string, int](size, nil, ttl)}
}

// Count returns the cached counter.
func (m *MemoryTrials) Count(_ context.Context, visitorID string) (int, error) {
	n, _ := m.counts.Get(visitorID)
	return n, nil
}

// Reserve claims a trial under the tracker lock.
func (m *MemoryTrials) Reserve(_ context.Context, visitorID string, floor, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := m.counts.Get(visitorID)
	cur = max(cur, floor)
	if cur < limit {
		cur++
		m.counts.Add(visitorID, cur)
		return cur, true, nil
	}
	m.counts.Add(visitorID, cur)
	return cur, false, nil
}

// Release decrements the counter, never below zero.
func (m *MemoryTrials) Release(_ context.Context, visitorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.counts.Get(visitorID); ok && cur > 0 {
		m.counts.Add(visitorID, cur-1)
	}
	return nil
}
