package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/use-agent/sitegrade/quota"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const (
	connectionTimeout = 5 * time.Second
	usageKeyPrefix    = "sitegrade:quota:"

	// usageTTL keeps a caller's usage set alive past any day-long window,
	// whatever timezone the window is computed in.
	usageTTL = 48 * time.Hour
)

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Each usage is a sorted-set member "<uuid>:<url>" scored by its time in
// milliseconds. Scores are compared against the window bounds, so the set
// works for any window definition.
//
// KEYS[1] usage key
// ARGV[1] window start ms, ARGV[2] window end ms, ARGV[3] limit,
// ARGV[4] usage time ms, ARGV[5] member, ARGV[6] expiry ms
var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local used = redis.call('ZCOUNT', KEYS[1], ARGV[1], '(' .. ARGV[2])
if used >= tonumber(ARGV[3]) then
	return {0, used}
end
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[5])
redis.call('PEXPIREAT', KEYS[1], ARGV[6])
return {1, used}
`)

// KEYS[1] usage key
// ARGV[1] window start ms, ARGV[2] window end ms, ARGV[3] url
var deleteScript = redis.NewScript(`
local members = redis.call('ZREVRANGEBYSCORE', KEYS[1], '(' .. ARGV[2], ARGV[1])
for _, m in ipairs(members) do
	local u = string.match(m, '^[^:]+:(.*)$')
	if u == ARGV[3] then
		redis.call('ZREM', KEYS[1], m)
		return 1
	end
end
return 0
`)

// RedisStore implements quota.Store on a Redis sorted set per identifier.
// Reservations run as a single Lua script, so they are atomic across every
// process sharing the Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func usageKey(identifier string) string {
	return usageKeyPrefix + identifier
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// CountUsage implements quota.Store.
func (s *RedisStore) CountUsage(ctx context.Context, identifier string, w quota.Window) (int, error) {
	n, err := s.client.ZCount(ctx, usageKey(identifier), ms(w.Start), "("+ms(w.End)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(n), nil
}

// RecordUsage implements quota.Store.
func (s *RedisStore) RecordUsage(ctx context.Context, identifier, url string, at time.Time) error {
	key := usageKey(identifier)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member(url)})
		pipe.PExpireAt(ctx, key, at.Add(usageTTL))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// DeleteUsage implements quota.Store.
func (s *RedisStore) DeleteUsage(ctx context.Context, identifier, url string, w quota.Window) error {
	err := deleteScript.Run(ctx, s.client, []string{usageKey(identifier)},
		ms(w.Start), ms(w.End), url).Err()
	if err != nil {
		return fmt.Errorf("failed to delete usage: %w", err)
	}
	return nil
}

// TryReserve implements quota.Store.
func (s *RedisStore) TryReserve(ctx context.Context, identifier, url string, at time.Time, w quota.Window, limit int) (int, error) {
	out, err := reserveScript.Run(ctx, s.client, []string{usageKey(identifier)},
		ms(w.Start), ms(w.End), limit, ms(at), member(url), ms(at.Add(usageTTL))).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve usage: %w", err)
	}
	if len(out) != 2 {
		return 0, fmt.Errorf("failed to reserve usage: unexpected script reply %v", out)
	}

	used := int(out[1])
	if out[0] == 0 {
		return used, quota.ErrLimitReached
	}
	return used, nil
}

func member(url string) string {
	return uuid.NewString() + ":" + url
}
