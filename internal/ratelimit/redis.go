package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per key, expiring once it can no longer matter.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "ratelimit:"}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(vals) == 0) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if e.Count, err = strconv.Atoi(vals["count"]); err != nil {
		return Entry{}, false, err
	}
	if e.FirstSeen, err = unixMilli(vals["first_seen"]); err != nil {
		return Entry{}, false, err
	}
	if e.LastSeen, err = unixMilli(vals["last_seen"]); err != nil {
		return Entry{}, false, err
	}
	if v := vals["blocked_until"]; v != "" {
		t, err := unixMilli(v)
		if err != nil {
			return Entry{}, false, err
		}
		e.BlockedUntil = &t
	}
	return e, true, nil
}

// hitScript is the Redis form of the SQL store's single-statement hit.
// Times are unix milliseconds; an empty blocked_until means not blocked.
var hitScript = redis.NewScript(`
local k = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])
local block_end = ARGV[4]
local ttl = tonumber(ARGV[5])

local v = redis.call('HMGET', k, 'count', 'first_seen', 'blocked_until')
local count = tonumber(v[1])
local first = v[2]
local blocked = v[3] or ''
local is_blocked = blocked ~= '' and tonumber(blocked) > now

if count == nil or (not is_blocked and tonumber(first) < window_start) then
	count = 1
	first = ARGV[1]
	blocked = ''
else
	count = count + 1
end
if not is_blocked and max_attempts > 0 and count >= max_attempts then
	blocked = block_end
end

redis.call('HSET', k, 'count', count, 'first_seen', first, 'last_seen', ARGV[1], 'blocked_until', blocked)
redis.call('PEXPIRE', k, ttl)
return {tostring(count), first, ARGV[1], blocked}
`)

// blockScript sets blocked_until only on a key that still exists.
var blockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'blocked_until', ARGV[1])
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[2]))
return 1
`)

func (s *RedisStore) Hit(ctx context.Context, key string, now, until time.Time, cfg Config) (Entry, error) {
	vals, err := hitScript.Run(ctx, s.rdb, []string{s.prefix + key},
		strconv.FormatInt(now.UnixMilli(), 10),
		now.Add(-cfg.window()).UnixMilli(),
		cfg.MaxAttempts,
		strconv.FormatInt(until.UnixMilli(), 10),
		cfg.ttl().Milliseconds(),
	).StringSlice()
	if err != nil {
		return Entry{}, err
	}
	if len(vals) != 4 {
		return Entry{}, fmt.Errorf("rate limit hit: unexpected reply %v", vals)
	}

	var e Entry
	if e.Count, err = strconv.Atoi(vals[0]); err != nil {
		return Entry{}, err
	}
	if e.FirstSeen, err = unixMilli(vals[1]); err != nil {
		return Entry{}, err
	}
	if e.LastSeen, err = unixMilli(vals[2]); err != nil {
		return Entry{}, err
	}
	if vals[3] != "" {
		t, err := unixMilli(vals[3])
		if err != nil {
			return Entry{}, err
		}
		e.BlockedUntil = &t
	}
	return e, nil
}

func (s *RedisStore) Block(ctx context.Context, key string, until time.Time, ttl time.Duration) error {
	return blockScript.Run(ctx, s.rdb, []string{s.prefix + key},
		strconv.FormatInt(until.UnixMilli(), 10), ttl.Milliseconds()).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

func unixMilli(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
