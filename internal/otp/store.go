package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/tapcart/internal/redisx"
)

// CheckResult is the outcome of comparing a submitted code.
type CheckResult int

const (
	CheckMissing CheckResult = iota
	CheckOK
	CheckMismatch
	CheckBurned
)

// Store keeps one pending code per phone.
type Store interface {
	// Save replaces the pending code for phone. It returns ErrCooldown when
	// a code was issued less than cooldown ago.
	Save(ctx context.Context, phone, codeHash string, ttl, cooldown time.Duration) error
	// Check compares codeHash with the pending code and consumes it on a
	// match. Wrong guesses count towards maxAttempts.
	Check(ctx context.Context, phone, codeHash string, maxAttempts int) (CheckResult, error)
	MarkVerified(ctx context.Context, phone string, ttl time.Duration) error
	IsVerified(ctx context.Context, phone string) (bool, error)
}

// checkScript keeps a consumed record around as "used" until it expires so
// replaying a spent code reads as a mismatch rather than an expiry.
var checkScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'hash', 'used')
if not rec[1] then
	return 0
end
if rec[2] == '1' then
	return 2
end
if rec[1] == ARGV[1] then
	redis.call('HSET', KEYS[1], 'used', '1')
	return 1
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if n >= tonumber(ARGV[2]) then
	redis.call('DEL', KEYS[1])
	return 3
end
return 2
`)

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, phone, codeHash string, ttl, cooldown time.Duration) error {
	if cooldown > 0 {
		ok, err := s.rdb.SetNX(ctx, redisx.Key(redisx.KeyOTPCooldown, phone), 1, cooldown).Result()
		if err != nil {
			return fmt.Errorf("set otp cooldown: %w", err)
		}
		if !ok {
			return ErrCooldown
		}
	}

	key := redisx.Key(redisx.KeyOTP, phone)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", codeHash, "attempts", 0, "used", 0)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Check(ctx context.Context, phone, codeHash string, maxAttempts int) (CheckResult, error) {
	n, err := checkScript.Run(ctx, s.rdb, []string{redisx.Key(redisx.KeyOTP, phone)}, codeHash, maxAttempts).Int()
	if err != nil {
		return CheckMissing, fmt.Errorf("check otp: %w", err)
	}
	return CheckResult(n), nil
}

func (s *RedisStore) MarkVerified(ctx context.Context, phone string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, redisx.Key(redisx.KeyOTPVerified, phone), 1, ttl).Err(); err != nil {
		return fmt.Errorf("mark phone verified: %w", err)
	}
	return nil
}

func (s *RedisStore) IsVerified(ctx context.Context, phone string) (bool, error) {
	return redisx.Exists(ctx, s.rdb, redisx.Key(redisx.KeyOTPVerified, phone))
}
