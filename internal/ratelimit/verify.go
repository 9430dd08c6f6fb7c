package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/applygate/applygate/internal/config"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyVerifyHolder = "payment:verify:holder:%s"
	keySweepLock    = "entitlement:sweep:lock"

	sweepLockTTL = 2 * time.Minute
)

// VerifyLimiter throttles payment verification per holder and hands out the
// sweep lock so only one instance runs the expiry sweep at a time. Nil when
// rate limiting is disabled; all methods degrade to allow.
type VerifyLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	verifyRate  float64
	verifyBurst int
}

func NewVerifyLimiter(cfg config.Config) (*VerifyLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.VerifyRate <= 0 || limitCfg.VerifyBurst <= 0 {
		return nil, errors.New("verify rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &VerifyLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		locker:      NewLocker(client),
		verifyRate:  limitCfg.VerifyRate,
		verifyBurst: limitCfg.VerifyBurst,
	}, nil
}

func (l *VerifyLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *VerifyLimiter) AllowVerify(ctx context.Context, holderID snowflake.ID) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyVerifyHolder, holderID), l.verifyRate, l.verifyBurst)
}

func (l *VerifyLimiter) TryLockSweep(ctx context.Context) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keySweepLock, sweepLockTTL)
}

func (l *VerifyLimiter) ReleaseSweep(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keySweepLock, token)
}
