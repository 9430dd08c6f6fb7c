package ratelimit_test

import (
	"context"
	"testing"

	"github.com/applygate/applygate/internal/config"
	"github.com/applygate/applygate/internal/ratelimit"
	"github.com/bwmarrin/snowflake"
)

func TestVerifyLimiterDisabledAllowsEverything(t *testing.T) {
	ctx := context.Background()

	limiter, err := ratelimit.NewVerifyLimiter(config.Config{})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if limiter != nil {
		t.Fatal("expected nil limiter when disabled")
	}

	allowed, err := limiter.AllowVerify(ctx, snowflake.ID(1))
	if err != nil || !allowed {
		t.Fatalf("nil limiter should allow: allowed=%v err=%v", allowed, err)
	}

	if _, ok, err := limiter.TryLockSweep(ctx); err != nil || !ok {
		t.Fatalf("nil limiter should hand out the sweep lock: ok=%v err=%v", ok, err)
	}
}

func TestVerifyLimiterSurfacesRedisErrors(t *testing.T) {
	ctx := context.Background()

	limiter, err := ratelimit.NewVerifyLimiter(config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:     true,
			RedisAddr:   "127.0.0.1:1",
			VerifyRate:  1,
			VerifyBurst: 5,
		},
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Enabled() {
		t.Fatal("expected enabled limiter")
	}

	// Nothing listens on the address; callers must see the outage instead of
	// a silent deny.
	if _, err := limiter.AllowVerify(ctx, snowflake.ID(1)); err == nil {
		t.Fatal("expected redis error to surface")
	}
}

func TestVerifyLimiterRejectsBadConfig(t *testing.T) {
	_, err := ratelimit.NewVerifyLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true},
	})
	if err == nil {
		t.Fatal("expected missing redis addr to be rejected")
	}

	_, err = ratelimit.NewVerifyLimiter(config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:   true,
			RedisAddr: "127.0.0.1:6379",
		},
	})
	if err == nil {
		t.Fatal("expected non-positive rate to be rejected")
	}
}
