package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/applygate/applygate/internal/clock"
	"github.com/applygate/applygate/internal/config"
	"github.com/applygate/applygate/internal/referral/domain"
	referralrepo "github.com/applygate/applygate/internal/referral/repository"
	referralservice "github.com/applygate/applygate/internal/referral/service"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE referral_edges (
			id BIGINT PRIMARY KEY,
			referrer_id BIGINT NOT NULL,
			referred_id BIGINT NOT NULL,
			code TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_referral_edges_referred ON referral_edges(referred_id)`,
		`CREATE TABLE reward_accounts (
			holder_id BIGINT PRIMARY KEY,
			points BIGINT NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func newService(t *testing.T, db *gorm.DB) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return referralservice.New(referralservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  referralrepo.Provide(),
		Cfg:   config.Config{Referral: config.ReferralConfig{BonusPoints: 50}},
	})
}

func TestCreateEdgeIdempotentOnReferred(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	first, err := svc.CreateEdge(ctx, domain.CreateEdgeRequest{ReferrerID: 1, ReferredID: 2})
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}
	again, err := svc.CreateEdge(ctx, domain.CreateEdgeRequest{ReferrerID: 1, ReferredID: 2})
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("repeat created a second edge: %s vs %s", again.ID, first.ID)
	}

	if _, err := svc.CreateEdge(ctx, domain.CreateEdgeRequest{ReferrerID: 3, ReferredID: 2}); !errors.Is(err, domain.ErrAlreadyReferred) {
		t.Fatalf("expected already referred for second referrer, got %v", err)
	}
}

func TestCreateEdgeRejectsSelfReferral(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	if _, err := svc.CreateEdge(ctx, domain.CreateEdgeRequest{ReferrerID: 5, ReferredID: 5}); !errors.Is(err, domain.ErrSelfReferral) {
		t.Fatalf("expected self referral rejection, got %v", err)
	}
}

func TestOnFirstConsumptionRewardsBothPartiesOnce(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	if _, err := svc.CreateEdge(ctx, domain.CreateEdgeRequest{ReferrerID: 1, ReferredID: 2}); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	if err := svc.OnFirstConsumption(ctx, 2); err != nil {
		t.Fatalf("first consumption: %v", err)
	}
	// Later consumptions replay the signal; the completed edge absorbs them.
	if err := svc.OnFirstConsumption(ctx, 2); err != nil {
		t.Fatalf("second consumption: %v", err)
	}

	for _, holder := range []snowflake.ID{1, 2} {
		points, err := svc.Balance(ctx, holder)
		if err != nil {
			t.Fatalf("balance %d: %v", holder, err)
		}
		if points != 50 {
			t.Fatalf("holder %d: expected 50 points, got %d", holder, points)
		}
	}

	edge, err := svc.EdgeByReferred(ctx, 2)
	if err != nil {
		t.Fatalf("edge lookup: %v", err)
	}
	if edge == nil || edge.Status != domain.EdgeStatusCompleted || edge.CompletedAt == nil {
		t.Fatalf("edge not completed: %+v", edge)
	}
}

func TestOnFirstConsumptionConcurrentRewardsOnce(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	if _, err := svc.CreateEdge(ctx, domain.CreateEdgeRequest{ReferrerID: 10, ReferredID: 11}); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.OnFirstConsumption(ctx, 11); err != nil {
				t.Errorf("consumption: %v", err)
			}
		}()
	}
	wg.Wait()

	points, err := svc.Balance(ctx, 10)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if points != 50 {
		t.Fatalf("referrer rewarded %d points, expected exactly 50", points)
	}
}

func TestOnFirstConsumptionWithoutEdgeIsNoop(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, setupTestDB(t))

	if err := svc.OnFirstConsumption(ctx, 99); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	points, err := svc.Balance(ctx, 99)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if points != 0 {
		t.Fatalf("unreferenced holder earned %d points", points)
	}
}
