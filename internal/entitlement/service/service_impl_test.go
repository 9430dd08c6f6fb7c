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
	"github.com/applygate/applygate/internal/entitlement/domain"
	entitlementrepo "github.com/applygate/applygate/internal/entitlement/repository"
	entitlementservice "github.com/applygate/applygate/internal/entitlement/service"
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
		`CREATE TABLE entitlement_grants (
			id BIGINT PRIMARY KEY,
			holder_id BIGINT NOT NULL,
			package_id BIGINT NOT NULL,
			total_credits INT NOT NULL,
			used_credits INT NOT NULL DEFAULT 0,
			issued_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			source_order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_entitlement_grants_source_order ON entitlement_grants(source_order_id)`,
		`CREATE TABLE events (
			id BIGINT PRIMARY KEY,
			holder_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			dedupe_key TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_events_dedupe_key ON events(dedupe_key)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func newService(t *testing.T, db *gorm.DB, clk clock.Clock) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return entitlementservice.New(entitlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  entitlementrepo.Provide(),
		Cfg:   config.Config{Sweep: config.SweepConfig{BatchSize: 100}},
	})
}

func TestIssueIdempotentOnSourceOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	holderID := snowflake.ID(1001)
	packageID := snowflake.ID(2001)

	req := domain.IssueGrantRequest{
		HolderID:      holderID,
		PackageID:     packageID,
		CreditCount:   10,
		ValidityDays:  30,
		SourceOrderID: "order_1",
	}

	first, err := svc.Issue(ctx, req)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first.TotalCredits != 10 || first.UsedCredits != 0 {
		t.Fatalf("unexpected grant credits: %+v", first)
	}
	wantExpiry := clk.Now().AddDate(0, 0, 30)
	if !first.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, first.ExpiresAt)
	}

	second, err := svc.Issue(ctx, req)
	if err != nil {
		t.Fatalf("re-issue: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected dedupe to return grant %s, got %s", first.ID, second.ID)
	}

	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM entitlement_grants").Scan(&count).Error; err != nil {
		t.Fatalf("count grants: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 grant, got %d", count)
	}
}

func TestIssueConcurrentNoDoubleGrant(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	req := domain.IssueGrantRequest{
		HolderID:      snowflake.ID(1002),
		PackageID:     snowflake.ID(2002),
		CreditCount:   5,
		ValidityDays:  30,
		SourceOrderID: "order_concurrent",
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent issue: %v", err)
		}
	}

	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM entitlement_grants WHERE source_order_id = ?", req.SourceOrderID).Scan(&count).Error; err != nil {
		t.Fatalf("count grants: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 grant, got %d", count)
	}
}

func TestDebitNoDoubleSpend(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	holderID := snowflake.ID(1003)
	grant, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      holderID,
		PackageID:     snowflake.ID(2003),
		CreditCount:   3,
		ValidityDays:  30,
		SourceOrderID: "order_spend",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 7 // credits + 4 extra
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				current, err := svc.UsableGrant(ctx, holderID)
				if errors.Is(err, domain.ErrNoUsableCredits) {
					mu.Lock()
					rejected++
					mu.Unlock()
					return
				}
				if err != nil {
					t.Errorf("usable grant: %v", err)
					return
				}
				_, err = svc.Debit(ctx, current.ID, current.UsedCredits)
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				if !errors.Is(err, domain.ErrStaleGrant) {
					t.Errorf("debit: %v", err)
					return
				}
				// Lost the race; re-read and try again.
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Fatalf("expected exactly 3 successful debits, got %d", successes)
	}
	if rejected != attempts-3 {
		t.Fatalf("expected %d rejected attempts, got %d", attempts-3, rejected)
	}

	var used int
	if err := db.Raw("SELECT used_credits FROM entitlement_grants WHERE id = ?", grant.ID).Scan(&used).Error; err != nil {
		t.Fatalf("scan used_credits: %v", err)
	}
	if used != 3 {
		t.Fatalf("expected used_credits 3, got %d", used)
	}
}

func TestDebitStaleExpectation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	grant, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      snowflake.ID(1004),
		PackageID:     snowflake.ID(2004),
		CreditCount:   2,
		ValidityDays:  30,
		SourceOrderID: "order_stale",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := svc.Debit(ctx, grant.ID, 0); err != nil {
		t.Fatalf("first debit: %v", err)
	}

	// Same expectation again loses the compare-and-set.
	if _, err := svc.Debit(ctx, grant.ID, 0); !errors.Is(err, domain.ErrStaleGrant) {
		t.Fatalf("expected stale grant, got %v", err)
	}

	var used int
	if err := db.Raw("SELECT used_credits FROM entitlement_grants WHERE id = ?", grant.ID).Scan(&used).Error; err != nil {
		t.Fatalf("scan used_credits: %v", err)
	}
	if used != 1 {
		t.Fatalf("expected used_credits 1, got %d", used)
	}
}

// failingReadRepo delegates to the real repository but fails the grant
// re-read once armed.
type failingReadRepo struct {
	domain.Repository
	failFind bool
}

func (r *failingReadRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Grant, error) {
	if r.failFind {
		return nil, errors.New("read dropped")
	}
	return r.Repository.FindByID(ctx, db, id)
}

func TestDebitRollsBackWhenReadFails(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	repo := &failingReadRepo{Repository: entitlementrepo.Provide()}
	svc := entitlementservice.New(entitlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repo,
		Cfg:   config.Config{Sweep: config.SweepConfig{BatchSize: 100}},
	})

	grant, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      snowflake.ID(1008),
		PackageID:     snowflake.ID(2008),
		CreditCount:   2,
		ValidityDays:  30,
		SourceOrderID: "order_read_fail",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	repo.failFind = true
	if _, err := svc.Debit(ctx, grant.ID, 0); err == nil {
		t.Fatal("expected debit to fail when the re-read fails")
	}

	// The winning compare-and-set must not survive the failed read.
	var used int
	if err := db.Raw("SELECT used_credits FROM entitlement_grants WHERE id = ?", grant.ID).Scan(&used).Error; err != nil {
		t.Fatalf("scan used_credits: %v", err)
	}
	if used != 0 {
		t.Fatalf("expected used_credits 0 after rollback, got %d", used)
	}

	repo.failFind = false
	if _, err := svc.Debit(ctx, grant.ID, 0); err != nil {
		t.Fatalf("debit after recovery: %v", err)
	}
}

func TestUsableGrantExpiryPrecedence(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	holderID := snowflake.ID(1005)
	grant, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      holderID,
		PackageID:     snowflake.ID(2005),
		CreditCount:   10,
		ValidityDays:  30,
		SourceOrderID: "order_expiry",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if grant.Remaining() != 10 {
		t.Fatalf("expected 10 remaining, got %d", grant.Remaining())
	}

	clk.Advance(31 * 24 * time.Hour)

	if _, err := svc.UsableGrant(ctx, holderID); !errors.Is(err, domain.ErrNoUsableCredits) {
		t.Fatalf("expected no usable credits, got %v", err)
	}

	grants, err := svc.ListByHolder(ctx, holderID)
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
	if grants[0].Status != domain.GrantStatusExpired {
		t.Fatalf("expected expired status, got %s", grants[0].Status)
	}

	// The lazy sweep also refreshed the stored status column.
	var stored string
	if err := db.Raw("SELECT status FROM entitlement_grants WHERE id = ?", grant.ID).Scan(&stored).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if stored != string(domain.GrantStatusExpired) {
		t.Fatalf("expected stored status expired, got %s", stored)
	}
}

func TestUsableGrantEarliestExpiryFirst(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	holderID := snowflake.ID(1006)

	longer, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      holderID,
		PackageID:     snowflake.ID(2006),
		CreditCount:   5,
		ValidityDays:  60,
		SourceOrderID: "order_longer",
	})
	if err != nil {
		t.Fatalf("issue longer: %v", err)
	}

	sooner, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      holderID,
		PackageID:     snowflake.ID(2006),
		CreditCount:   1,
		ValidityDays:  15,
		SourceOrderID: "order_sooner",
	})
	if err != nil {
		t.Fatalf("issue sooner: %v", err)
	}

	picked, err := svc.UsableGrant(ctx, holderID)
	if err != nil {
		t.Fatalf("usable grant: %v", err)
	}
	if picked.ID != sooner.ID {
		t.Fatalf("expected soonest-expiring grant %s, got %s", sooner.ID, picked.ID)
	}

	// Exhaust the sooner grant; selection falls through to the longer one.
	if _, err := svc.Debit(ctx, sooner.ID, 0); err != nil {
		t.Fatalf("debit: %v", err)
	}

	picked, err = svc.UsableGrant(ctx, holderID)
	if err != nil {
		t.Fatalf("usable grant after exhaustion: %v", err)
	}
	if picked.ID != longer.ID {
		t.Fatalf("expected fallback grant %s, got %s", longer.ID, picked.ID)
	}
}

func TestRefundRestoresCredit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	grant, err := svc.Issue(ctx, domain.IssueGrantRequest{
		HolderID:      snowflake.ID(1007),
		PackageID:     snowflake.ID(2007),
		CreditCount:   1,
		ValidityDays:  30,
		SourceOrderID: "order_refund",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	debited, err := svc.Debit(ctx, grant.ID, 0)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if debited.Status != domain.GrantStatusExhausted {
		t.Fatalf("expected exhausted after final debit, got %s", debited.Status)
	}

	if err := svc.Refund(ctx, grant.ID); err != nil {
		t.Fatalf("refund: %v", err)
	}

	restored, err := svc.UsableGrant(ctx, grant.HolderID)
	if err != nil {
		t.Fatalf("usable grant after refund: %v", err)
	}
	if restored.ID != grant.ID || restored.UsedCredits != 0 {
		t.Fatalf("expected refunded grant with 0 used credits, got %+v", restored)
	}
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	for i := 0; i < 3; i++ {
		_, err := svc.Issue(ctx, domain.IssueGrantRequest{
			HolderID:      snowflake.ID(1100 + i),
			PackageID:     snowflake.ID(2100),
			CreditCount:   5,
			ValidityDays:  10 + i*30,
			SourceOrderID: fmt.Sprintf("order_sweep_%d", i),
		})
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
	}

	clk.Advance(11 * 24 * time.Hour)

	count, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 swept grant, got %d", count)
	}

	var expired int64
	if err := db.Raw("SELECT COUNT(1) FROM entitlement_grants WHERE status = 'expired'").Scan(&expired).Error; err != nil {
		t.Fatalf("count expired: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired grant, got %d", expired)
	}
}
