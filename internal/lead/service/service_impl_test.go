package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/applygate/applygate/internal/clock"
	"github.com/applygate/applygate/internal/config"
	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	entitlementrepo "github.com/applygate/applygate/internal/entitlement/repository"
	entitlementservice "github.com/applygate/applygate/internal/entitlement/service"
	gatingrepo "github.com/applygate/applygate/internal/gating/repository"
	gatingservice "github.com/applygate/applygate/internal/gating/service"
	leaddomain "github.com/applygate/applygate/internal/lead/domain"
	leadrepo "github.com/applygate/applygate/internal/lead/repository"
	leadservice "github.com/applygate/applygate/internal/lead/service"
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
		`CREATE TABLE gated_actions (
			id BIGINT PRIMARY KEY,
			holder_id BIGINT NOT NULL,
			action_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			grant_id BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_gated_actions_action_key ON gated_actions(action_key)`,
		`CREATE TABLE lead_assignments (
			id BIGINT PRIMARY KEY,
			lead_id BIGINT NOT NULL,
			holder_id BIGINT NOT NULL,
			grant_id BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_lead_assignments_lead ON lead_assignments(lead_id)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

type fixture struct {
	entitlements entitlementdomain.Service
	leads        leaddomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC))

	node, err := snowflake.NewNode(24)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	entitlements := entitlementservice.New(entitlementservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  entitlementrepo.Provide(),
		Cfg:   config.Config{},
	})

	engine := gatingservice.New(gatingservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Repo:         gatingrepo.Provide(),
		Entitlements: entitlements,
	})

	leads := leadservice.New(leadservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   leadrepo.Provide(),
		Gating: engine,
	})

	return &fixture{entitlements: entitlements, leads: leads}
}

func (f *fixture) issueGrant(t *testing.T, holderID snowflake.ID, credits int) {
	t.Helper()

	_, err := f.entitlements.Issue(context.Background(), entitlementdomain.IssueGrantRequest{
		HolderID:      holderID,
		PackageID:     snowflake.ID(7),
		CreditCount:   credits,
		ValidityDays:  30,
		SourceOrderID: fmt.Sprintf("order_%s", holderID),
	})
	if err != nil {
		t.Fatalf("issue grant: %v", err)
	}
}

func TestAssignClaimsLeadAndSpendsCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	holder := snowflake.ID(300)
	f.issueGrant(t, holder, 2)

	assignment, err := f.leads.Assign(ctx, leaddomain.AssignRequest{LeadID: 700, HolderID: holder})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assignment.GrantID == 0 {
		t.Fatal("assignment missing grant attribution")
	}

	grant, err := f.entitlements.UsableGrant(ctx, holder)
	if err != nil {
		t.Fatalf("usable grant: %v", err)
	}
	if grant.UsedCredits != 1 {
		t.Fatalf("expected 1 used credit, got %d", grant.UsedCredits)
	}
}

func TestAssignClaimedLeadSpendsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	winner := snowflake.ID(301)
	loser := snowflake.ID(302)
	f.issueGrant(t, winner, 2)
	f.issueGrant(t, loser, 2)

	if _, err := f.leads.Assign(ctx, leaddomain.AssignRequest{LeadID: 701, HolderID: winner}); err != nil {
		t.Fatalf("winner assign: %v", err)
	}
	if _, err := f.leads.Assign(ctx, leaddomain.AssignRequest{LeadID: 701, HolderID: loser}); !errors.Is(err, leaddomain.ErrLeadAlreadyAssigned) {
		t.Fatalf("expected lead already assigned, got %v", err)
	}

	grant, err := f.entitlements.UsableGrant(ctx, loser)
	if err != nil {
		t.Fatalf("usable grant: %v", err)
	}
	if grant.UsedCredits != 0 {
		t.Fatalf("losing claim consumed a credit: used=%d", grant.UsedCredits)
	}
}

func TestAssignListsByHolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	holder := snowflake.ID(303)
	f.issueGrant(t, holder, 3)

	for _, leadID := range []snowflake.ID{710, 711} {
		if _, err := f.leads.Assign(ctx, leaddomain.AssignRequest{LeadID: leadID, HolderID: holder}); err != nil {
			t.Fatalf("assign %s: %v", leadID, err)
		}
	}

	assignments, err := f.leads.ListByHolder(ctx, holder)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
}
