package customers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos/testutil"
	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
)

func TestCustomerRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewCustomerRepo(db, testutil.Logger(t))

	c := &types.Customer{
		ExternalID: "crm-1001",
		Name:       "Grace Hopper",
		Email:      "grace@example.com",
		MRR:        300,
	}
	if err := repo.Create(dbc, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Fatalf("Create: expected id to be assigned")
	}
	if c.ChurnRiskLevel != customers.RiskLow || c.ExpansionOpportunity != customers.ExpansionNone {
		t.Fatalf("Create defaults: risk=%q expansion=%q", c.ChurnRiskLevel, c.ExpansionOpportunity)
	}

	got, err := repo.GetByID(dbc, c.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.Name != "Grace Hopper" {
		t.Fatalf("GetByID name: want=%q got=%q", "Grace Hopper", got.Name)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: err=%v got=%v", err, missing)
	}
	if byExt, err := repo.GetByExternalID(dbc, "crm-1001"); err != nil || byExt == nil || byExt.ID != c.ID {
		t.Fatalf("GetByExternalID: err=%v got=%v", err, byExt)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := repo.RecordSupportTicket(dbc, c.ID, at); err != nil {
		t.Fatalf("RecordSupportTicket: %v", err)
	}
	if err := repo.RecordSupportTicket(dbc, c.ID, at); err != nil {
		t.Fatalf("RecordSupportTicket second: %v", err)
	}
	got, _ = repo.GetByID(dbc, c.ID)
	if got.SupportTicketsCount != 2 {
		t.Fatalf("support tickets: want=2 got=%d", got.SupportTicketsCount)
	}
	if got.LastSupportTicket == nil || !got.LastSupportTicket.Equal(at) {
		t.Fatalf("last support ticket: want=%v got=%v", at, got.LastSupportTicket)
	}

	if err := repo.UpdateFields(dbc, c.ID, map[string]interface{}{
		"health_score":     42.5,
		"churn_risk_level": customers.RiskHigh,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ = repo.GetByID(dbc, c.ID)
	if got.HealthScore != 42.5 || got.ChurnRiskLevel != customers.RiskHigh {
		t.Fatalf("UpdateFields: health=%v risk=%q", got.HealthScore, got.ChurnRiskLevel)
	}
}

func TestCustomerRepoListAndSummary(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewCustomerRepo(db, testutil.Logger(t))

	healthy := testutil.SeedCustomer(t, ctx, tx, func(c *types.Customer) {
		c.HealthScore = 88
		c.MRR = 100
		c.OnboardingCompleted = true
		c.ExpansionOpportunity = customers.ExpansionHigh
	})
	atRisk := testutil.SeedCustomer(t, ctx, tx, func(c *types.Customer) {
		c.HealthScore = 22
		c.MRR = 50
		c.ChurnRiskLevel = customers.RiskCritical
	})

	rows, total, err := repo.List(dbc, CustomerFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("List: want=2 got total=%d len=%d", total, len(rows))
	}
	if rows[0].ID != atRisk.ID {
		t.Fatalf("List order: want lowest health first")
	}

	rows, total, err = repo.List(dbc, CustomerFilter{RiskLevel: customers.RiskCritical})
	if err != nil || total != 1 || rows[0].ID != atRisk.ID {
		t.Fatalf("List by risk: err=%v total=%d", err, total)
	}

	byIDs, err := repo.GetByIDs(dbc, []uuid.UUID{healthy.ID, atRisk.ID})
	if err != nil || len(byIDs) != 2 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(byIDs))
	}

	sum, err := repo.Summary(dbc)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 2 {
		t.Fatalf("Summary total: want=2 got=%d", sum.Total)
	}
	if sum.AverageHealth != 55 {
		t.Fatalf("Summary avg health: want=55 got=%v", sum.AverageHealth)
	}
	if sum.TotalMRR != 150 {
		t.Fatalf("Summary mrr: want=150 got=%v", sum.TotalMRR)
	}
	if sum.ByRisk[customers.RiskCritical] != 1 || sum.ByRisk[customers.RiskLow] != 1 {
		t.Fatalf("Summary by risk: %v", sum.ByRisk)
	}
	if sum.ByExpansion[customers.ExpansionHigh] != 1 {
		t.Fatalf("Summary by expansion: %v", sum.ByExpansion)
	}
	if sum.OnboardingOpen != 1 {
		t.Fatalf("Summary onboarding open: want=1 got=%d", sum.OnboardingOpen)
	}
}

func TestActivityRepoListSince(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewActivityRepo(db, testutil.Logger(t))

	c := testutil.SeedCustomer(t, ctx, tx, nil)
	now := time.Now().UTC().Truncate(time.Second)
	for _, age := range []time.Duration{time.Hour, 10 * 24 * time.Hour, 45 * 24 * time.Hour} {
		if err := repo.Create(dbc, &types.CustomerActivity{
			CustomerID:   c.ID,
			ActivityType: customers.ActivityLogin,
			Timestamp:    now.Add(-age),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	rows, err := repo.ListSince(dbc, c.ID, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListSince: want=2 got=%d", len(rows))
	}
}

func TestActionRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewActionRepo(db, testutil.Logger(t))

	c := testutil.SeedCustomer(t, ctx, tx, nil)
	a := &types.CSMAction{CustomerID: c.ID, ActionType: "call", Title: "Check in"}
	if err := repo.Create(dbc, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ActionStatus != customers.ActionPending || a.Priority != customers.PriorityMedium {
		t.Fatalf("Create defaults: status=%q priority=%q", a.ActionStatus, a.Priority)
	}

	pending, err := repo.ListByCustomer(dbc, c.ID, customers.ActionPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListByCustomer pending: err=%v len=%d", err, len(pending))
	}
	if n, err := repo.CountByStatus(dbc, customers.ActionPending); err != nil || n != 1 {
		t.Fatalf("CountByStatus: err=%v n=%d", err, n)
	}

	if err := repo.UpdateFields(dbc, a.ID, map[string]interface{}{"action_status": customers.ActionCompleted}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if n, _ := repo.CountByStatus(dbc, customers.ActionPending); n != 0 {
		t.Fatalf("CountByStatus after update: want=0 got=%d", n)
	}
	got, err := repo.GetByID(dbc, a.ID)
	if err != nil || got == nil || got.ActionStatus != customers.ActionCompleted {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
}
