package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	"github.com/upliftcs/upliftcs-backend/internal/data/repos/testutil"
	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	"github.com/upliftcs/upliftcs-backend/internal/modules/health"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	apperr "github.com/upliftcs/upliftcs-backend/internal/pkg/errors"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/pointers"
)

var now0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type customerFixture struct {
	svc       *customerService
	customers repos.CustomerRepo
}

func newCustomerFixture(t *testing.T) *customerFixture {
	t.Helper()
	db := testutil.FreshDB(t)
	log := testutil.Logger(t)
	customerRepo := repos.NewCustomerRepo(db, log)
	svc := NewCustomerService(db, log, customerRepo, repos.NewActivityRepo(db, log), repos.NewActionRepo(db, log), nil).(*customerService)
	svc.now = func() time.Time { return now0 }
	return &customerFixture{svc: svc, customers: customerRepo}
}

func validInput(ext string) CustomerInput {
	return CustomerInput{
		ExternalID:          ext,
		Name:                "Ada Lovelace",
		Email:               "ada@example.com",
		PlanType:            "pro",
		MRR:                 450,
		FeatureAdoptionRate: 0.6,
	}
}

func TestCreateCustomerValidates(t *testing.T) {
	f := newCustomerFixture(t)
	cases := []struct {
		name string
		mut  func(in *CustomerInput)
	}{
		{"missing external id", func(in *CustomerInput) { in.ExternalID = " " }},
		{"missing name", func(in *CustomerInput) { in.Name = "" }},
		{"missing email", func(in *CustomerInput) { in.Email = "" }},
		{"bad email", func(in *CustomerInput) { in.Email = "not-an-email" }},
		{"negative mrr", func(in *CustomerInput) { in.MRR = -1 }},
		{"adoption above one", func(in *CustomerInput) { in.FeatureAdoptionRate = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput("ext-1")
			tc.mut(&in)
			_, err := f.svc.Create(context.Background(), in)
			if !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Fatalf("err: want=ErrInvalidArgument got=%v", err)
			}
		})
	}
}

func TestCreateCustomerScoresAndRejectsDuplicates(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()

	c, err := f.svc.Create(ctx, validInput("ext-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.HealthScore < 0 || c.HealthScore > 100 {
		t.Fatalf("health_score out of range: %v", c.HealthScore)
	}
	if c.ChurnRiskLevel != health.RiskLevel(c.HealthScore) {
		t.Fatalf("risk: want=%s got=%s", health.RiskLevel(c.HealthScore), c.ChurnRiskLevel)
	}
	if !c.CreatedDate.Equal(now0) {
		t.Fatalf("created_date: want=%v got=%v", now0, c.CreatedDate)
	}

	if _, err := f.svc.Create(ctx, validInput("ext-1")); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate: want=ErrConflict got=%v", err)
	}
}

func TestRecordActivityUpdatesSnapshot(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, validInput("ext-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.RecordActivity(ctx, c.ID, customers.ActivityLogin, map[string]any{"source": "web"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.svc.RecordActivity(ctx, c.ID, customers.ActivitySupportTicket, nil); err != nil {
		t.Fatalf("ticket: %v", err)
	}
	if _, err := f.svc.RecordActivity(ctx, c.ID, "dance", nil); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("unknown type: want=ErrInvalidArgument got=%v", err)
	}

	got, err := f.svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(now0) {
		t.Fatalf("last_login: want=%v got=%v", now0, got.LastLogin)
	}
	if got.SupportTicketsCount != 1 {
		t.Fatalf("support_tickets_count: want=1 got=%d", got.SupportTicketsCount)
	}
	if got.LastSupportTicket == nil || !got.LastSupportTicket.Equal(now0) {
		t.Fatalf("last_support_ticket: want=%v got=%v", now0, got.LastSupportTicket)
	}
}

func TestRecalculateHealthStoresFallbackInsights(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, validInput("ext-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	report, err := f.svc.RecalculateHealth(ctx, c.ID)
	if err != nil {
		t.Fatalf("RecalculateHealth: %v", err)
	}
	if !report.Insights.IsFallback() {
		t.Fatalf("model_used: want=%s got=%s", health.ModelFallback, report.Insights.ModelUsed)
	}

	stored, err := f.customers.GetByID(dbctx.Context{Ctx: ctx}, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastAIAnalysis == nil || !stored.LastAIAnalysis.Equal(now0) {
		t.Fatalf("last_ai_analysis: want=%v got=%v", now0, stored.LastAIAnalysis)
	}
	if stored.HealthScore != report.Health.Overall {
		t.Fatalf("health_score: want=%v got=%v", report.Health.Overall, stored.HealthScore)
	}
	var doc health.Insights
	if err := json.Unmarshal(stored.AIInsights, &doc); err != nil {
		t.Fatalf("ai_insights: %v", err)
	}
	if doc.Summary == "" || doc.PriorityLevel != health.PriorityForRisk(report.Health.RiskLevel) {
		t.Fatalf("ai_insights: unexpected %+v", doc)
	}

	if _, err := f.svc.RecalculateHealth(ctx, types.Customer{}.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown customer: want=ErrNotFound got=%v", err)
	}
}

func TestActionsLifecycle(t *testing.T) {
	f := newCustomerFixture(t)
	ctx := context.Background()
	c, err := f.svc.Create(ctx, validInput("ext-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.CreateAction(ctx, c.ID, ActionInput{ActionType: "call", Title: "x", Priority: "whenever"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("bad priority: want=ErrInvalidArgument got=%v", err)
	}
	a, err := f.svc.CreateAction(ctx, c.ID, ActionInput{ActionType: "call", Title: "Check in"})
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	if a.Priority != customers.PriorityMedium || a.ActionStatus != customers.ActionPending {
		t.Fatalf("defaults: priority=%s status=%s", a.Priority, a.ActionStatus)
	}

	summary, err := f.svc.DashboardSummary(ctx)
	if err != nil {
		t.Fatalf("DashboardSummary: %v", err)
	}
	if summary.Total != 1 || summary.PendingActions != 1 {
		t.Fatalf("summary: total=%d pending=%d", summary.Total, summary.PendingActions)
	}

	updated, err := f.svc.UpdateAction(ctx, a.ID, ActionUpdate{
		Status:  pointers.String(customers.ActionCompleted),
		Outcome: pointers.String("booked QBR"),
	})
	if err != nil {
		t.Fatalf("UpdateAction: %v", err)
	}
	if updated.ActionStatus != customers.ActionCompleted || updated.Outcome != "booked QBR" {
		t.Fatalf("updated: %+v", updated)
	}
	if updated.CompletedDate == nil || !updated.CompletedDate.Equal(now0) {
		t.Fatalf("completed_date: want=%v got=%v", now0, updated.CompletedDate)
	}

	pending, err := f.svc.ListActions(ctx, c.ID, customers.ActionPending)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending: want=0 got=%d", len(pending))
	}
	if _, err := f.svc.UpdateAction(ctx, a.ID, ActionUpdate{Status: pointers.String("archived")}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("bad status: want=ErrInvalidArgument got=%v", err)
	}
}
