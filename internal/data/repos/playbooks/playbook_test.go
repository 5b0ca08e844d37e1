package playbooks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/upliftcs/upliftcs-backend/internal/data/repos/testutil"
	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/pointers"
)

func TestPlaybookRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPlaybookRepo(db, testutil.Logger(t))

	p := &types.Playbook{
		Name:              "Renewal Prep",
		Category:          pb.CategoryRetention,
		TriggerConditions: datatypes.JSON([]byte(`{"health_score":{"max":50}}`)),
		IsActive:          true,
		Steps: []types.PlaybookStep{
			{StepOrder: 2, StepType: pb.StepEmail, Title: "Follow up", DelayHours: 48},
			{StepOrder: 1, StepType: pb.StepTask, Title: "Call", DelayHours: 0},
		},
	}
	if err := repo.Create(dbc, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Priority != 5 {
		t.Fatalf("default priority: want=5 got=%d", p.Priority)
	}

	got, err := repo.GetByID(dbc, p.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if len(got.Steps) != 2 || got.Steps[0].StepOrder != 1 || got.Steps[1].StepOrder != 2 {
		t.Fatalf("GetByID steps not ordered: %+v", got.Steps)
	}
	if byName, err := repo.GetByName(dbc, "Renewal Prep"); err != nil || byName == nil || byName.ID != p.ID {
		t.Fatalf("GetByName: err=%v got=%v", err, byName)
	}
	if missing, err := repo.GetByName(dbc, "nope"); err != nil || missing != nil {
		t.Fatalf("GetByName missing: err=%v got=%v", err, missing)
	}

	other := testutil.SeedPlaybook(t, ctx, tx, "Dormant", `{}`)
	if err := repo.UpdateFields(dbc, other.ID, map[string]interface{}{"is_active": false}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	active, err := repo.List(dbc, PlaybookFilter{ActiveOnly: true})
	if err != nil || len(active) != 1 || active[0].ID != p.ID {
		t.Fatalf("List active: err=%v len=%d", err, len(active))
	}
	if n, err := repo.Count(dbc, false); err != nil || n != 2 {
		t.Fatalf("Count: err=%v n=%d", err, n)
	}
	if n, err := repo.Count(dbc, true); err != nil || n != 1 {
		t.Fatalf("Count active: err=%v n=%d", err, n)
	}

	if err := repo.IncrementExecutionCount(dbc, p.ID); err != nil {
		t.Fatalf("IncrementExecutionCount: %v", err)
	}
	got, _ = repo.GetByID(dbc, p.ID)
	if got.ExecutionCount != 1 {
		t.Fatalf("execution count: want=1 got=%d", got.ExecutionCount)
	}
}

func TestExecutionRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)
	repo := NewExecutionRepo(db, log)
	steps := NewStepExecutionRepo(db, log)

	c := testutil.SeedCustomer(t, ctx, tx, nil)
	p := testutil.SeedPlaybook(t, ctx, tx, "Lifecycle", `{}`, testutil.StepSpec{Type: pb.StepWait, DelayHours: 1})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &types.PlaybookExecution{
		PlaybookID:   p.ID,
		CustomerID:   c.ID,
		StartedDate:  now.Add(-2 * time.Hour),
		NextStepDate: pointers.Time(now.Add(-time.Hour)),
	}
	if err := repo.Create(dbc, e); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.Status != pb.ExecutionActive {
		t.Fatalf("default status: want=%q got=%q", pb.ExecutionActive, e.Status)
	}

	if ok, err := repo.HasActive(dbc, c.ID, p.ID); err != nil || !ok {
		t.Fatalf("HasActive: err=%v ok=%v", err, ok)
	}
	if ids, err := repo.ActivePlaybookIDs(dbc, c.ID); err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("ActivePlaybookIDs: err=%v ids=%v", err, ids)
	}

	due, err := repo.ListDueIDs(dbc, now, 10)
	if err != nil || len(due) != 1 || due[0] != e.ID {
		t.Fatalf("ListDueIDs: err=%v ids=%v", err, due)
	}
	if notYet, err := repo.ListDueIDs(dbc, now.Add(-3*time.Hour), 10); err != nil || len(notYet) != 0 {
		t.Fatalf("ListDueIDs before due: err=%v ids=%v", err, notYet)
	}

	won, err := repo.ClaimDue(dbc, e.ID, now, 5*time.Minute)
	if err != nil || !won {
		t.Fatalf("ClaimDue first: err=%v won=%v", err, won)
	}
	if again, err := repo.ClaimDue(dbc, e.ID, now.Add(time.Minute), 5*time.Minute); err != nil || again {
		t.Fatalf("ClaimDue during lease: err=%v won=%v", err, again)
	}
	if paused, err := repo.UpdateFieldsIfIdle(dbc, e.ID, pb.ExecutionActive, now.Add(time.Minute), map[string]interface{}{"status": pb.ExecutionPaused}); err != nil || paused {
		t.Fatalf("UpdateFieldsIfIdle while leased: err=%v ok=%v", err, paused)
	}
	if leased, _ := repo.ListDueIDs(dbc, now.Add(time.Minute), 10); len(leased) != 0 {
		t.Fatalf("ListDueIDs while leased: want none got=%v", leased)
	}
	if expired, err := repo.ClaimDue(dbc, e.ID, now.Add(10*time.Minute), 5*time.Minute); err != nil || !expired {
		t.Fatalf("ClaimDue after lease expiry: err=%v won=%v", err, expired)
	}
	if err := repo.Release(dbc, e.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	se := &types.StepExecution{
		ExecutionID:   e.ID,
		StepID:        p.Steps[0].ID,
		StepIndex:     0,
		Status:        pb.StepStatusCompleted,
		StartedDate:   pointers.Time(now),
		CompletedDate: pointers.Time(now),
		Success:       pointers.Bool(true),
	}
	if err := steps.Create(dbc, se); err != nil {
		t.Fatalf("StepExecution Create: %v", err)
	}

	ok, err := repo.UpdateFieldsIfStatus(dbc, e.ID, pb.ExecutionPaused, map[string]interface{}{"status": pb.ExecutionActive})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsIfStatus wrong status: err=%v ok=%v", err, ok)
	}
	ok, err = repo.UpdateFieldsIfStatus(dbc, e.ID, pb.ExecutionActive, map[string]interface{}{
		"status":         pb.ExecutionCompleted,
		"success":        true,
		"current_step":   1,
		"completed_date": now,
		"next_step_date": nil,
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsIfStatus: err=%v ok=%v", err, ok)
	}

	got, err := repo.GetByID(dbc, e.ID, true)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.Status != pb.ExecutionCompleted || got.NextStepDate != nil || got.Success == nil || !*got.Success {
		t.Fatalf("GetByID after complete: %+v", got)
	}
	if len(got.StepRuns) != 1 || got.StepRuns[0].ID != se.ID {
		t.Fatalf("GetByID step runs: %+v", got.StepRuns)
	}
	if ok, _ := repo.HasActive(dbc, c.ID, p.ID); ok {
		t.Fatalf("HasActive after complete: want=false")
	}

	stats, err := repo.Stats(dbc, p.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 || stats.Successful != 1 || stats.SuccessRate() != 100 {
		t.Fatalf("Stats: %+v rate=%v", stats, stats.SuccessRate())
	}
}

func TestExecutionStatsSuccessRate(t *testing.T) {
	cases := []struct {
		name  string
		stats ExecutionStats
		want  float64
	}{
		{name: "empty", stats: ExecutionStats{}, want: 0},
		{name: "two of three", stats: ExecutionStats{Total: 3, Successful: 2}, want: 66.7},
		{name: "one of eight", stats: ExecutionStats{Total: 8, Successful: 1}, want: 12.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.stats.SuccessRate(); got != tc.want {
				t.Fatalf("SuccessRate: want=%v got=%v", tc.want, got)
			}
		})
	}
}

func TestExecutionRepoStatsAllPlaybooks(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewExecutionRepo(db, testutil.Logger(t))

	c := testutil.SeedCustomer(t, ctx, tx, nil)
	p1 := testutil.SeedPlaybook(t, ctx, tx, "Stats A", `{}`)
	p2 := testutil.SeedPlaybook(t, ctx, tx, "Stats B", `{}`)
	for _, e := range []*types.PlaybookExecution{
		{PlaybookID: p1.ID, CustomerID: c.ID, Status: pb.ExecutionFailed, Success: pointers.Bool(false)},
		{PlaybookID: p1.ID, CustomerID: c.ID, Status: pb.ExecutionPaused},
		{PlaybookID: p2.ID, CustomerID: c.ID, Status: pb.ExecutionCompleted, Success: pointers.Bool(true)},
		{PlaybookID: p2.ID, CustomerID: c.ID, Status: pb.ExecutionActive},
	} {
		if err := repo.Create(dbc, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	stats, err := repo.Stats(dbc, uuid.Nil)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := ExecutionStats{Total: 4, Successful: 1, Active: 1, Paused: 1, Failed: 1}
	if stats != want {
		t.Fatalf("Stats: want=%+v got=%+v", want, stats)
	}
	_, total, err := repo.List(dbc, ExecutionFilter{PlaybookID: p1.ID})
	if err != nil || total != 2 {
		t.Fatalf("List by playbook: err=%v total=%d", err, total)
	}
}
