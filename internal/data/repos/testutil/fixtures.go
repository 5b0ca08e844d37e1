package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	"github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
)

func SeedCustomer(tb testing.TB, ctx context.Context, tx *gorm.DB, mut func(c *types.Customer)) *types.Customer {
	tb.Helper()
	c := &types.Customer{
		ID:                   uuid.New(),
		ExternalID:           "ext-" + uuid.NewString(),
		Name:                 "Ada Lovelace",
		Email:                "ada@example.com",
		Company:              "Analytical Engines",
		PlanType:             "pro",
		MRR:                  120,
		CreatedDate:          time.Now().UTC().Add(-72 * time.Hour),
		HealthScore:          50,
		UsageScore:           50,
		EngagementScore:      50,
		SupportScore:         50,
		FinancialScore:       50,
		ChurnRiskLevel:       customers.RiskLow,
		ExpansionOpportunity: customers.ExpansionNone,
	}
	if mut != nil {
		mut(c)
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed customer: %v", err)
	}
	return c
}

// StepSpec is a compact step description for SeedPlaybook.
type StepSpec struct {
	Type       string
	DelayHours int
	Config     string
	Conditions string
}

func SeedPlaybook(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, triggers string, steps ...StepSpec) *types.Playbook {
	tb.Helper()
	p := &types.Playbook{
		ID:                uuid.New(),
		Name:              name,
		Description:       "seeded",
		Category:          playbooks.CategoryRetention,
		TriggerConditions: datatypes.JSON([]byte(triggers)),
		IsActive:          true,
		Priority:          5,
	}
	for i, s := range steps {
		step := types.PlaybookStep{
			ID:          uuid.New(),
			StepOrder:   i + 1,
			StepType:    s.Type,
			Title:       s.Type + " step",
			Description: "do the " + s.Type,
			DelayHours:  s.DelayHours,
		}
		if s.Config != "" {
			step.Config = datatypes.JSON([]byte(s.Config))
		}
		if s.Conditions != "" {
			step.Conditions = datatypes.JSON([]byte(s.Conditions))
		}
		p.Steps = append(p.Steps, step)
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed playbook: %v", err)
	}
	return p
}
