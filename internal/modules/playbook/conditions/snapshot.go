package conditions

import (
	"math"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
)

const (
	KeyCustomerAge          = "customer_age_days"
	KeyLastLogin            = "last_login_days"
	KeyChurnRiskLevel       = "churn_risk_level"
	KeyExpansionOpportunity = "expansion_opportunity"
	KeyHealthScore          = "health_score"
)

// Snapshot is the read-only customer view conditions are evaluated against.
type Snapshot struct {
	Now         time.Time
	CreatedDate time.Time
	LastLogin   *time.Time
	// Fields holds the remaining snapshot fields by wire name. Numbers are
	// float64; unset optional fields are present with a nil value.
	Fields map[string]any
}

// snapshotFields lists the generic keys a document may reference.
var snapshotFields = []string{
	"external_id", "name", "company", "plan_type", "mrr",
	"onboarding_completed", "feature_adoption_rate", "support_tickets_count", "time_to_value_days",
	KeyChurnRiskLevel, KeyExpansionOpportunity, KeyHealthScore,
	"usage_score", "engagement_score", "support_score", "financial_score",
}

func SnapshotOf(c *customers.Customer, now time.Time) Snapshot {
	if c == nil {
		return Snapshot{Now: now, Fields: map[string]any{}}
	}
	var ttv any
	if c.TimeToValueDays != nil {
		ttv = float64(*c.TimeToValueDays)
	}
	return Snapshot{
		Now:         now,
		CreatedDate: c.CreatedDate,
		LastLogin:   c.LastLogin,
		Fields: map[string]any{
			"external_id":           c.ExternalID,
			"name":                  c.Name,
			"company":               c.Company,
			"plan_type":             c.PlanType,
			"mrr":                   c.MRR,
			"onboarding_completed":  c.OnboardingCompleted,
			"feature_adoption_rate": c.FeatureAdoptionRate,
			"support_tickets_count": float64(c.SupportTicketsCount),
			"time_to_value_days":    ttv,
			KeyChurnRiskLevel:       c.ChurnRiskLevel,
			KeyExpansionOpportunity: c.ExpansionOpportunity,
			KeyHealthScore:          c.HealthScore,
			"usage_score":           c.UsageScore,
			"engagement_score":      c.EngagementScore,
			"support_score":         c.SupportScore,
			"financial_score":       c.FinancialScore,
		},
	}
}

func wholeDays(from, to time.Time) float64 {
	return math.Floor(to.Sub(from).Hours() / 24)
}
