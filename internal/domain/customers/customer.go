package customers

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

const (
	ExpansionNone   = "none"
	ExpansionLow    = "low"
	ExpansionMedium = "medium"
	ExpansionHigh   = "high"
)

// Customer is the persisted account record. Scoring and matching read it as
// a snapshot; only services write it back.
type Customer struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID           string         `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	Name                 string         `gorm:"column:name;not null" json:"name"`
	Email                string         `gorm:"column:email;not null" json:"email"`
	Company              string         `gorm:"column:company" json:"company,omitempty"`
	PlanType             string         `gorm:"column:plan_type;index" json:"plan_type,omitempty"`
	MRR                  float64        `gorm:"column:mrr" json:"mrr"`
	CreatedDate          time.Time      `gorm:"column:created_date;not null;index" json:"created_date"`
	LastLogin            *time.Time     `gorm:"column:last_login" json:"last_login,omitempty"`
	LastContactDate      *time.Time     `gorm:"column:last_contact_date" json:"last_contact_date,omitempty"`
	NextRenewalDate      *time.Time     `gorm:"column:next_renewal_date" json:"next_renewal_date,omitempty"`
	LastSupportTicket    *time.Time     `gorm:"column:last_support_ticket" json:"last_support_ticket,omitempty"`
	SupportTicketsCount  int            `gorm:"column:support_tickets_count;not null" json:"support_tickets_count"`
	FeatureAdoptionRate  float64        `gorm:"column:feature_adoption_rate;not null" json:"feature_adoption_rate"`
	OnboardingCompleted  bool           `gorm:"column:onboarding_completed;not null" json:"onboarding_completed"`
	TimeToValueDays      *int           `gorm:"column:time_to_value_days" json:"time_to_value_days,omitempty"`
	HealthScore          float64        `gorm:"column:health_score;not null;index" json:"health_score"`
	UsageScore           float64        `gorm:"column:usage_score;not null" json:"usage_score"`
	EngagementScore      float64        `gorm:"column:engagement_score;not null" json:"engagement_score"`
	SupportScore         float64        `gorm:"column:support_score;not null" json:"support_score"`
	FinancialScore       float64        `gorm:"column:financial_score;not null" json:"financial_score"`
	ChurnRiskLevel       string         `gorm:"column:churn_risk_level;not null;index" json:"churn_risk_level"`
	ExpansionOpportunity string         `gorm:"column:expansion_opportunity;not null;index" json:"expansion_opportunity"`
	AIInsights           datatypes.JSON `gorm:"column:ai_insights;type:jsonb" json:"ai_insights,omitempty"`
	LastAIAnalysis       *time.Time     `gorm:"column:last_ai_analysis" json:"last_ai_analysis,omitempty"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string { return "customer" }

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedDate.IsZero() {
		c.CreatedDate = time.Now().UTC()
	}
	if strings.TrimSpace(c.ChurnRiskLevel) == "" {
		c.ChurnRiskLevel = RiskLow
	}
	if strings.TrimSpace(c.ExpansionOpportunity) == "" {
		c.ExpansionOpportunity = ExpansionNone
	}
	return nil
}

func IsRiskLevel(s string) bool {
	switch s {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}
