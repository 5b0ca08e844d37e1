package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/data/db"
	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	"github.com/upliftcs/upliftcs-backend/internal/modules/health"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	apperr "github.com/upliftcs/upliftcs-backend/internal/pkg/errors"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type CustomerInput struct {
	ExternalID          string     `json:"external_id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Company             string     `json:"company"`
	PlanType            string     `json:"plan_type"`
	MRR                 float64    `json:"mrr"`
	CreatedDate         *time.Time `json:"created_date"`
	LastLogin           *time.Time `json:"last_login"`
	LastContactDate     *time.Time `json:"last_contact_date"`
	NextRenewalDate     *time.Time `json:"next_renewal_date"`
	SupportTicketsCount int        `json:"support_tickets_count"`
	FeatureAdoptionRate float64    `json:"feature_adoption_rate"`
	OnboardingCompleted bool       `json:"onboarding_completed"`
	TimeToValueDays     *int       `json:"time_to_value_days"`
}

type ActionInput struct {
	ActionType    string     `json:"action_type"`
	Priority      string     `json:"priority"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	ScheduledDate *time.Time `json:"scheduled_date"`
}

type ActionUpdate struct {
	Status           *string `json:"action_status"`
	Priority         *string `json:"priority"`
	Outcome          *string `json:"outcome"`
	CustomerResponse *string `json:"customer_response"`
}

type HealthReport struct {
	Customer *types.Customer `json:"customer"`
	Health   health.Result   `json:"health"`
	Insights health.Insights `json:"insights"`
}

type DashboardSummary struct {
	repos.CustomerSummary
	PendingActions int64 `json:"pending_actions"`
}

type CustomerService interface {
	Create(ctx context.Context, in CustomerInput) (*types.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Customer, error)
	List(ctx context.Context, f repos.CustomerFilter) ([]*types.Customer, int64, error)
	RecordActivity(ctx context.Context, customerID uuid.UUID, activityType string, data map[string]any) (*types.CustomerActivity, error)
	RecalculateHealth(ctx context.Context, customerID uuid.UUID) (*HealthReport, error)
	ListActions(ctx context.Context, customerID uuid.UUID, status string) ([]*types.CSMAction, error)
	CreateAction(ctx context.Context, customerID uuid.UUID, in ActionInput) (*types.CSMAction, error)
	UpdateAction(ctx context.Context, actionID uuid.UUID, in ActionUpdate) (*types.CSMAction, error)
	DashboardSummary(ctx context.Context) (*DashboardSummary, error)
}

type customerService struct {
	db         *gorm.DB
	log        *logger.Logger
	customers  repos.CustomerRepo
	activities repos.ActivityRepo
	actions    repos.ActionRepo
	insights   *health.InsightsGenerator
	now        func() time.Time
}

// NewCustomerService accepts a nil insights generator; the templated
// insights are used then.
func NewCustomerService(db *gorm.DB, log *logger.Logger, customerRepo repos.CustomerRepo, activityRepo repos.ActivityRepo, actionRepo repos.ActionRepo, insights *health.InsightsGenerator) CustomerService {
	if insights == nil {
		insights = health.NewInsightsGenerator(log, nil, health.InsightsConfig{})
	}
	return &customerService{
		db:         db,
		log:        log.With("service", "CustomerService"),
		customers:  customerRepo,
		activities: activityRepo,
		actions:    actionRepo,
		insights:   insights,
		now:        time.Now,
	}
}

func (s *customerService) clock() time.Time { return s.now().UTC() }

func (s *customerService) Create(ctx context.Context, in CustomerInput) (*types.Customer, error) {
	ctx = ctxutil.Default(ctx)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	var problems []string
	if in.ExternalID == "" {
		problems = append(problems, "external_id is required")
	}
	if in.Name == "" {
		problems = append(problems, "name is required")
	}
	if in.Email == "" {
		problems = append(problems, "email is required")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		problems = append(problems, "email is invalid")
	}
	if in.MRR < 0 {
		problems = append(problems, "mrr must be >= 0")
	}
	if in.FeatureAdoptionRate < 0 || in.FeatureAdoptionRate > 1 {
		problems = append(problems, "feature_adoption_rate must be within [0,1]")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(problems, "; "), apperr.ErrInvalidArgument)
	}

	dbc := dbctx.Context{Ctx: ctx}
	existing, err := s.customers.GetByExternalID(dbc, in.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("lookup customer: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("customer with external_id %q: %w", in.ExternalID, apperr.ErrConflict)
	}

	now := s.clock()
	c := &types.Customer{
		ID:                  uuid.New(),
		ExternalID:          in.ExternalID,
		Name:                in.Name,
		Email:               in.Email,
		Company:             strings.TrimSpace(in.Company),
		PlanType:            strings.TrimSpace(in.PlanType),
		MRR:                 in.MRR,
		CreatedDate:         now,
		LastLogin:           utcPtr(in.LastLogin),
		LastContactDate:     utcPtr(in.LastContactDate),
		NextRenewalDate:     utcPtr(in.NextRenewalDate),
		SupportTicketsCount: in.SupportTicketsCount,
		FeatureAdoptionRate: in.FeatureAdoptionRate,
		OnboardingCompleted: in.OnboardingCompleted,
		TimeToValueDays:     in.TimeToValueDays,
	}
	if in.CreatedDate != nil {
		c.CreatedDate = in.CreatedDate.UTC()
	}
	applyScores(c, health.ScoreAt(c, nil, now, health.DefaultWeights))

	if err := s.customers.Create(dbc, c); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("customer with external_id %q: %w", in.ExternalID, apperr.ErrConflict)
		}
		s.log.Error("Failed to create customer", "external_id", in.ExternalID, "error", err)
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.log.Info("Customer created", "customer_id", c.ID, "health_score", c.HealthScore)
	return c, nil
}

func (s *customerService) Get(ctx context.Context, id uuid.UUID) (*types.Customer, error) {
	c, err := s.customers.GetByID(dbctx.Context{Ctx: ctxutil.Default(ctx)}, id)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
	}
	return c, nil
}

func (s *customerService) List(ctx context.Context, f repos.CustomerFilter) ([]*types.Customer, int64, error) {
	if f.RiskLevel != "" && !customers.IsRiskLevel(f.RiskLevel) {
		return nil, 0, fmt.Errorf("unknown risk level %q: %w", f.RiskLevel, apperr.ErrInvalidArgument)
	}
	return s.customers.List(dbctx.Context{Ctx: ctxutil.Default(ctx)}, f)
}

// RecordActivity stores the activity and updates the snapshot fields it
// implies, in one transaction.
func (s *customerService) RecordActivity(ctx context.Context, customerID uuid.UUID, activityType string, data map[string]any) (*types.CustomerActivity, error) {
	ctx = ctxutil.Default(ctx)
	activityType = strings.TrimSpace(activityType)
	if !customers.IsActivityType(activityType) {
		return nil, fmt.Errorf("unknown activity_type %q: %w", activityType, apperr.ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, customerID); err != nil {
		return nil, err
	}

	now := s.clock()
	a := &types.CustomerActivity{
		ID:           uuid.New(),
		CustomerID:   customerID,
		ActivityType: activityType,
		Timestamp:    now,
	}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("activity_data: %v: %w", err, apperr.ErrInvalidArgument)
		}
		a.ActivityData = datatypes.JSON(raw)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.activities.Create(inner, a); err != nil {
			return err
		}
		switch activityType {
		case customers.ActivityLogin:
			return s.customers.UpdateFields(inner, customerID, map[string]interface{}{"last_login": now})
		case customers.ActivitySupportTicket:
			return s.customers.RecordSupportTicket(inner, customerID, now)
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to record activity", "customer_id", customerID, "activity_type", activityType, "error", err)
		return nil, fmt.Errorf("record activity: %w", err)
	}
	return a, nil
}

// RecalculateHealth rescores the customer over the trailing activity window
// and refreshes the stored insights. The generator call is bounded and falls
// back, so this only fails on storage errors.
func (s *customerService) RecalculateHealth(ctx context.Context, customerID uuid.UUID) (*HealthReport, error) {
	ctx = ctxutil.Default(ctx)
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	dbc := dbctx.Context{Ctx: ctx}
	activities, err := s.activities.ListSince(dbc, customerID, now.Add(-health.ActivityWindow))
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}

	result := health.ScoreAt(c, activities, now, health.DefaultWeights)
	applyScores(c, result)
	insights := s.insights.Generate(ctx, c, result, activities)
	if insights.IsFallback() {
		s.log.Warn("Insights fell back to template", "customer_id", customerID, "error", insights.Error)
	}
	insightsDoc, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("encode insights: %w", err)
	}

	if err := s.customers.UpdateFields(dbc, customerID, map[string]interface{}{
		"health_score":          result.Overall,
		"usage_score":           result.Usage,
		"engagement_score":      result.Engagement,
		"support_score":         result.Support,
		"financial_score":       result.Financial,
		"churn_risk_level":      result.RiskLevel,
		"expansion_opportunity": c.ExpansionOpportunity,
		"ai_insights":           datatypes.JSON(insightsDoc),
		"last_ai_analysis":      now,
	}); err != nil {
		s.log.Error("Failed to store health", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("store health: %w", err)
	}
	c.AIInsights = datatypes.JSON(insightsDoc)
	c.LastAIAnalysis = &now

	s.log.Info("Health recalculated",
		"customer_id", customerID,
		"health_score", result.Overall,
		"risk_level", result.RiskLevel,
		"expansion", c.ExpansionOpportunity,
	)
	return &HealthReport{Customer: c, Health: result, Insights: insights}, nil
}

func (s *customerService) ListActions(ctx context.Context, customerID uuid.UUID, status string) ([]*types.CSMAction, error) {
	if status != "" && !customers.IsActionStatus(status) {
		return nil, fmt.Errorf("unknown action status %q: %w", status, apperr.ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, customerID); err != nil {
		return nil, err
	}
	return s.actions.ListByCustomer(dbctx.Context{Ctx: ctxutil.Default(ctx)}, customerID, status)
}

func (s *customerService) CreateAction(ctx context.Context, customerID uuid.UUID, in ActionInput) (*types.CSMAction, error) {
	ctx = ctxutil.Default(ctx)
	in.Title = strings.TrimSpace(in.Title)
	in.ActionType = strings.TrimSpace(in.ActionType)
	if in.Title == "" || in.ActionType == "" {
		return nil, fmt.Errorf("action_type and title are required: %w", apperr.ErrInvalidArgument)
	}
	if in.Priority == "" {
		in.Priority = customers.PriorityMedium
	}
	if !customers.IsPriority(in.Priority) {
		return nil, fmt.Errorf("unknown priority %q: %w", in.Priority, apperr.ErrInvalidArgument)
	}
	if _, err := s.Get(ctx, customerID); err != nil {
		return nil, err
	}
	a := &types.CSMAction{
		ID:            uuid.New(),
		CustomerID:    customerID,
		ActionType:    in.ActionType,
		ActionStatus:  customers.ActionPending,
		Priority:      in.Priority,
		Title:         in.Title,
		Description:   in.Description,
		ScheduledDate: utcPtr(in.ScheduledDate),
		CreatedDate:   s.clock(),
	}
	if err := s.actions.Create(dbctx.Context{Ctx: ctx}, a); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return a, nil
}

// UpdateAction applies the provided fields. Moving to completed stamps
// completed_date.
func (s *customerService) UpdateAction(ctx context.Context, actionID uuid.UUID, in ActionUpdate) (*types.CSMAction, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	a, err := s.actions.GetByID(dbc, actionID)
	if err != nil {
		return nil, fmt.Errorf("load action: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("action %s: %w", actionID, apperr.ErrNotFound)
	}

	updates := map[string]interface{}{}
	if in.Status != nil {
		if !customers.IsActionStatus(*in.Status) {
			return nil, fmt.Errorf("unknown action status %q: %w", *in.Status, apperr.ErrInvalidArgument)
		}
		updates["action_status"] = *in.Status
		if *in.Status == customers.ActionCompleted {
			updates["completed_date"] = s.clock()
		}
	}
	if in.Priority != nil {
		if !customers.IsPriority(*in.Priority) {
			return nil, fmt.Errorf("unknown priority %q: %w", *in.Priority, apperr.ErrInvalidArgument)
		}
		updates["priority"] = *in.Priority
	}
	if in.Outcome != nil {
		updates["outcome"] = *in.Outcome
	}
	if in.CustomerResponse != nil {
		updates["customer_response"] = *in.CustomerResponse
	}
	if len(updates) == 0 {
		return a, nil
	}
	if err := s.actions.UpdateFields(dbc, actionID, updates); err != nil {
		return nil, fmt.Errorf("update action: %w", err)
	}
	return s.actions.GetByID(dbc, actionID)
}

func (s *customerService) DashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	dbc := dbctx.Context{Ctx: ctxutil.Default(ctx)}
	summary, err := s.customers.Summary(dbc)
	if err != nil {
		return nil, fmt.Errorf("customer summary: %w", err)
	}
	pending, err := s.actions.CountByStatus(dbc, customers.ActionPending)
	if err != nil {
		return nil, fmt.Errorf("count pending actions: %w", err)
	}
	return &DashboardSummary{CustomerSummary: summary, PendingActions: pending}, nil
}

func applyScores(c *types.Customer, r health.Result) {
	c.HealthScore = r.Overall
	c.UsageScore = r.Usage
	c.EngagementScore = r.Engagement
	c.SupportScore = r.Support
	c.FinancialScore = r.Financial
	c.ChurnRiskLevel = r.RiskLevel
	c.ExpansionOpportunity = health.ExpansionOpportunity(c, r)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
