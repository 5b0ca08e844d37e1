package customers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type CustomerFilter struct {
	RiskLevel string
	Limit     int
	Offset    int
}

type CustomerSummary struct {
	Total          int64            `json:"total_customers"`
	AverageHealth  float64          `json:"average_health_score"`
	ByRisk         map[string]int64 `json:"risk_distribution"`
	ByExpansion    map[string]int64 `json:"expansion_opportunities"`
	TotalMRR       float64          `json:"total_mrr"`
	OnboardingOpen int64            `json:"onboarding_incomplete"`
}

type CustomerRepo interface {
	Create(dbc dbctx.Context, c *types.Customer) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Customer, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Customer, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*types.Customer, error)
	List(dbc dbctx.Context, f CustomerFilter) ([]*types.Customer, int64, error)
	ListIDs(dbc dbctx.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	RecordSupportTicket(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	Summary(dbc dbctx.Context) (CustomerSummary, error)
}

type customerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCustomerRepo(db *gorm.DB, baseLog *logger.Logger) CustomerRepo {
	return &customerRepo{
		db:  db,
		log: baseLog.With("repo", "CustomerRepo"),
	}
}

func (r *customerRepo) Create(dbc dbctx.Context, c *types.Customer) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(c).Error
}

func (r *customerRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Customer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Customer
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *customerRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Customer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Customer
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *customerRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*types.Customer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if externalID == "" {
		return nil, nil
	}
	var out types.Customer
	if err := transaction.WithContext(dbc.Ctx).
		Where("external_id = ?", externalID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *customerRepo) List(dbc dbctx.Context, f CustomerFilter) ([]*types.Customer, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Customer{})
	if f.RiskLevel != "" {
		q = q.Where("churn_risk_level = ?", f.RiskLevel)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.Customer
	if err := q.Order("health_score ASC").Order("id ASC").
		Limit(limit).
		Offset(f.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListIDs pages through every customer id in id order.
func (r *customerRepo) ListIDs(dbc dbctx.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Customer{})
	if afterID != uuid.Nil {
		q = q.Where("id > ?", afterID)
	}
	var ids []uuid.UUID
	if err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *customerRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Customer{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *customerRepo) RecordSupportTicket(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Customer{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"support_tickets_count": gorm.Expr("support_tickets_count + 1"),
			"last_support_ticket":   at,
			"updated_at":            time.Now().UTC(),
		}).Error
}

type groupCount struct {
	Bucket string
	Total  int64
}

func (r *customerRepo) Summary(dbc dbctx.Context) (CustomerSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := CustomerSummary{ByRisk: map[string]int64{}, ByExpansion: map[string]int64{}}
	base := transaction.WithContext(dbc.Ctx).Model(&types.Customer{})

	var agg struct {
		Total     int64
		AvgHealth float64
		TotalMRR  float64
	}
	if err := base.Session(&gorm.Session{}).
		Select("COUNT(*) AS total, COALESCE(AVG(health_score), 0) AS avg_health, COALESCE(SUM(mrr), 0) AS total_mrr").
		Scan(&agg).Error; err != nil {
		return out, err
	}
	out.Total = agg.Total
	out.AverageHealth = agg.AvgHealth
	out.TotalMRR = agg.TotalMRR

	var risk []groupCount
	if err := base.Session(&gorm.Session{}).
		Select("churn_risk_level AS bucket, COUNT(*) AS total").
		Group("churn_risk_level").
		Scan(&risk).Error; err != nil {
		return out, err
	}
	for _, g := range risk {
		out.ByRisk[g.Bucket] = g.Total
	}

	var exp []groupCount
	if err := base.Session(&gorm.Session{}).
		Select("expansion_opportunity AS bucket, COUNT(*) AS total").
		Group("expansion_opportunity").
		Scan(&exp).Error; err != nil {
		return out, err
	}
	for _, g := range exp {
		out.ByExpansion[g.Bucket] = g.Total
	}

	if err := base.Session(&gorm.Session{}).
		Where("onboarding_completed = ?", false).
		Count(&out.OnboardingOpen).Error; err != nil {
		return out, err
	}
	return out, nil
}
