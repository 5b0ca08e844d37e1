package customers

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type ActionRepo interface {
	Create(dbc dbctx.Context, a *types.CSMAction) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CSMAction, error)
	ListByCustomer(dbc dbctx.Context, customerID uuid.UUID, status string) ([]*types.CSMAction, error)
	ListByExecution(dbc dbctx.Context, executionID uuid.UUID) ([]*types.CSMAction, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	CountByStatus(dbc dbctx.Context, status string) (int64, error)
}

type actionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionRepo(db *gorm.DB, baseLog *logger.Logger) ActionRepo {
	return &actionRepo{
		db:  db,
		log: baseLog.With("repo", "ActionRepo"),
	}
}

func (r *actionRepo) Create(dbc dbctx.Context, a *types.CSMAction) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(a).Error
}

func (r *actionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.CSMAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.CSMAction
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

func (r *actionRepo) ListByCustomer(dbc dbctx.Context, customerID uuid.UUID, status string) ([]*types.CSMAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CSMAction
	q := transaction.WithContext(dbc.Ctx).Where("customer_id = ?", customerID)
	if status != "" {
		q = q.Where("action_status = ?", status)
	}
	if err := q.Order("created_date DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *actionRepo) ListByExecution(dbc dbctx.Context, executionID uuid.UUID) ([]*types.CSMAction, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CSMAction
	if err := transaction.WithContext(dbc.Ctx).
		Where("execution_id = ?", executionID).
		Order("created_date ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *actionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.CSMAction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *actionRepo) CountByStatus(dbc dbctx.Context, status string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	q := transaction.WithContext(dbc.Ctx).Model(&types.CSMAction{})
	if status != "" {
		q = q.Where("action_status = ?", status)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
