package playbooks

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type StepExecutionRepo interface {
	Create(dbc dbctx.Context, s *types.StepExecution) error
	ListByExecution(dbc dbctx.Context, executionID uuid.UUID) ([]*types.StepExecution, error)
}

type stepExecutionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepExecutionRepo(db *gorm.DB, baseLog *logger.Logger) StepExecutionRepo {
	return &stepExecutionRepo{
		db:  db,
		log: baseLog.With("repo", "StepExecutionRepo"),
	}
}

func (r *stepExecutionRepo) Create(dbc dbctx.Context, s *types.StepExecution) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(s).Error
}

func (r *stepExecutionRepo) ListByExecution(dbc dbctx.Context, executionID uuid.UUID) ([]*types.StepExecution, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StepExecution
	if err := transaction.WithContext(dbc.Ctx).
		Where("execution_id = ?", executionID).
		Order("step_index ASC").
		Order("started_date ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
