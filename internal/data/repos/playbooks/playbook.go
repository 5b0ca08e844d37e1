package playbooks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type PlaybookFilter struct {
	Category   string
	ActiveOnly bool
}

type PlaybookRepo interface {
	Create(dbc dbctx.Context, p *types.Playbook) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Playbook, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Playbook, error)
	GetByName(dbc dbctx.Context, name string) (*types.Playbook, error)
	List(dbc dbctx.Context, f PlaybookFilter) ([]*types.Playbook, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	IncrementExecutionCount(dbc dbctx.Context, id uuid.UUID) error
	Count(dbc dbctx.Context, activeOnly bool) (int64, error)
}

type playbookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlaybookRepo(db *gorm.DB, baseLog *logger.Logger) PlaybookRepo {
	return &playbookRepo{
		db:  db,
		log: baseLog.With("repo", "PlaybookRepo"),
	}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("step_order ASC")
}

// Create inserts the playbook and its steps in one statement batch.
func (r *playbookRepo) Create(dbc dbctx.Context, p *types.Playbook) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(p).Error
}

func (r *playbookRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Playbook, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Playbook
	if err := transaction.WithContext(dbc.Ctx).
		Preload("Steps", orderedSteps).
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

func (r *playbookRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Playbook, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Playbook
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Preload("Steps", orderedSteps).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *playbookRepo) GetByName(dbc dbctx.Context, name string) (*types.Playbook, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" {
		return nil, nil
	}
	var out types.Playbook
	if err := transaction.WithContext(dbc.Ctx).
		Preload("Steps", orderedSteps).
		Where("name = ?", name).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

// List returns playbooks by descending priority, then name.
func (r *playbookRepo) List(dbc dbctx.Context, f PlaybookFilter) ([]*types.Playbook, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Preload("Steps", orderedSteps)
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	var out []*types.Playbook
	if err := q.Order("priority DESC").Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *playbookRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Playbook{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *playbookRepo) IncrementExecutionCount(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Playbook{}).
		Where("id = ?", id).
		UpdateColumn("execution_count", gorm.Expr("execution_count + 1")).Error
}

func (r *playbookRepo) Count(dbc dbctx.Context, activeOnly bool) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Playbook{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
