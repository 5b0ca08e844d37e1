package playbooks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type ExecutionFilter struct {
	Status     string
	CustomerID uuid.UUID
	PlaybookID uuid.UUID
	Limit      int
	Offset     int
}

type ExecutionStats struct {
	Total      int64 `json:"total_executions"`
	Successful int64 `json:"successful_executions"`
	Active     int64 `json:"active_executions"`
	Paused     int64 `json:"paused_executions"`
	Failed     int64 `json:"failed_executions"`
}

type ExecutionRepo interface {
	Create(dbc dbctx.Context, e *types.PlaybookExecution) error
	GetByID(dbc dbctx.Context, id uuid.UUID, withSteps bool) (*types.PlaybookExecution, error)
	HasActive(dbc dbctx.Context, customerID, playbookID uuid.UUID) (bool, error)
	ActivePlaybookIDs(dbc dbctx.Context, customerID uuid.UUID) ([]uuid.UUID, error)
	ListDueIDs(dbc dbctx.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ClaimDue(dbc dbctx.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error)
	Release(dbc dbctx.Context, id uuid.UUID) error
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, status string, updates map[string]interface{}) (bool, error)
	UpdateFieldsIfIdle(dbc dbctx.Context, id uuid.UUID, status string, now time.Time, updates map[string]interface{}) (bool, error)
	List(dbc dbctx.Context, f ExecutionFilter) ([]*types.PlaybookExecution, int64, error)
	Stats(dbc dbctx.Context, playbookID uuid.UUID) (ExecutionStats, error)
}

type executionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionRepo {
	return &executionRepo{
		db:  db,
		log: baseLog.With("repo", "ExecutionRepo"),
	}
}

func (r *executionRepo) Create(dbc dbctx.Context, e *types.PlaybookExecution) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(e).Error
}

func (r *executionRepo) GetByID(dbc dbctx.Context, id uuid.UUID, withSteps bool) (*types.PlaybookExecution, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(dbc.Ctx)
	if withSteps {
		q = q.Preload("StepRuns", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_index ASC").Order("started_date ASC")
		})
	}
	var out types.PlaybookExecution
	if err := q.Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *executionRepo) HasActive(dbc dbctx.Context, customerID, playbookID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("customer_id = ? AND playbook_id = ? AND status = ?", customerID, playbookID, pb.ExecutionActive).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *executionRepo) ActivePlaybookIDs(dbc dbctx.Context, customerID uuid.UUID) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("customer_id = ? AND status = ?", customerID, pb.ExecutionActive).
		Distinct().
		Pluck("playbook_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListDueIDs returns active executions whose next step is due, oldest first.
// Executions held by an unexpired lease are skipped.
func (r *executionRepo) ListDueIDs(dbc dbctx.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 200
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("status = ? AND next_step_date IS NOT NULL AND next_step_date <= ?", pb.ExecutionActive, now).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Order("next_step_date ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ClaimDue takes a lease on a due execution. Only one caller can win for a
// given lease window; the rest see false.
func (r *executionRepo) ClaimDue(dbc dbctx.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("id = ? AND status = ? AND next_step_date IS NOT NULL AND next_step_date <= ?", id, pb.ExecutionActive, now).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		UpdateColumn("locked_until", now.Add(lease))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *executionRepo) Release(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("id = ?", id).
		UpdateColumn("locked_until", nil).Error
}

// UpdateFieldsIfStatus applies updates only while the row is in status.
func (r *executionRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, status string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("id = ? AND status = ?", id, status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateFieldsIfIdle is UpdateFieldsIfStatus that also refuses while a step
// holds an unexpired lease on the row.
func (r *executionRepo) UpdateFieldsIfIdle(dbc dbctx.Context, id uuid.UUID, status string, now time.Time, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = now
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.PlaybookExecution{}).
		Where("id = ? AND status = ?", id, status).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *executionRepo) List(dbc dbctx.Context, f ExecutionFilter) ([]*types.PlaybookExecution, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.PlaybookExecution{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CustomerID != uuid.Nil {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if f.PlaybookID != uuid.Nil {
		q = q.Where("playbook_id = ?", f.PlaybookID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []*types.PlaybookExecution
	if err := q.Order("started_date DESC").Order("id ASC").
		Limit(limit).
		Offset(f.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type statusCount struct {
	Status  string
	Success *bool
	Total   int64
}

// Stats aggregates execution outcomes. A nil playbookID covers all playbooks.
func (r *executionRepo) Stats(dbc dbctx.Context, playbookID uuid.UUID) (ExecutionStats, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.PlaybookExecution{})
	if playbookID != uuid.Nil {
		q = q.Where("playbook_id = ?", playbookID)
	}
	var rows []statusCount
	if err := q.Select("status, success, COUNT(*) AS total").
		Group("status, success").
		Scan(&rows).Error; err != nil {
		return ExecutionStats{}, err
	}
	var out ExecutionStats
	for _, row := range rows {
		out.Total += row.Total
		switch row.Status {
		case pb.ExecutionActive:
			out.Active += row.Total
		case pb.ExecutionPaused:
			out.Paused += row.Total
		case pb.ExecutionFailed:
			out.Failed += row.Total
		case pb.ExecutionCompleted:
			if row.Success != nil && *row.Success {
				out.Successful += row.Total
			}
		}
	}
	return out, nil
}

// SuccessRate is successful/total as a percentage rounded to one decimal.
func (s ExecutionStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	v := float64(s.Successful) / float64(s.Total) * 100
	return float64(int64(v*10+0.5)) / 10
}
