package customers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type ActivityRepo interface {
	Create(dbc dbctx.Context, a *types.CustomerActivity) error
	ListSince(dbc dbctx.Context, customerID uuid.UUID, since time.Time) ([]types.CustomerActivity, error)
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{
		db:  db,
		log: baseLog.With("repo", "ActivityRepo"),
	}
}

func (r *activityRepo) Create(dbc dbctx.Context, a *types.CustomerActivity) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(a).Error
}

func (r *activityRepo) ListSince(dbc dbctx.Context, customerID uuid.UUID, since time.Time) ([]types.CustomerActivity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.CustomerActivity
	if customerID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where(`customer_id = ? AND "timestamp" >= ?`, customerID, since).
		Order(`"timestamp" DESC`).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
