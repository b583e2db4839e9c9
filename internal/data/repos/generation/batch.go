package generation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type BatchRepo interface {
	Create(dbc dbctx.Context, batch *gen.Batch, requests []*gen.Request, items []*gen.Item) error
	GetByID(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Batch, error)
	Refresh(dbc dbctx.Context, id uuid.UUID) (*gen.Batch, error)
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{
		db:  db,
		log: baseLog.With("repo", "BatchRepo"),
	}
}

// Create inserts a batch with its member requests and their items atomically.
func (r *batchRepo) Create(dbc dbctx.Context, batch *gen.Batch, requests []*gen.Request, items []*gen.Item) error {
	return dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(batch).Error; err != nil {
			return err
		}
		if len(requests) == 0 {
			return nil
		}
		if err := txx.Create(&requests).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return txx.Create(&items).Error
	})
}

func (r *batchRepo) GetByID(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Batch, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var b gen.Batch
	if err := dbc.DB(r.db).Where("id = ? AND tenant_id = ?", id, tenantID).Limit(1).Find(&b).Error; err != nil {
		return nil, err
	}
	if b.ID == uuid.Nil {
		return nil, nil
	}
	return &b, nil
}

type batchTotals struct {
	Requests  int
	Completed int
	Failed    int
	OpenCount int
}

// Refresh recomputes a batch's counts from its member requests. Once no
// member is open, completed_at is stamped; an earlier stamp is never moved.
func (r *batchRepo) Refresh(dbc dbctx.Context, id uuid.UUID) (*gen.Batch, error) {
	var out gen.Batch
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var t batchTotals
		if err := txx.Model(&gen.Request{}).
			Select(`COUNT(*) AS requests,
				COALESCE(SUM(completed_count), 0) AS completed,
				COALESCE(SUM(failed_count), 0) AS failed,
				COALESCE(SUM(CASE WHEN status IN ? THEN 1 ELSE 0 END), 0) AS open_count`, gen.OpenRequestStatuses).
			Where("batch_id = ?", id).
			Scan(&t).Error; err != nil {
			return err
		}
		if err := txx.Model(&gen.Batch{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"total_requests":  t.Requests,
				"completed_count": t.Completed,
				"failed_count":    t.Failed,
			}).Error; err != nil {
			return err
		}
		if t.OpenCount == 0 {
			if err := txx.Model(&gen.Batch{}).
				Where("id = ? AND completed_at IS NULL", id).
				Update("completed_at", now()).Error; err != nil {
				return err
			}
		}
		return txx.Where("id = ?", id).Limit(1).Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
