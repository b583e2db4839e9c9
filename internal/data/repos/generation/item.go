package generation

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type ItemRepo interface {
	ListByRequest(dbc dbctx.Context, requestID uuid.UUID) ([]*gen.Item, error)
	ClaimNextPending(dbc dbctx.Context, requestID uuid.UUID) (*gen.Item, error)
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{
		db:  db,
		log: baseLog.With("repo", "ItemRepo"),
	}
}

func (r *itemRepo) ListByRequest(dbc dbctx.Context, requestID uuid.UUID) ([]*gen.Item, error) {
	var out []*gen.Item
	err := dbc.DB(r.db).
		Where("request_id = ?", requestID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

// ClaimNextPending marks the lowest-positioned PENDING item of a request
// IN_PROGRESS and returns it; (nil, nil) when none is left.
func (r *itemRepo) ClaimNextPending(dbc dbctx.Context, requestID uuid.UUID) (*gen.Item, error) {
	var claimed *gen.Item
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var item gen.Item
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("request_id = ? AND status = ?", requestID, gen.ItemPending).
			Order("position ASC").
			First(&item).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		ts := now()
		res := txx.Model(&gen.Item{}).
			Where("id = ? AND status = ?", item.ID, gen.ItemPending).
			Updates(map[string]interface{}{
				"status":     gen.ItemInProgress,
				"started_at": ts,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		item.Status = gen.ItemInProgress
		item.StartedAt = &ts
		claimed = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
