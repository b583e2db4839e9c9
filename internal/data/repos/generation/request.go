package generation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/pkg/pointers"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// errSuperseded rolls back a transaction whose guarded update matched
// nothing because another actor got there first.
var errSuperseded = errors.New("superseded")

type RequestRepo interface {
	Create(dbc dbctx.Context, req *gen.Request, items []*gen.Item) error
	GetByID(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Request, error)
	ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*gen.Request, error)
	ClaimNextPending(dbc dbctx.Context, instanceID string) (*gen.Request, error)
	RecordItemSuccess(dbc dbctx.Context, requestID, itemID uuid.UUID, doc *gen.Document) (bool, error)
	RecordItemFailure(dbc dbctx.Context, requestID, itemID uuid.UUID, message string) (bool, error)
	Complete(dbc dbctx.Context, id uuid.UUID, retention time.Duration) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, message string) (bool, error)
	Cancel(dbc dbctx.Context, tenantID string, id uuid.UUID) (bool, error)
}

type requestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequestRepo(db *gorm.DB, baseLog *logger.Logger) RequestRepo {
	return &requestRepo{
		db:  db,
		log: baseLog.With("repo", "RequestRepo"),
	}
}

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// Create inserts a request with its items atomically.
func (r *requestRepo) Create(dbc dbctx.Context, req *gen.Request, items []*gen.Item) error {
	return dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(req).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return txx.Create(&items).Error
	})
}

func (r *requestRepo) GetByID(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Request, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := dbc.DB(r.db).Where("id = ?", id)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var req gen.Request
	if err := q.Limit(1).Find(&req).Error; err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, nil
	}
	return &req, nil
}

func (r *requestRepo) ListByBatch(dbc dbctx.Context, batchID uuid.UUID) ([]*gen.Request, error) {
	var out []*gen.Request
	if batchID == uuid.Nil {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// ClaimNextPending moves the oldest PENDING request to IN_PROGRESS on behalf
// of instanceID. Rows locked by a competing claimer are skipped, and the
// guarded update decides the winner; (nil, nil) means nothing was claimed.
func (r *requestRepo) ClaimNextPending(dbc dbctx.Context, instanceID string) (*gen.Request, error) {
	var claimed *gen.Request
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var req gen.Request
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", gen.RequestPending).
			Order("created_at ASC").
			First(&req).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		ts := now()
		res := txx.Model(&gen.Request{}).
			Where("id = ? AND status = ?", req.ID, gen.RequestPending).
			Updates(map[string]interface{}{
				"status":     gen.RequestInProgress,
				"claimed_by": instanceID,
				"claimed_at": ts,
				"started_at": ts,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		req.Status = gen.RequestInProgress
		req.ClaimedBy = pointers.String(instanceID)
		req.ClaimedAt = &ts
		req.StartedAt = &ts
		claimed = &req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordItemSuccess counts a completed item, stores its document and links
// it, in one transaction. The request row is locked before the item row.
// It returns false when the request is no longer IN_PROGRESS or the item was
// already settled; nothing is written in that case.
func (r *requestRepo) RecordItemSuccess(dbc dbctx.Context, requestID, itemID uuid.UUID, doc *gen.Document) (bool, error) {
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := bumpCount(txx, requestID, "completed_count"); err != nil {
			return err
		}
		if err := txx.Create(doc).Error; err != nil {
			return err
		}
		return settleItem(txx, itemID, map[string]interface{}{
			"status":       gen.ItemCompleted,
			"document_id":  doc.ID,
			"completed_at": now(),
		})
	})
	return applied(err)
}

// RecordItemFailure is RecordItemSuccess for a failed item.
func (r *requestRepo) RecordItemFailure(dbc dbctx.Context, requestID, itemID uuid.UUID, message string) (bool, error) {
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := bumpCount(txx, requestID, "failed_count"); err != nil {
			return err
		}
		return settleItem(txx, itemID, map[string]interface{}{
			"status":        gen.ItemFailed,
			"error_message": message,
			"completed_at":  now(),
		})
	})
	return applied(err)
}

func bumpCount(txx *gorm.DB, requestID uuid.UUID, column string) error {
	res := txx.Model(&gen.Request{}).
		Where("id = ? AND status = ? AND completed_count + failed_count < total_count", requestID, gen.RequestInProgress).
		Update(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errSuperseded
	}
	return nil
}

func settleItem(txx *gorm.DB, itemID uuid.UUID, updates map[string]interface{}) error {
	res := txx.Model(&gen.Item{}).
		Where("id = ? AND status = ?", itemID, gen.ItemInProgress).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errSuperseded
	}
	return nil
}

func applied(err error) (bool, error) {
	if errors.Is(err, errSuperseded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Complete finishes an IN_PROGRESS request. Failed items do not make the
// request FAILED; the counts carry them.
func (r *requestRepo) Complete(dbc dbctx.Context, id uuid.UUID, retention time.Duration) (bool, error) {
	ts := now()
	res := dbc.DB(r.db).Model(&gen.Request{}).
		Where("id = ? AND status = ?", id, gen.RequestInProgress).
		Updates(map[string]interface{}{
			"status":       gen.RequestCompleted,
			"completed_at": ts,
			"expires_at":   ts.Add(retention),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed fails an open request and every item it has not settled.
func (r *requestRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, message string) (bool, error) {
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		return closeRequest(txx, id, "", map[string]interface{}{
			"status":        gen.RequestFailed,
			"error_message": message,
		}, message)
	})
	return applied(err)
}

// Cancel stops an open request. Items not yet settled become FAILED and are
// added to failed_count. It returns false when the request is unknown to the
// tenant or already terminal.
func (r *requestRepo) Cancel(dbc dbctx.Context, tenantID string, id uuid.UUID) (bool, error) {
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		return closeRequest(txx, id, tenantID, map[string]interface{}{
			"status": gen.RequestCancelled,
		}, gen.CancelledItemMessage)
	})
	return applied(err)
}

func closeRequest(txx *gorm.DB, id uuid.UUID, tenantID string, updates map[string]interface{}, itemMessage string) error {
	ts := now()
	updates["completed_at"] = ts

	q := txx.Model(&gen.Request{}).Where("id = ? AND status IN ?", id, gen.OpenRequestStatuses)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errSuperseded
	}

	flipped := txx.Model(&gen.Item{}).
		Where("request_id = ? AND status IN ?", id, gen.OpenItemStatuses).
		Updates(map[string]interface{}{
			"status":        gen.ItemFailed,
			"error_message": itemMessage,
			"completed_at":  ts,
		})
	if flipped.Error != nil {
		return flipped.Error
	}
	if flipped.RowsAffected == 0 {
		return nil
	}
	return txx.Model(&gen.Request{}).
		Where("id = ?", id).
		Update("failed_count", gorm.Expr("failed_count + ?", flipped.RowsAffected)).Error
}
