package generation

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type DocumentRepo interface {
	// GetByID loads a document; content is included only when withContent is set.
	GetByID(dbc dbctx.Context, tenantID string, id uuid.UUID, withContent bool) (*gen.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentRepo"),
	}
}

func (r *documentRepo) GetByID(dbc dbctx.Context, tenantID string, id uuid.UUID, withContent bool) (*gen.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := dbc.DB(r.db).Where("id = ? AND tenant_id = ?", id, tenantID)
	if !withContent {
		q = q.Omit("content")
	}
	var doc gen.Document
	if err := q.Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}
