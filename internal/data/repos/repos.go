package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/data/repos/catalog"
	"github.com/yungbote/docforge-backend/internal/data/repos/generation"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

type RequestRepo = generation.RequestRepo
type ItemRepo = generation.ItemRepo
type DocumentRepo = generation.DocumentRepo
type BatchRepo = generation.BatchRepo

type CatalogRepo = catalog.CatalogRepo

func NewRequestRepo(db *gorm.DB, baseLog *logger.Logger) RequestRepo {
	return generation.NewRequestRepo(db, baseLog)
}
func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return generation.NewItemRepo(db, baseLog)
}
func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return generation.NewDocumentRepo(db, baseLog)
}
func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return generation.NewBatchRepo(db, baseLog)
}
func NewCatalogRepo(db *gorm.DB, baseLog *logger.Logger) CatalogRepo {
	return catalog.NewCatalogRepo(db, baseLog)
}

// Repos is every repository the service wires.
type Repos struct {
	Requests  RequestRepo
	Items     ItemRepo
	Documents DocumentRepo
	Batches   BatchRepo
	Catalog   CatalogRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) Repos {
	return Repos{
		Requests:  NewRequestRepo(db, baseLog),
		Items:     NewItemRepo(db, baseLog),
		Documents: NewDocumentRepo(db, baseLog),
		Batches:   NewBatchRepo(db, baseLog),
		Catalog:   NewCatalogRepo(db, baseLog),
	}
}
