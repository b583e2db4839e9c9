package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// CatalogRepo reads the template catalog. Writes belong to the authoring
// service. Every lookup is tenant scoped and a missing row is (nil, nil).
type CatalogRepo interface {
	GetTenant(dbc dbctx.Context, tenantID string) (*templates.Tenant, error)
	GetTemplate(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Template, error)
	GetVariant(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Variant, error)
	ListVariants(dbc dbctx.Context, tenantID string, templateID uuid.UUID) ([]*templates.Variant, error)
	GetVersion(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Version, error)
	GetActiveVersion(dbc dbctx.Context, tenantID string, environmentID, variantID uuid.UUID) (*templates.Version, error)
	GetEnvironment(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Environment, error)
	GetTheme(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Theme, error)
}

type catalogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCatalogRepo(db *gorm.DB, baseLog *logger.Logger) CatalogRepo {
	return &catalogRepo{
		db:  db,
		log: baseLog.With("repo", "CatalogRepo"),
	}
}

func (r *catalogRepo) GetTenant(dbc dbctx.Context, tenantID string) (*templates.Tenant, error) {
	if tenantID == "" {
		return nil, nil
	}
	var t templates.Tenant
	if err := dbc.DB(r.db).Where("id = ?", tenantID).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, nil
	}
	return &t, nil
}

func (r *catalogRepo) GetTemplate(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Template, error) {
	var t templates.Template
	if err := r.scoped(dbc, tenantID, id).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *catalogRepo) GetVariant(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Variant, error) {
	var v templates.Variant
	if err := r.scoped(dbc, tenantID, id).Find(&v).Error; err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

func (r *catalogRepo) ListVariants(dbc dbctx.Context, tenantID string, templateID uuid.UUID) ([]*templates.Variant, error) {
	var out []*templates.Variant
	err := dbc.DB(r.db).
		Where("tenant_id = ? AND template_id = ?", tenantID, templateID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *catalogRepo) GetVersion(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Version, error) {
	var v templates.Version
	if err := r.scoped(dbc, tenantID, id).Find(&v).Error; err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

// GetActiveVersion returns the version an environment has activated for a
// variant, whatever its status; callers decide whether it is usable.
func (r *catalogRepo) GetActiveVersion(dbc dbctx.Context, tenantID string, environmentID, variantID uuid.UUID) (*templates.Version, error) {
	var v templates.Version
	err := dbc.DB(r.db).
		Table(templates.Version{}.TableName()+" AS v").
		Select("v.*").
		Joins("JOIN "+templates.EnvironmentActivation{}.TableName()+" AS a ON a.version_id = v.id AND a.tenant_id = v.tenant_id").
		Where("a.tenant_id = ? AND a.environment_id = ? AND a.variant_id = ?", tenantID, environmentID, variantID).
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == uuid.Nil {
		return nil, nil
	}
	return &v, nil
}

func (r *catalogRepo) GetEnvironment(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Environment, error) {
	var e templates.Environment
	if err := r.scoped(dbc, tenantID, id).Find(&e).Error; err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *catalogRepo) GetTheme(dbc dbctx.Context, tenantID string, id uuid.UUID) (*templates.Theme, error) {
	var t templates.Theme
	if err := r.scoped(dbc, tenantID, id).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *catalogRepo) scoped(dbc dbctx.Context, tenantID string, id uuid.UUID) *gorm.DB {
	return dbc.DB(r.db).Where("id = ? AND tenant_id = ?", id, tenantID).Limit(1)
}
