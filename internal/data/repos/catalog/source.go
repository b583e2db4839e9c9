package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
)

// Source adapts a CatalogRepo to the context-only read contracts the
// generation pipeline and style resolver consume.
type Source struct {
	Repo CatalogRepo
}

func (s Source) GetTenant(ctx context.Context, tenantID string) (*templates.Tenant, error) {
	return s.Repo.GetTenant(dbctx.New(ctx), tenantID)
}

func (s Source) GetTemplate(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Template, error) {
	return s.Repo.GetTemplate(dbctx.New(ctx), tenantID, id)
}

func (s Source) GetVariant(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Variant, error) {
	return s.Repo.GetVariant(dbctx.New(ctx), tenantID, id)
}

func (s Source) ListVariants(ctx context.Context, tenantID string, templateID uuid.UUID) ([]*templates.Variant, error) {
	return s.Repo.ListVariants(dbctx.New(ctx), tenantID, templateID)
}

func (s Source) GetVersion(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Version, error) {
	return s.Repo.GetVersion(dbctx.New(ctx), tenantID, id)
}

func (s Source) GetActiveVersion(ctx context.Context, tenantID string, environmentID, variantID uuid.UUID) (*templates.Version, error) {
	return s.Repo.GetActiveVersion(dbctx.New(ctx), tenantID, environmentID, variantID)
}

func (s Source) GetTheme(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Theme, error) {
	return s.Repo.GetTheme(dbctx.New(ctx), tenantID, id)
}
