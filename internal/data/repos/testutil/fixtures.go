package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/pkg/pointers"
)

// Now is the current time at the precision Postgres stores.
func Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// SimpleGraph is a one-paragraph document graph that renders {{name}}.
const SimpleGraph = `{
	"root": "r",
	"nodes": {
		"r": {"type": "root", "slots": ["r.c"]},
		"t": {"type": "text", "props": {"text": "Hello {{name}}"}}
	},
	"slots": {"r.c": {"nodeId": "r", "name": "children", "children": ["t"]}}
}`

func SeedTenant(tb testing.TB, ctx context.Context, tx *gorm.DB, id string) *templates.Tenant {
	tb.Helper()
	t := &templates.Tenant{ID: id, Name: id, CreatedAt: Now()}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed tenant: %v", err)
	}
	return t
}

func SeedTemplate(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, name string) *templates.Template {
	tb.Helper()
	now := Now()
	t := &templates.Template{ID: uuid.New(), TenantID: tenantID, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed template: %v", err)
	}
	return t
}

func SeedVariant(tb testing.TB, ctx context.Context, tx *gorm.DB, tmpl *templates.Template, attrs map[string]string, isDefault bool) *templates.Variant {
	tb.Helper()
	raw, _ := json.Marshal(attrs)
	v := &templates.Variant{
		ID:         uuid.New(),
		TenantID:   tmpl.TenantID,
		TemplateID: tmpl.ID,
		Title:      "variant",
		Attributes: datatypes.JSON(raw),
		IsDefault:  isDefault,
		CreatedAt:  Now(),
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed variant: %v", err)
	}
	return v
}

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, variant *templates.Variant, number int, status templates.VersionStatus, graph string) *templates.Version {
	tb.Helper()
	v := &templates.Version{
		ID:            uuid.New(),
		TenantID:      variant.TenantID,
		VariantID:     variant.ID,
		VersionNumber: number,
		Status:        status,
		Content:       datatypes.JSON([]byte(graph)),
		CreatedAt:     Now(),
	}
	if status == templates.VersionPublished {
		v.PublishedAt = pointers.Time(v.CreatedAt)
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return v
}

func SeedEnvironment(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, name string) *templates.Environment {
	tb.Helper()
	e := &templates.Environment{ID: uuid.New(), TenantID: tenantID, Name: name, CreatedAt: Now()}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed environment: %v", err)
	}
	return e
}

func Activate(tb testing.TB, ctx context.Context, tx *gorm.DB, env *templates.Environment, version *templates.Version) {
	tb.Helper()
	a := &templates.EnvironmentActivation{
		TenantID:      env.TenantID,
		EnvironmentID: env.ID,
		VariantID:     version.VariantID,
		VersionID:     version.ID,
		ActivatedAt:   Now(),
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("activate version: %v", err)
	}
}

func SeedTheme(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID, docStyles string) *templates.Theme {
	tb.Helper()
	now := Now()
	t := &templates.Theme{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Name:           "theme",
		DocumentStyles: datatypes.JSON([]byte(docStyles)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed theme: %v", err)
	}
	return t
}

// SeedRequest inserts a PENDING request with one item per data payload, all
// rendering version.
func SeedRequest(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID string, version *templates.Version, templateID uuid.UUID, createdAt time.Time, payloads ...string) (*gen.Request, []*gen.Item) {
	tb.Helper()
	req := &gen.Request{
		ID:         uuid.New(),
		TenantID:   tenantID,
		JobType:    gen.JobTypeSingle,
		Status:     gen.RequestPending,
		TotalCount: len(payloads),
		CreatedAt:  createdAt,
	}
	if len(payloads) > 1 {
		req.JobType = gen.JobTypeBatch
	}
	items := make([]*gen.Item, 0, len(payloads))
	for i, p := range payloads {
		items = append(items, &gen.Item{
			ID:         uuid.New(),
			RequestID:  req.ID,
			Position:   i,
			TemplateID: templateID,
			VersionID:  pointers.Ptr(version.ID),
			Data:       datatypes.JSON([]byte(p)),
			Status:     gen.ItemPending,
			CreatedAt:  createdAt,
		})
	}
	if err := tx.WithContext(ctx).Create(req).Error; err != nil {
		tb.Fatalf("seed request: %v", err)
	}
	if len(items) > 0 {
		if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
			tb.Fatalf("seed items: %v", err)
		}
	}
	return req, items
}
