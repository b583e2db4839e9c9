package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/docforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
)

func TestCatalogRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	repo := NewCatalogRepo(db, testutil.Logger(t))

	testutil.SeedTenant(t, ctx, db, "acme")
	tmpl := testutil.SeedTemplate(t, ctx, db, "acme", "invoice")
	en := testutil.SeedVariant(t, ctx, db, tmpl, map[string]string{"locale": "en"}, true)
	de := testutil.SeedVariant(t, ctx, db, tmpl, map[string]string{"locale": "de"}, false)
	v1 := testutil.SeedVersion(t, ctx, db, de, 1, templates.VersionPublished, testutil.SimpleGraph)
	testutil.SeedVersion(t, ctx, db, de, 2, templates.VersionDraft, testutil.SimpleGraph)
	prod := testutil.SeedEnvironment(t, ctx, db, "acme", "prod")
	testutil.Activate(t, ctx, db, prod, v1)
	theme := testutil.SeedTheme(t, ctx, db, "acme", `{"fontFamily":"Georgia"}`)

	if tenant, err := repo.GetTenant(dbc, "acme"); err != nil || tenant == nil {
		t.Fatalf("GetTenant: %+v err=%v", tenant, err)
	}
	if tenant, err := repo.GetTenant(dbc, "nobody"); err != nil || tenant != nil {
		t.Fatalf("GetTenant(missing): %+v err=%v", tenant, err)
	}

	got, err := repo.GetTemplate(dbc, "acme", tmpl.ID)
	if err != nil || got == nil || got.Name != "invoice" {
		t.Fatalf("GetTemplate: %+v err=%v", got, err)
	}
	if other, err := repo.GetTemplate(dbc, "globex", tmpl.ID); err != nil || other != nil {
		t.Fatalf("GetTemplate must be tenant scoped: %+v err=%v", other, err)
	}

	list, err := repo.ListVariants(dbc, "acme", tmpl.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListVariants: len=%d err=%v", len(list), err)
	}
	if v, err := repo.GetVariant(dbc, "acme", en.ID); err != nil || v == nil || v.AttributeMap()["locale"] != "en" {
		t.Fatalf("GetVariant: %+v err=%v", v, err)
	}

	active, err := repo.GetActiveVersion(dbc, "acme", prod.ID, de.ID)
	if err != nil || active == nil || active.ID != v1.ID || active.Status != templates.VersionPublished {
		t.Fatalf("GetActiveVersion: %+v err=%v", active, err)
	}
	if none, err := repo.GetActiveVersion(dbc, "acme", prod.ID, en.ID); err != nil || none != nil {
		t.Fatalf("GetActiveVersion(unactivated): %+v err=%v", none, err)
	}
	if none, err := repo.GetActiveVersion(dbc, "globex", prod.ID, de.ID); err != nil || none != nil {
		t.Fatalf("GetActiveVersion(other tenant): %+v err=%v", none, err)
	}

	if env, err := repo.GetEnvironment(dbc, "acme", prod.ID); err != nil || env == nil {
		t.Fatalf("GetEnvironment: %+v err=%v", env, err)
	}
	if v, err := repo.GetVersion(dbc, "acme", uuid.New()); err != nil || v != nil {
		t.Fatalf("GetVersion(missing): %+v err=%v", v, err)
	}

	src := Source{Repo: repo}
	th, err := src.GetTheme(ctx, "acme", theme.ID)
	if err != nil || th == nil || string(th.DocumentStyles) != `{"fontFamily":"Georgia"}` {
		t.Fatalf("GetTheme: %+v err=%v", th, err)
	}
}
