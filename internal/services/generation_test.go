package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/data/repos"
	"github.com/yungbote/docforge-backend/internal/data/repos/testutil"
	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/docforge-backend/internal/pkg/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Close() error { return nil }

type fixture struct {
	db      *gorm.DB
	svc     GenerationService
	events  *recorder
	tenant  string
	tmpl    *templates.Template
	variant *templates.Variant
	draft   *templates.Version
	env     *templates.Environment
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	tenant := "acme"
	testutil.SeedTenant(t, ctx, db, tenant)
	tmpl := testutil.SeedTemplate(t, ctx, db, tenant, "Invoice")
	variant := testutil.SeedVariant(t, ctx, db, tmpl, map[string]string{"lang": "en"}, true)
	draft := testutil.SeedVersion(t, ctx, db, variant, 1, templates.VersionDraft, testutil.SimpleGraph)
	env := testutil.SeedEnvironment(t, ctx, db, tenant, "prod")

	rec := &recorder{}
	log := testutil.Logger(t)
	svc := NewGenerationService(db, log, repos.New(db, log), rec, GenerationConfig{MaxItemsPerRequest: 3})
	return fixture{db: db, svc: svc, events: rec, tenant: tenant, tmpl: tmpl, variant: variant, draft: draft, env: env}
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	f := setup(t)
	dbc := dbctx.New(context.Background())
	name := "invoice-42.pdf"

	req, err := f.svc.Submit(dbc, f.tenant, SubmitInput{Items: []ItemInput{
		{TemplateID: f.tmpl.ID, VersionID: &f.draft.ID, Data: map[string]any{"name": "Ada"}, Filename: &name},
		{TemplateID: f.tmpl.ID, EnvironmentID: &f.env.ID, VariantSelector: &gen.VariantSelector{Required: map[string]string{"lang": "en"}}},
	}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != gen.RequestPending || req.TotalCount != 2 || req.JobType != gen.JobTypeBatch {
		t.Fatalf("unexpected request: %+v", req)
	}

	items, err := f.svc.ListItems(dbc, f.tenant, req.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for i, it := range items {
		if it.Position != i || it.Status != gen.ItemPending || !it.CreatedAt.Equal(req.CreatedAt) {
			t.Fatalf("item %d: %+v", i, it)
		}
	}
	data, err := items[0].DataMap()
	if err != nil || data["name"] != "Ada" {
		t.Fatalf("item data: %v %v", data, err)
	}
	sel, err := items[1].Selector()
	if err != nil || sel == nil || sel.Required["lang"] != "en" {
		t.Fatalf("item selector: %+v %v", sel, err)
	}

	if _, err := f.svc.Get(dbc, "other", req.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("other tenant must not see the request, got %v", err)
	}
}

func TestSubmitRejectsWholeRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)
	archived := testutil.SeedVersion(t, ctx, f.db, f.variant, 2, templates.VersionArchived, testutil.SimpleGraph)
	otherTmpl := testutil.SeedTemplate(t, ctx, f.db, f.tenant, "Letter")
	missing := uuid.New()

	cases := []struct {
		name  string
		items []ItemInput
		field string
	}{
		{"no items", nil, "items"},
		{"too many items", []ItemInput{{}, {}, {}, {}}, "items"},
		{"unknown template", []ItemInput{{TemplateID: missing, VersionID: &f.draft.ID}}, "items[0].template_id"},
		{"both version and environment", []ItemInput{{TemplateID: f.tmpl.ID, VersionID: &f.draft.ID, EnvironmentID: &f.env.ID}}, "items[0].version_id"},
		{"neither version nor environment", []ItemInput{{TemplateID: f.tmpl.ID}}, "items[0].version_id"},
		{"unknown version", []ItemInput{{TemplateID: f.tmpl.ID, VersionID: &missing}}, "items[0].version_id"},
		{"archived version", []ItemInput{{TemplateID: f.tmpl.ID, VersionID: &archived.ID}}, "items[0].version_id"},
		{"version of another template", []ItemInput{{TemplateID: otherTmpl.ID, VersionID: &f.draft.ID}}, "items[0].version_id"},
		{"unknown environment", []ItemInput{{TemplateID: f.tmpl.ID, EnvironmentID: &missing}}, "items[0].environment_id"},
		{"unknown variant", []ItemInput{{TemplateID: f.tmpl.ID, EnvironmentID: &f.env.ID, VariantID: &missing}}, "items[0].variant_id"},
		{"variant and selector", []ItemInput{{TemplateID: f.tmpl.ID, EnvironmentID: &f.env.ID, VariantID: &f.variant.ID, VariantSelector: &gen.VariantSelector{}}}, "items[0].variant_selector"},
		{"second item invalid", []ItemInput{
			{TemplateID: f.tmpl.ID, VersionID: &f.draft.ID},
			{TemplateID: f.tmpl.ID},
		}, "items[1].version_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(dbc, f.tenant, SubmitInput{Items: tc.items})
			var ve *pkgerrors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range ve.Fields {
				found = found || fe.Field == tc.field
			}
			if !found {
				t.Fatalf("expected field %s in %v", tc.field, ve.Fields)
			}
		})
	}

	if n := count(t, f.db, &gen.Request{}); n != 0 {
		t.Fatalf("rejected submissions must persist nothing, found %d requests", n)
	}
	if n := count(t, f.db, &gen.Item{}); n != 0 {
		t.Fatalf("rejected submissions must persist nothing, found %d items", n)
	}
}

func TestSubmitRejectsBrokenDataSchema(t *testing.T) {
	f := setup(t)
	if err := f.db.Model(&templates.Template{}).Where("id = ?", f.tmpl.ID).Update("data_schema", "name: string &").Error; err != nil {
		t.Fatalf("update schema: %v", err)
	}
	_, err := f.svc.Submit(dbctx.New(context.Background()), f.tenant, SubmitInput{Items: []ItemInput{{TemplateID: f.tmpl.ID, VersionID: &f.draft.ID}}})
	var ve *pkgerrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSubmitBatchIsAllOrNothing(t *testing.T) {
	f := setup(t)
	dbc := dbctx.New(context.Background())
	good := SubmitInput{Items: []ItemInput{{TemplateID: f.tmpl.ID, VersionID: &f.draft.ID}}}
	bad := SubmitInput{Items: []ItemInput{{TemplateID: f.tmpl.ID}}}

	if _, _, err := f.svc.SubmitBatch(dbc, f.tenant, BatchInput{Requests: []SubmitInput{good, bad}}); err == nil {
		t.Fatalf("expected validation error")
	}
	if n := count(t, f.db, &gen.Batch{}); n != 0 {
		t.Fatalf("rejected batch persisted %d batches", n)
	}

	batch, requests, err := f.svc.SubmitBatch(dbc, f.tenant, BatchInput{Requests: []SubmitInput{good, good}})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if batch.TotalRequests != 2 || len(requests) != 2 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	for _, r := range requests {
		if r.BatchID == nil || *r.BatchID != batch.ID {
			t.Fatalf("request %s not linked to batch", r.ID)
		}
	}
	got, err := f.svc.GetBatch(dbc, f.tenant, batch.ID)
	if err != nil || got.ID != batch.ID {
		t.Fatalf("GetBatch: %+v %v", got, err)
	}
}

func TestCancel(t *testing.T) {
	f := setup(t)
	dbc := dbctx.New(context.Background())
	batch, requests, err := f.svc.SubmitBatch(dbc, f.tenant, BatchInput{Requests: []SubmitInput{
		{Items: []ItemInput{{TemplateID: f.tmpl.ID, VersionID: &f.draft.ID}, {TemplateID: f.tmpl.ID, VersionID: &f.draft.ID}}},
	}})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	id := requests[0].ID

	ok, err := f.svc.Cancel(dbc, f.tenant, id)
	if err != nil || !ok {
		t.Fatalf("Cancel: ok=%v err=%v", ok, err)
	}
	req, err := f.svc.Get(dbc, f.tenant, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if req.Status != gen.RequestCancelled || req.FailedCount != 2 || req.CompletedAt == nil {
		t.Fatalf("unexpected cancelled request: %+v", req)
	}
	items, err := f.svc.ListItems(dbc, f.tenant, id)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	for _, it := range items {
		if it.Status != gen.ItemFailed || it.ErrorMessage == nil || *it.ErrorMessage != gen.CancelledItemMessage {
			t.Fatalf("item not failed by cancel: %+v", it)
		}
	}
	b, err := f.svc.GetBatch(dbc, f.tenant, batch.ID)
	if err != nil || b.CompletedAt == nil || b.FailedCount != 2 {
		t.Fatalf("batch not finalized: %+v %v", b, err)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != notify.EventCancelled {
		t.Fatalf("expected one cancelled event, got %+v", f.events.events)
	}

	ok, err = f.svc.Cancel(dbc, f.tenant, id)
	if err != nil || ok {
		t.Fatalf("second Cancel must report false: ok=%v err=%v", ok, err)
	}
	if _, err := f.svc.Cancel(dbc, "other", id); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("cross-tenant cancel: %v", err)
	}
}

func TestGetDocument(t *testing.T) {
	f := setup(t)
	dbc := dbctx.New(context.Background())
	doc := &gen.Document{
		ID:          uuid.New(),
		CreatedAt:   testutil.Now(),
		TenantID:    f.tenant,
		TemplateID:  f.tmpl.ID,
		VariantID:   f.variant.ID,
		VersionID:   f.draft.ID,
		Filename:    "a.pdf",
		ContentType: gen.ContentTypePDF,
		SizeBytes:   4,
		PageCount:   1,
		Content:     []byte("%PDF"),
	}
	if err := f.db.Create(doc).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	got, err := f.svc.GetDocument(dbc, f.tenant, doc.ID)
	if err != nil || string(got.Content) != "%PDF" {
		t.Fatalf("GetDocument: %+v %v", got, err)
	}
	if _, err := f.svc.GetDocument(dbc, "other", doc.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("cross-tenant document: %v", err)
	}
}
