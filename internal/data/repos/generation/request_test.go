package generation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/data/repos/testutil"
	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
)

type seeded struct {
	db      *gorm.DB
	tmpl    *templates.Template
	version *templates.Version
}

func seed(t *testing.T) seeded {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	testutil.SeedTenant(t, ctx, db, "acme")
	tmpl := testutil.SeedTemplate(t, ctx, db, "acme", "letter")
	variant := testutil.SeedVariant(t, ctx, db, tmpl, nil, true)
	version := testutil.SeedVersion(t, ctx, db, variant, 1, templates.VersionPublished, testutil.SimpleGraph)
	return seeded{db: db, tmpl: tmpl, version: version}
}

func (s seeded) request(t *testing.T, age time.Duration, payloads ...string) (*gen.Request, []*gen.Item) {
	t.Helper()
	return testutil.SeedRequest(t, context.Background(), s.db, "acme", s.version, s.tmpl.ID, testutil.Now().Add(-age), payloads...)
}

func (s seeded) document() *gen.Document {
	return &gen.Document{
		ID:          uuid.New(),
		CreatedAt:   testutil.Now(),
		TenantID:    "acme",
		TemplateID:  s.tmpl.ID,
		VariantID:   s.version.VariantID,
		VersionID:   s.version.ID,
		Filename:    "a.pdf",
		ContentType: gen.ContentTypePDF,
		SizeBytes:   4,
		PageCount:   1,
		Content:     []byte("%PDF"),
	}
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) *gen.Request {
	t.Helper()
	req, err := NewRequestRepo(db, testutil.Logger(t)).GetByID(dbctx.New(context.Background()), "", id)
	if err != nil || req == nil {
		t.Fatalf("reload request: req=%v err=%v", req, err)
	}
	return req
}

func TestClaimNextPendingTakesOldestOnce(t *testing.T) {
	s := seed(t)
	dbc := dbctx.New(context.Background())
	repo := NewRequestRepo(s.db, testutil.Logger(t))

	newer, _ := s.request(t, time.Minute, `{}`)
	older, _ := s.request(t, time.Hour, `{}`)

	first, err := repo.ClaimNextPending(dbc, "worker-a")
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if first == nil || first.ID != older.ID {
		t.Fatalf("expected oldest request %s, got %+v", older.ID, first)
	}
	if first.Status != gen.RequestInProgress || first.ClaimedBy == nil || *first.ClaimedBy != "worker-a" {
		t.Fatalf("claim not reflected on returned row: %+v", first)
	}

	second, err := repo.ClaimNextPending(dbc, "worker-b")
	if err != nil || second == nil || second.ID != newer.ID {
		t.Fatalf("second claim: got=%+v err=%v", second, err)
	}

	none, err := repo.ClaimNextPending(dbc, "worker-c")
	if err != nil || none != nil {
		t.Fatalf("expected no claim, got=%+v err=%v", none, err)
	}

	stored := reload(t, s.db, older.ID)
	if stored.Status != gen.RequestInProgress || stored.StartedAt == nil || stored.ClaimedAt == nil {
		t.Fatalf("stored claim: %+v", stored)
	}
}

func TestConcurrentClaimersNeverShareARequest(t *testing.T) {
	s := seed(t)
	repo := NewRequestRepo(s.db, testutil.Logger(t))
	const n = 6
	for i := 0; i < n; i++ {
		s.request(t, time.Duration(i)*time.Second, `{}`)
	}

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]string{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				req, err := repo.ClaimNextPending(dbctx.New(context.Background()), worker)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if req == nil {
					return
				}
				mu.Lock()
				if prev, dup := seen[req.ID]; dup {
					t.Errorf("request %s claimed by %s and %s", req.ID, prev, worker)
				}
				seen[req.ID] = worker
				mu.Unlock()
			}
		}(uuid.NewString())
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d distinct claims, got %d", n, len(seen))
	}
}

func TestRecordItemOutcomesAndComplete(t *testing.T) {
	s := seed(t)
	dbc := dbctx.New(context.Background())
	log := testutil.Logger(t)
	requests := NewRequestRepo(s.db, log)
	items := NewItemRepo(s.db, log)
	docs := NewDocumentRepo(s.db, log)

	req, _ := s.request(t, time.Minute, `{"name":"a"}`, `{"name":"b"}`)
	if _, err := requests.ClaimNextPending(dbc, "w"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	first, err := items.ClaimNextPending(dbc, req.ID)
	if err != nil || first == nil || first.Position != 0 || first.Status != gen.ItemInProgress {
		t.Fatalf("first item: %+v err=%v", first, err)
	}
	doc := s.document()
	ok, err := requests.RecordItemSuccess(dbc, req.ID, first.ID, doc)
	if err != nil || !ok {
		t.Fatalf("RecordItemSuccess: ok=%v err=%v", ok, err)
	}
	// settling the same item twice is a no-op
	if ok, err := requests.RecordItemFailure(dbc, req.ID, first.ID, "late"); err != nil || ok {
		t.Fatalf("second settle: ok=%v err=%v", ok, err)
	}

	second, err := items.ClaimNextPending(dbc, req.ID)
	if err != nil || second == nil || second.Position != 1 {
		t.Fatalf("second item: %+v err=%v", second, err)
	}
	if ok, err := requests.RecordItemFailure(dbc, req.ID, second.ID, "boom"); err != nil || !ok {
		t.Fatalf("RecordItemFailure: ok=%v err=%v", ok, err)
	}
	if next, err := items.ClaimNextPending(dbc, req.ID); err != nil || next != nil {
		t.Fatalf("expected no items left, got %+v err=%v", next, err)
	}

	if ok, err := requests.Complete(dbc, req.ID, 48*time.Hour); err != nil || !ok {
		t.Fatalf("Complete: ok=%v err=%v", ok, err)
	}
	if ok, _ := requests.Complete(dbc, req.ID, time.Hour); ok {
		t.Fatalf("Complete must only apply once")
	}

	got := reload(t, s.db, req.ID)
	if got.Status != gen.RequestCompleted || got.CompletedCount != 1 || got.FailedCount != 1 {
		t.Fatalf("final request: %+v", got)
	}
	if got.CompletedAt == nil || got.ExpiresAt == nil || got.ExpiresAt.Sub(*got.CompletedAt) != 48*time.Hour {
		t.Fatalf("expiry not set from retention: %+v", got)
	}

	list, err := items.ListByRequest(dbc, req.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListByRequest: len=%d err=%v", len(list), err)
	}
	if list[0].Status != gen.ItemCompleted || list[0].DocumentID == nil || *list[0].DocumentID != doc.ID {
		t.Fatalf("completed item: %+v", list[0])
	}
	if list[1].Status != gen.ItemFailed || list[1].ErrorMessage == nil || *list[1].ErrorMessage != "boom" {
		t.Fatalf("failed item: %+v", list[1])
	}

	meta, err := docs.GetByID(dbc, "acme", doc.ID, false)
	if err != nil || meta == nil || len(meta.Content) != 0 || meta.SizeBytes != 4 {
		t.Fatalf("document meta: %+v err=%v", meta, err)
	}
	full, err := docs.GetByID(dbc, "acme", doc.ID, true)
	if err != nil || full == nil || string(full.Content) != "%PDF" {
		t.Fatalf("document content: %+v err=%v", full, err)
	}
	if other, err := docs.GetByID(dbc, "globex", doc.ID, true); err != nil || other != nil {
		t.Fatalf("document must be tenant scoped: %+v err=%v", other, err)
	}
}

func TestCancelRacesWithInFlightItem(t *testing.T) {
	s := seed(t)
	dbc := dbctx.New(context.Background())
	log := testutil.Logger(t)
	requests := NewRequestRepo(s.db, log)
	items := NewItemRepo(s.db, log)

	req, _ := s.request(t, time.Minute, `{}`, `{}`, `{}`)
	if _, err := requests.ClaimNextPending(dbc, "w"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	inFlight, err := items.ClaimNextPending(dbc, req.ID)
	if err != nil || inFlight == nil {
		t.Fatalf("claim item: %+v err=%v", inFlight, err)
	}

	if ok, err := requests.Cancel(dbc, "globex", req.ID); err != nil || ok {
		t.Fatalf("cancel from another tenant: ok=%v err=%v", ok, err)
	}
	if ok, err := requests.Cancel(dbc, "acme", req.ID); err != nil || !ok {
		t.Fatalf("Cancel: ok=%v err=%v", ok, err)
	}
	if ok, err := requests.Cancel(dbc, "acme", req.ID); err != nil || ok {
		t.Fatalf("second Cancel: ok=%v err=%v", ok, err)
	}

	ok, err := requests.RecordItemSuccess(dbc, req.ID, inFlight.ID, s.document())
	if err != nil || ok {
		t.Fatalf("success after cancel must be superseded: ok=%v err=%v", ok, err)
	}

	got := reload(t, s.db, req.ID)
	if got.Status != gen.RequestCancelled || got.CompletedCount != 0 || got.FailedCount != 3 {
		t.Fatalf("cancelled request: %+v", got)
	}
	list, _ := items.ListByRequest(dbc, req.ID)
	for _, it := range list {
		if it.Status != gen.ItemFailed || it.ErrorMessage == nil || *it.ErrorMessage != gen.CancelledItemMessage {
			t.Fatalf("item after cancel: %+v", it)
		}
	}
	var docs int64
	s.db.Model(&gen.Document{}).Count(&docs)
	if docs != 0 {
		t.Fatalf("superseded success must not store a document, found %d", docs)
	}
}

func TestMarkFailedSettlesOpenItems(t *testing.T) {
	s := seed(t)
	dbc := dbctx.New(context.Background())
	requests := NewRequestRepo(s.db, testutil.Logger(t))

	req, _ := s.request(t, time.Minute, `{}`, `{}`)
	if ok, err := requests.MarkFailed(dbc, req.ID, "dispatch failed"); err != nil || !ok {
		t.Fatalf("MarkFailed: ok=%v err=%v", ok, err)
	}
	got := reload(t, s.db, req.ID)
	if got.Status != gen.RequestFailed || got.FailedCount != 2 || got.ErrorMessage == nil || *got.ErrorMessage != "dispatch failed" {
		t.Fatalf("failed request: %+v", got)
	}
	if got.CompletedCount+got.FailedCount > got.TotalCount {
		t.Fatalf("counts exceed total: %+v", got)
	}
	if ok, _ := requests.Cancel(dbc, "acme", req.ID); ok {
		t.Fatalf("a failed request cannot be cancelled")
	}
}

func TestCancelAfterCompleteIsRejected(t *testing.T) {
	s := seed(t)
	dbc := dbctx.New(context.Background())
	log := testutil.Logger(t)
	requests := NewRequestRepo(s.db, log)
	items := NewItemRepo(s.db, log)

	req, _ := s.request(t, time.Minute, `{}`)
	if _, err := requests.ClaimNextPending(dbc, "w"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	it, err := items.ClaimNextPending(dbc, req.ID)
	if err != nil || it == nil {
		t.Fatalf("claim item: %+v err=%v", it, err)
	}
	if ok, err := requests.RecordItemSuccess(dbc, req.ID, it.ID, s.document()); err != nil || !ok {
		t.Fatalf("RecordItemSuccess: ok=%v err=%v", ok, err)
	}
	if ok, err := requests.Complete(dbc, req.ID, time.Hour); err != nil || !ok {
		t.Fatalf("Complete: ok=%v err=%v", ok, err)
	}
	before := reload(t, s.db, req.ID)

	ok, err := requests.Cancel(dbc, "acme", req.ID)
	if err != nil || ok {
		t.Fatalf("Cancel after Complete: ok=%v err=%v", ok, err)
	}
	after := reload(t, s.db, req.ID)
	if after.Status != gen.RequestCompleted {
		t.Fatalf("status changed to %s", after.Status)
	}
	if after.CompletedCount != 1 || after.FailedCount != 0 || after.CompletedCount != before.CompletedCount {
		t.Fatalf("counts changed: before=%+v after=%+v", before, after)
	}
	if after.CompletedAt == nil || !after.CompletedAt.Equal(*before.CompletedAt) {
		t.Fatalf("completed_at moved: before=%v after=%v", before.CompletedAt, after.CompletedAt)
	}
	list, _ := items.ListByRequest(dbc, req.ID)
	if len(list) != 1 || list[0].Status != gen.ItemCompleted || list[0].ErrorMessage != nil {
		t.Fatalf("item after rejected cancel: %+v", list)
	}
}

func TestBatchRefreshStampsCompletionOnce(t *testing.T) {
	s := seed(t)
	dbc := dbctx.New(context.Background())
	log := testutil.Logger(t)
	requests := NewRequestRepo(s.db, log)
	batches := NewBatchRepo(s.db, log)

	batch := &gen.Batch{ID: uuid.New(), TenantID: "acme", TotalRequests: 2, CreatedAt: testutil.Now()}
	now := testutil.Now()
	mk := func(age time.Duration) (*gen.Request, *gen.Item) {
		req := &gen.Request{ID: uuid.New(), TenantID: "acme", JobType: gen.JobTypeBatch, Status: gen.RequestPending, TotalCount: 1, BatchID: &batch.ID, CreatedAt: now.Add(-age)}
		it := &gen.Item{ID: uuid.New(), RequestID: req.ID, TemplateID: s.tmpl.ID, VersionID: &s.version.ID, Status: gen.ItemPending, CreatedAt: req.CreatedAt}
		return req, it
	}
	r1, i1 := mk(2 * time.Minute)
	r2, i2 := mk(time.Minute)
	if err := batches.Create(dbc, batch, []*gen.Request{r1, r2}, []*gen.Item{i1, i2}); err != nil {
		t.Fatalf("Create batch: %v", err)
	}

	if _, err := requests.Cancel(dbc, "acme", r1.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	b, err := batches.Refresh(dbc, batch.ID)
	if err != nil || b == nil {
		t.Fatalf("Refresh: %+v err=%v", b, err)
	}
	if b.CompletedAt != nil || b.FailedCount != 1 || b.TotalRequests != 2 {
		t.Fatalf("batch with an open member: %+v", b)
	}

	if _, err := requests.MarkFailed(dbc, r2.ID, "x"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	b, _ = batches.Refresh(dbc, batch.ID)
	if b.CompletedAt == nil || b.FailedCount != 2 {
		t.Fatalf("settled batch: %+v", b)
	}
	stamp := *b.CompletedAt

	b, _ = batches.Refresh(dbc, batch.ID)
	if !b.CompletedAt.Equal(stamp) {
		t.Fatalf("completed_at moved from %v to %v", stamp, *b.CompletedAt)
	}
	members, err := requests.ListByBatch(dbc, batch.ID)
	if err != nil || len(members) != 2 || members[0].ID != r1.ID {
		t.Fatalf("ListByBatch: %d err=%v", len(members), err)
	}
}
