package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/data/repos"
	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/modules/datacontract"
	"github.com/yungbote/docforge-backend/internal/notify"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/docforge-backend/internal/pkg/errors"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

const DefaultMaxItemsPerRequest = 500

// ItemInput describes one document to generate. Exactly one of VersionID and
// EnvironmentID must be set. With an environment, the variant is either named
// by VariantID or chosen by VariantSelector at render time.
type ItemInput struct {
	TemplateID      uuid.UUID            `json:"template_id"`
	VariantID       *uuid.UUID           `json:"variant_id,omitempty"`
	VariantSelector *gen.VariantSelector `json:"variant_selector,omitempty"`
	VersionID       *uuid.UUID           `json:"version_id,omitempty"`
	EnvironmentID   *uuid.UUID           `json:"environment_id,omitempty"`
	Data            map[string]any       `json:"data,omitempty"`
	Filename        *string              `json:"filename,omitempty"`
}

type SubmitInput struct {
	Items []ItemInput `json:"items"`
}

type BatchInput struct {
	Requests []SubmitInput `json:"requests"`
}

type GenerationConfig struct {
	MaxItemsPerRequest int
}

type GenerationService interface {
	Submit(dbc dbctx.Context, tenantID string, in SubmitInput) (*gen.Request, error)
	SubmitBatch(dbc dbctx.Context, tenantID string, in BatchInput) (*gen.Batch, []*gen.Request, error)
	Get(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Request, error)
	GetBatch(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Batch, error)
	ListItems(dbc dbctx.Context, tenantID string, requestID uuid.UUID) ([]*gen.Item, error)
	Cancel(dbc dbctx.Context, tenantID string, id uuid.UUID) (bool, error)
	GetDocument(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Document, error)
}

type generationService struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    repos.Repos
	notifier notify.JobNotifier
	cfg      GenerationConfig
}

func NewGenerationService(db *gorm.DB, baseLog *logger.Logger, r repos.Repos, notifier notify.JobNotifier, cfg GenerationConfig) GenerationService {
	if cfg.MaxItemsPerRequest <= 0 {
		cfg.MaxItemsPerRequest = DefaultMaxItemsPerRequest
	}
	if notifier == nil {
		notifier = notify.Nop()
	}
	return &generationService{
		db:       db,
		log:      baseLog.With("service", "GenerationService"),
		repos:    r,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Submit validates every item and only then inserts the request and its
// items in one transaction. Nothing is persisted when any item is rejected.
func (s *generationService) Submit(dbc dbctx.Context, tenantID string, in SubmitInput) (*gen.Request, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", pkgerrors.ErrInvalidArgument)
	}
	v := newValidator(dbc, s.repos.Catalog, tenantID)
	s.validateRequest(v, "", in)
	if err := v.err(); err != nil {
		return nil, err
	}

	req, items, err := buildRequest(tenantID, in, now())
	if err != nil {
		return nil, err
	}
	if err := s.repos.Requests.Create(dbc, req, items); err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	s.log.WithContext(dbc.Ctx).Info("Generation request submitted", "tenant_id", tenantID, "request_id", req.ID, "items", req.TotalCount)
	return req, nil
}

// SubmitBatch is Submit for several requests at once; the batch and all of
// its requests are inserted together or not at all.
func (s *generationService) SubmitBatch(dbc dbctx.Context, tenantID string, in BatchInput) (*gen.Batch, []*gen.Request, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("%w: missing tenant", pkgerrors.ErrInvalidArgument)
	}
	v := newValidator(dbc, s.repos.Catalog, tenantID)
	if len(in.Requests) == 0 {
		v.ve.Add("requests", "at least one request is required")
	}
	for i, r := range in.Requests {
		s.validateRequest(v, fmt.Sprintf("requests[%d].", i), r)
	}
	if err := v.err(); err != nil {
		return nil, nil, err
	}

	ts := now()
	batch := &gen.Batch{
		ID:            uuid.New(),
		TenantID:      tenantID,
		TotalRequests: len(in.Requests),
		CreatedAt:     ts,
	}
	var (
		requests []*gen.Request
		items    []*gen.Item
	)
	for _, r := range in.Requests {
		req, reqItems, err := buildRequest(tenantID, r, ts)
		if err != nil {
			return nil, nil, err
		}
		req.BatchID = &batch.ID
		requests = append(requests, req)
		items = append(items, reqItems...)
	}
	if err := s.repos.Batches.Create(dbc, batch, requests, items); err != nil {
		return nil, nil, fmt.Errorf("create generation batch: %w", err)
	}
	s.log.WithContext(dbc.Ctx).Info("Generation batch submitted", "tenant_id", tenantID, "batch_id", batch.ID, "requests", len(requests))
	return batch, requests, nil
}

func (s *generationService) validateRequest(v *validator, prefix string, in SubmitInput) {
	switch {
	case len(in.Items) == 0:
		v.ve.Add(prefix+"items", "at least one item is required")
	case len(in.Items) > s.cfg.MaxItemsPerRequest:
		v.ve.Add(prefix+"items", "at most %d items are allowed, got %d", s.cfg.MaxItemsPerRequest, len(in.Items))
	}
	for i, it := range in.Items {
		v.item(fmt.Sprintf("%sitems[%d].", prefix, i), it)
	}
}

func (s *generationService) Get(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Request, error) {
	req, err := s.repos.Requests.GetByID(dbc, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("generation request %s: %w", id, pkgerrors.ErrNotFound)
	}
	return req, nil
}

func (s *generationService) GetBatch(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Batch, error) {
	b, err := s.repos.Batches.GetByID(dbc, tenantID, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("generation batch %s: %w", id, pkgerrors.ErrNotFound)
	}
	return b, nil
}

func (s *generationService) ListItems(dbc dbctx.Context, tenantID string, requestID uuid.UUID) ([]*gen.Item, error) {
	if _, err := s.Get(dbc, tenantID, requestID); err != nil {
		return nil, err
	}
	return s.repos.Items.ListByRequest(dbc, requestID)
}

// Cancel stops a PENDING or IN_PROGRESS request. It returns false, without
// error, when the request already reached a terminal state.
func (s *generationService) Cancel(dbc dbctx.Context, tenantID string, id uuid.UUID) (bool, error) {
	if _, err := s.Get(dbc, tenantID, id); err != nil {
		return false, err
	}
	ok, err := s.repos.Requests.Cancel(dbc, tenantID, id)
	if err != nil || !ok {
		return false, err
	}
	req, err := s.repos.Requests.GetByID(dbc, tenantID, id)
	if err != nil || req == nil {
		// The cancel is committed; only the follow-up bookkeeping is lost.
		s.log.Warn("Reload after cancel failed", "request_id", id, "error", err)
		return true, nil
	}
	if req.BatchID != nil {
		if _, err := s.repos.Batches.Refresh(dbc, *req.BatchID); err != nil {
			s.log.Warn("Batch refresh after cancel failed", "batch_id", *req.BatchID, "error", err)
		}
	}
	s.notifier.Notify(notify.NewEvent(notify.EventCancelled, req))
	s.log.WithContext(dbc.Ctx).Info("Generation request cancelled", "tenant_id", tenantID, "request_id", id)
	return true, nil
}

func (s *generationService) GetDocument(dbc dbctx.Context, tenantID string, id uuid.UUID) (*gen.Document, error) {
	doc, err := s.repos.Documents.GetByID(dbc, tenantID, id, true)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, pkgerrors.ErrNotFound)
	}
	return doc, nil
}

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// buildRequest turns a validated submission into rows. Items share the
// request's created_at so they land in the same monthly partition.
func buildRequest(tenantID string, in SubmitInput, ts time.Time) (*gen.Request, []*gen.Item, error) {
	req := &gen.Request{
		ID:         uuid.New(),
		CreatedAt:  ts,
		TenantID:   tenantID,
		JobType:    gen.JobTypeSingle,
		Status:     gen.RequestPending,
		TotalCount: len(in.Items),
	}
	if len(in.Items) > 1 {
		req.JobType = gen.JobTypeBatch
	}
	items := make([]*gen.Item, 0, len(in.Items))
	for i, it := range in.Items {
		data := it.Data
		if data == nil {
			data = map[string]any{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: items[%d].data: %v", pkgerrors.ErrInvalidArgument, i, err)
		}
		item := &gen.Item{
			ID:            uuid.New(),
			CreatedAt:     ts,
			RequestID:     req.ID,
			Position:      i,
			TemplateID:    it.TemplateID,
			VariantID:     it.VariantID,
			VersionID:     it.VersionID,
			EnvironmentID: it.EnvironmentID,
			Data:          datatypes.JSON(raw),
			Filename:      it.Filename,
			Status:        gen.ItemPending,
		}
		if it.VariantSelector != nil {
			sel, err := json.Marshal(it.VariantSelector)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: items[%d].variant_selector: %v", pkgerrors.ErrInvalidArgument, i, err)
			}
			item.VariantSelector = datatypes.JSON(sel)
		}
		items = append(items, item)
	}
	return req, items, nil
}

// validator checks item references against the catalog, remembering what it
// already loaded so a large submission against one template stays cheap.
type validator struct {
	dbc      dbctx.Context
	catalog  repos.CatalogRepo
	tenantID string
	ve       pkgerrors.ValidationError
	infra    error

	templates    map[uuid.UUID]*templates.Template
	variants     map[uuid.UUID]*templates.Variant
	versions     map[uuid.UUID]*templates.Version
	environments map[uuid.UUID]*templates.Environment
}

func newValidator(dbc dbctx.Context, catalog repos.CatalogRepo, tenantID string) *validator {
	return &validator{
		dbc:          dbc,
		catalog:      catalog,
		tenantID:     tenantID,
		templates:    map[uuid.UUID]*templates.Template{},
		variants:     map[uuid.UUID]*templates.Variant{},
		versions:     map[uuid.UUID]*templates.Version{},
		environments: map[uuid.UUID]*templates.Environment{},
	}
}

// err prefers a lookup failure over field errors: a rejection caused by a
// broken catalog read would be misleading.
func (v *validator) err() error {
	if v.infra != nil {
		return v.infra
	}
	return v.ve.OrNil()
}

func (v *validator) item(prefix string, it ItemInput) {
	if v.infra != nil {
		return
	}
	if it.TemplateID == uuid.Nil {
		v.ve.Add(prefix+"template_id", "is required")
		return
	}
	tmpl := v.template(it.TemplateID)
	if tmpl == nil {
		if v.infra == nil {
			v.ve.Add(prefix+"template_id", "template %s not found", it.TemplateID)
		}
		return
	}
	if err := datacontract.Check(tmpl.DataSchema); err != nil {
		v.ve.Add(prefix+"template_id", "template %s has an invalid data schema: %v", tmpl.ID, err)
	}

	switch {
	case it.VersionID != nil && it.EnvironmentID != nil:
		v.ve.Add(prefix+"version_id", "version_id and environment_id are mutually exclusive")
		return
	case it.VersionID == nil && it.EnvironmentID == nil:
		v.ve.Add(prefix+"version_id", "one of version_id or environment_id is required")
		return
	}
	if it.VariantID != nil && it.VariantSelector != nil {
		v.ve.Add(prefix+"variant_selector", "variant_id and variant_selector are mutually exclusive")
		return
	}

	var variant *templates.Variant
	if it.VariantID != nil {
		variant = v.variant(*it.VariantID)
		if variant == nil || variant.TemplateID != tmpl.ID {
			if v.infra == nil {
				v.ve.Add(prefix+"variant_id", "variant %s not found for template %s", *it.VariantID, tmpl.ID)
			}
			return
		}
	}

	if it.VersionID != nil {
		if it.VariantSelector != nil {
			v.ve.Add(prefix+"variant_selector", "a variant selector cannot be combined with version_id")
			return
		}
		version := v.version(*it.VersionID)
		if version == nil {
			if v.infra == nil {
				v.ve.Add(prefix+"version_id", "version %s not found", *it.VersionID)
			}
			return
		}
		if !version.Renderable() {
			v.ve.Add(prefix+"version_id", "version %s is %s", version.ID, version.Status)
			return
		}
		if variant != nil && version.VariantID != variant.ID {
			v.ve.Add(prefix+"version_id", "version %s does not belong to variant %s", version.ID, variant.ID)
			return
		}
		owner := v.variant(version.VariantID)
		if owner == nil || owner.TemplateID != tmpl.ID {
			if v.infra == nil {
				v.ve.Add(prefix+"version_id", "version %s does not belong to template %s", version.ID, tmpl.ID)
			}
		}
		return
	}

	if v.environment(*it.EnvironmentID) == nil && v.infra == nil {
		v.ve.Add(prefix+"environment_id", "environment %s not found", *it.EnvironmentID)
	}
}

func (v *validator) template(id uuid.UUID) *templates.Template {
	if t, ok := v.templates[id]; ok {
		return t
	}
	t, err := v.catalog.GetTemplate(v.dbc, v.tenantID, id)
	if err != nil {
		v.infra = fmt.Errorf("load template %s: %w", id, err)
		return nil
	}
	v.templates[id] = t
	return t
}

func (v *validator) variant(id uuid.UUID) *templates.Variant {
	if t, ok := v.variants[id]; ok {
		return t
	}
	t, err := v.catalog.GetVariant(v.dbc, v.tenantID, id)
	if err != nil {
		v.infra = fmt.Errorf("load variant %s: %w", id, err)
		return nil
	}
	v.variants[id] = t
	return t
}

func (v *validator) version(id uuid.UUID) *templates.Version {
	if t, ok := v.versions[id]; ok {
		return t
	}
	t, err := v.catalog.GetVersion(v.dbc, v.tenantID, id)
	if err != nil {
		v.infra = fmt.Errorf("load version %s: %w", id, err)
		return nil
	}
	v.versions[id] = t
	return t
}

func (v *validator) environment(id uuid.UUID) *templates.Environment {
	if t, ok := v.environments[id]; ok {
		return t
	}
	t, err := v.catalog.GetEnvironment(v.dbc, v.tenantID, id)
	if err != nil {
		v.infra = fmt.Errorf("load environment %s: %w", id, err)
		return nil
	}
	v.environments[id] = t
	return t
}
