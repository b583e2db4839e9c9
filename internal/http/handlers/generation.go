package handlers

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docforge-backend/internal/http/response"
	"github.com/yungbote/docforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/docforge-backend/internal/pkg/errors"
	"github.com/yungbote/docforge-backend/internal/services"
)

type GenerationHandler struct {
	svc services.GenerationService
}

func NewGenerationHandler(svc services.GenerationService) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

func pathID(c *gin.Context, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}

// POST /v1/tenants/:tenant/generations
func (h *GenerationHandler) Submit(c *gin.Context) {
	var in services.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	req, err := h.svc.Submit(dbctx.New(c.Request.Context()), c.Param("tenant"), in)
	if err != nil {
		response.RespondAPIError(c, err, "submit_failed")
		return
	}
	response.RespondCreated(c, gin.H{"request": req})
}

// POST /v1/tenants/:tenant/generation-batches
func (h *GenerationHandler) SubmitBatch(c *gin.Context) {
	var in services.BatchInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	batch, requests, err := h.svc.SubmitBatch(dbctx.New(c.Request.Context()), c.Param("tenant"), in)
	if err != nil {
		response.RespondAPIError(c, err, "submit_failed")
		return
	}
	response.RespondCreated(c, gin.H{"batch": batch, "requests": requests})
}

// GET /v1/tenants/:tenant/generation-batches/:id
func (h *GenerationHandler) GetBatch(c *gin.Context) {
	id, ok := pathID(c, "invalid_batch_id")
	if !ok {
		return
	}
	batch, err := h.svc.GetBatch(dbctx.New(c.Request.Context()), c.Param("tenant"), id)
	if err != nil {
		response.RespondAPIError(c, err, "batch_lookup_failed")
		return
	}
	response.RespondOK(c, gin.H{"batch": batch})
}

// GET /v1/tenants/:tenant/generations/:id
func (h *GenerationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "invalid_request_id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	tenant := c.Param("tenant")
	req, err := h.svc.Get(dbc, tenant, id)
	if err != nil {
		response.RespondAPIError(c, err, "request_lookup_failed")
		return
	}
	items, err := h.svc.ListItems(dbc, tenant, id)
	if err != nil {
		response.RespondAPIError(c, err, "request_lookup_failed")
		return
	}
	response.RespondOK(c, gin.H{"request": req, "items": items})
}

// POST /v1/tenants/:tenant/generations/:id/cancel
func (h *GenerationHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "invalid_request_id")
	if !ok {
		return
	}
	cancelled, err := h.svc.Cancel(dbctx.New(c.Request.Context()), c.Param("tenant"), id)
	if err != nil {
		response.RespondAPIError(c, err, "cancel_failed")
		return
	}
	response.RespondOK(c, gin.H{"cancelled": cancelled})
}

// GET /v1/tenants/:tenant/documents/:id
func (h *GenerationHandler) Download(c *gin.Context) {
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	doc, err := h.svc.GetDocument(dbctx.New(c.Request.Context()), c.Param("tenant"), id)
	if err != nil {
		response.RespondAPIError(c, err, "document_lookup_failed")
		return
	}
	if len(doc.Content) == 0 {
		response.RespondAPIError(c, fmt.Errorf("document %s has no content: %w", id, pkgerrors.ErrNotFound), "document_lookup_failed")
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename})
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}
