package handlers

import (
	"github.com/gin-gonic/gin"

	"optiledger/internal/core/apperror"
	"optiledger/internal/domain/numbering"
	"optiledger/internal/infrastructure/http/v1/dto"
	"optiledger/internal/infrastructure/http/v1/middleware"
)

// NumberingHandler serves preview, issue and commit for document screens,
// and diagnose and repair for administrators.
type NumberingHandler struct {
	*BaseHandler
	service *numbering.Service
}

// NewNumberingHandler creates a numbering handler.
func NewNumberingHandler(base *BaseHandler, service *numbering.Service) *NumberingHandler {
	return &NumberingHandler{BaseHandler: base, service: service}
}

// Preview returns the next number without reserving it.
// GET /api/v1/numbering/:type/preview
func (h *NumberingHandler) Preview(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.DocumentType(c)
	if !ok {
		return
	}

	p, err := h.service.Preview(c.Request.Context(), tenantID, docType)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPreview(p))
}

// Commit advances the counter after the document was saved.
// Counter failures come back as a warning with status 200; the document stays valid.
// POST /api/v1/numbering/:type/commit
func (h *NumberingHandler) Commit(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.DocumentType(c)
	if !ok {
		return
	}

	var req dto.CommitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res := h.service.Commit(c.Request.Context(), tenantID, docType, req.Number)
	if res.Warning != nil {
		// A retry should try to advance the counter again, not replay the warning.
		c.Set(middleware.ContextKeySkipReplay, true)
	}
	h.OK(c, dto.FromCommit(res))
}

// Issue claims the next number for a document the caller is about to save.
// Concurrent callers never receive the same number.
// POST /api/v1/numbering/:type/issue
func (h *NumberingHandler) Issue(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.DocumentType(c)
	if !ok {
		return
	}

	res, err := h.service.Reserve(c.Request.Context(), tenantID, docType)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReservation(res))
}

// Diagnose compares the counter with the documents on file.
// GET /api/v1/admin/numbering/:type/diagnose
func (h *NumberingHandler) Diagnose(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.DocumentType(c)
	if !ok {
		return
	}

	report, err := h.service.Diagnose(c.Request.Context(), tenantID, docType)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReport(report))
}

// Repair recomputes the counter from the documents on file.
// POST /api/v1/admin/numbering/:type/repair
func (h *NumberingHandler) Repair(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.DocumentType(c)
	if !ok {
		return
	}

	var req dto.RepairRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Repair(c.Request.Context(), tenantID, docType, req.FiscalYear)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRepair(res))
}

// RepairHistory lists audited repairs of the type's counters.
// GET /api/v1/admin/numbering/:type/repairs?limit=20
func (h *NumberingHandler) RepairHistory(c *gin.Context) {
	tenantID, ok := h.TenantID(c)
	if !ok {
		return
	}
	docType, ok := h.DocumentType(c)
	if !ok {
		return
	}

	var q dto.RepairHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}

	entries, err := h.service.RepairHistory(c.Request.Context(), tenantID, docType, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRepairHistory(entries))
}

// RegisterRoutes mounts document-screen routes on rg and admin routes on admin.
// advance runs in front of the handlers that move the counter (idempotency).
func (h *NumberingHandler) RegisterRoutes(rg, admin *gin.RouterGroup, advance ...gin.HandlerFunc) {
	rg.GET("/:type/preview", h.Preview)
	rg.POST("/:type/issue", append(advance[:len(advance):len(advance)], h.Issue)...)
	rg.POST("/:type/commit", append(advance[:len(advance):len(advance)], h.Commit)...)

	admin.GET("/:type/diagnose", h.Diagnose)
	admin.POST("/:type/repair", h.Repair)
	admin.GET("/:type/repairs", h.RepairHistory)
}
