package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"optiledger/internal/core/apperror"
	"optiledger/internal/core/numerator"
	"optiledger/internal/core/tenant"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// TenantID returns the tenant resolved by the Tenant middleware.
func (h *BaseHandler) TenantID(c *gin.Context) (string, bool) {
	id, err := tenant.RequireTenantID(c.Request.Context())
	if err != nil {
		h.Error(c, apperror.NewValidation("tenant is required"))
		return "", false
	}
	return id, true
}

// DocumentType parses the :type path parameter.
func (h *BaseHandler) DocumentType(c *gin.Context) (numerator.DocumentType, bool) {
	docType, err := numerator.ParseDocumentType(c.Param("type"))
	if err != nil {
		h.Error(c, apperror.NewValidation("unknown document type").
			WithDetail("type", c.Param("type")).
			WithDetail("allowed", numerator.DocumentTypes()))
		return "", false
	}
	return docType, true
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
