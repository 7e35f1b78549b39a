package handler

import (
	"net/http"

	"billflow/internal/middleware"
	"billflow/internal/service"

	"github.com/gin-gonic/gin"
)

const maxDocumentSize = 10 << 20

type IdentityHandler struct {
	identity *service.IdentityService
}

func NewIdentityHandler(identity *service.IdentityService) *IdentityHandler {
	return &IdentityHandler{identity: identity}
}

// Verify handles POST /me/identity.
func (h *IdentityHandler) Verify(c *gin.Context) {
	var req struct {
		DocumentType   string `json:"document_type" binding:"required,max=30"`
		DocumentNumber string `json:"document_number" binding:"required,min=6,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}
	ok, msg, err := h.identity.VerifyIdentity(c.Request.Context(), middleware.GetUserID(c), req.DocumentType, req.DocumentNumber)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": ok, "message": msg})
}

func (h *IdentityHandler) Status(c *gin.Context) {
	v, err := h.identity.Status(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": v})
}

// UploadDocument handles POST /me/identity/document (multipart field "file").
func (h *IdentityHandler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "file required", "INVALID_REQUEST")
		return
	}
	if file.Size > maxDocumentSize {
		respondError(c, http.StatusBadRequest, "file too large", "INVALID_REQUEST")
		return
	}
	f, err := file.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "could not read file", "INVALID_REQUEST")
		return
	}
	defer f.Close()

	url, err := h.identity.AttachDocument(c.Request.Context(), middleware.GetUserID(c), f)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// PayoutEligibility handles GET /me/payout-eligibility.
func (h *IdentityHandler) PayoutEligibility(c *gin.Context) {
	ok, msg, err := h.identity.CanProcessPayout(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_process_payout": ok, "message": msg})
}
