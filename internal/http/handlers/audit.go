package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/walehn/reader-study-backend/internal/http/response"
	"github.com/walehn/reader-study-backend/internal/services"
)

type AuditHandler struct {
	auditSvc services.AuditService
}

func NewAuditHandler(auditSvc services.AuditService) *AuditHandler {
	return &AuditHandler{auditSvc: auditSvc}
}

// ListForReader returns a reader's audit trail, newest first.
func (ah *AuditHandler) ListForReader(c *gin.Context) {
	readerID, err := uuid.Parse(c.Query("reader_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_reader_id", err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
	}

	entries, err := ah.auditSvc.ListForReader(c.Request.Context(), readerID, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries})
}
