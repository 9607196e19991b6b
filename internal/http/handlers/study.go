package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/walehn/reader-study-backend/internal/http/middleware"
	"github.com/walehn/reader-study-backend/internal/http/response"
	"github.com/walehn/reader-study-backend/internal/services"
)

type StudyHandler struct {
	resultSvc services.StudyResultService
}

func NewStudyHandler(resultSvc services.StudyResultService) *StudyHandler {
	return &StudyHandler{resultSvc: resultSvc}
}

func (sh *StudyHandler) Submit(c *gin.Context) {
	var req services.SubmitResultInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	readerID := middleware.CurrentReaderID(c)
	result, err := sh.resultSvc.Submit(c.Request.Context(), readerID, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, result)
}

func (sh *StudyHandler) ResultsByCase(c *gin.Context) {
	results, err := sh.resultSvc.ListByCase(c.Request.Context(), c.Param("caseID"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": results})
}
