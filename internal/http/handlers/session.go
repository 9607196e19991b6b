package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/walehn/reader-study-backend/internal/http/middleware"
	"github.com/walehn/reader-study-backend/internal/http/response"
	"github.com/walehn/reader-study-backend/internal/services"
)

type SessionHandler struct {
	sessionSvc services.StudySessionService
	caseSvc    services.CaseService
}

func NewSessionHandler(sessionSvc services.StudySessionService, caseSvc services.CaseService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc, caseSvc: caseSvc}
}

func (sh *SessionHandler) ListMine(c *gin.Context) {
	readerID := middleware.CurrentReaderID(c)
	summaries, err := sh.sessionSvc.ListForReader(c.Request.Context(), readerID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": summaries})
}

func (sh *SessionHandler) Assign(c *gin.Context) {
	var req struct {
		ReaderID    string `json:"reader_id"`
		SessionCode string `json:"session_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	readerID, err := uuid.Parse(req.ReaderID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_reader_id", err)
		return
	}

	adminID := middleware.CurrentReaderID(c)
	session, err := sh.sessionSvc.Assign(c.Request.Context(), adminID, readerID, req.SessionCode)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, session)
}

// Enter starts or resumes a session. The block case lists may come in
// the request body; absent that, they default to the shared block
// partition from the case allocator.
func (sh *SessionHandler) Enter(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	var req struct {
		BlockACases []string `json:"block_a_cases"`
		BlockBCases []string `json:"block_b_cases"`
	}
	_ = c.ShouldBindJSON(&req)

	if req.BlockACases == nil || req.BlockBCases == nil {
		partition, err := sh.caseSvc.BlockPartition(c.Request.Context())
		if err != nil {
			response.RespondServiceError(c, err)
			return
		}
		if len(partition) >= 2 {
			req.BlockACases = partition[0]
			req.BlockBCases = partition[1]
		}
	}

	readerID := middleware.CurrentReaderID(c)
	state, err := sh.sessionSvc.Enter(c.Request.Context(), readerID, sessionID, req.BlockACases, req.BlockBCases)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"state":          state,
		"is_new_session": !state.Resumed,
	})
}

func (sh *SessionHandler) Current(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	readerID := middleware.CurrentReaderID(c)
	state, err := sh.sessionSvc.Get(c.Request.Context(), readerID, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, state)
}

func (sh *SessionHandler) Advance(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req struct {
		CompletedCaseID string `json:"completed_case_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	readerID := middleware.CurrentReaderID(c)
	state, err := sh.sessionSvc.Advance(c.Request.Context(), readerID, sessionID, req.CompletedCaseID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, state)
}

func (sh *SessionHandler) Reset(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	adminID := middleware.CurrentReaderID(c)
	session, err := sh.sessionSvc.Reset(c.Request.Context(), adminID, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, session)
}
