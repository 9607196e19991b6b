package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/walehn/reader-study-backend/internal/http/response"
	"github.com/walehn/reader-study-backend/internal/services"
)

type CaseHandler struct {
	caseSvc   services.CaseService
	volumeSvc services.VolumeService
	configSvc services.StudyConfigService
}

func NewCaseHandler(caseSvc services.CaseService, volumeSvc services.VolumeService, configSvc services.StudyConfigService) *CaseHandler {
	return &CaseHandler{caseSvc: caseSvc, volumeSvc: volumeSvc, configSvc: configSvc}
}

func (ch *CaseHandler) Count(c *gin.Context) {
	count, err := ch.caseSvc.Count(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, count)
}

// AllocationPreview sizes the allocation. Session and block counts
// default to the study config and can be overridden by query params.
func (ch *CaseHandler) AllocationPreview(c *gin.Context) {
	numSessions, numBlocks, err := ch.resolveCounts(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	preview, err := ch.caseSvc.Preview(c.Request.Context(), numSessions, numBlocks)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, preview)
}

func (ch *CaseHandler) Allocate(c *gin.Context) {
	var req struct {
		NumSessions int   `json:"num_sessions"`
		NumBlocks   int   `json:"num_blocks"`
		Shuffle     *bool `json:"shuffle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	cfg, err := ch.configSvc.GetOrCreate(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	if req.NumSessions == 0 {
		req.NumSessions = cfg.TotalSessions
	}
	if req.NumBlocks == 0 {
		req.NumBlocks = cfg.TotalBlocks
	}
	shuffle := true
	if req.Shuffle != nil {
		shuffle = *req.Shuffle
	}

	result, err := ch.caseSvc.Allocate(c.Request.Context(), req.NumSessions, req.NumBlocks, shuffle)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}

func (ch *CaseHandler) Volume(c *gin.Context) {
	caseID := c.Param("caseID")
	series := c.Param("series")

	raw, err := ch.volumeSvc.ReadSeries(c.Request.Context(), caseID, series)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/gzip", raw)
}

func (ch *CaseHandler) resolveCounts(c *gin.Context) (int, int, error) {
	cfg, err := ch.configSvc.GetOrCreate(c.Request.Context())
	if err != nil {
		return 0, 0, err
	}
	numSessions := cfg.TotalSessions
	numBlocks := cfg.TotalBlocks
	if raw := c.Query("num_sessions"); raw != "" {
		if numSessions, err = strconv.Atoi(raw); err != nil {
			return 0, 0, err
		}
	}
	if raw := c.Query("num_blocks"); raw != "" {
		if numBlocks, err = strconv.Atoi(raw); err != nil {
			return 0, 0, err
		}
	}
	return numSessions, numBlocks, nil
}
