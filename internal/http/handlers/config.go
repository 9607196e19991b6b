package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/walehn/reader-study-backend/internal/http/middleware"
	"github.com/walehn/reader-study-backend/internal/http/response"
	"github.com/walehn/reader-study-backend/internal/services"
	"github.com/walehn/reader-study-backend/internal/types"
)

type ConfigHandler struct {
	configSvc services.StudyConfigService
	auditSvc  services.AuditService
}

func NewConfigHandler(configSvc services.StudyConfigService, auditSvc services.AuditService) *ConfigHandler {
	return &ConfigHandler{configSvc: configSvc, auditSvc: auditSvc}
}

func (ch *ConfigHandler) Get(c *gin.Context) {
	cfg, err := ch.configSvc.GetOrCreate(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, cfg)
}

// GetPublic exposes only what the login screen needs.
func (ch *ConfigHandler) GetPublic(c *gin.Context) {
	cfg, err := ch.configSvc.GetOrCreate(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	var groupNames map[string]string
	if cfg.GroupNames != nil {
		_ = json.Unmarshal(cfg.GroupNames, &groupNames)
	}
	response.RespondOK(c, gin.H{
		"study_name":        cfg.StudyName,
		"study_description": cfg.StudyDescription,
		"total_sessions":    cfg.TotalSessions,
		"total_blocks":      cfg.TotalBlocks,
		"group_names":       groupNames,
		"is_locked":         cfg.IsLocked,
	})
}

func (ch *ConfigHandler) Update(c *gin.Context) {
	var patch services.StudyConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	cfg, err := ch.configSvc.Update(c.Request.Context(), patch)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	readerID := middleware.CurrentReaderID(c)
	ch.auditSvc.Record(c.Request.Context(), services.AuditEvent{
		ReaderID:     &readerID,
		Action:       types.AuditConfigUpdate,
		ResourceType: "study_config",
		ResourceID:   cfg.ID.String(),
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	response.RespondOK(c, cfg)
}

func (ch *ConfigHandler) Lock(c *gin.Context) {
	readerID := middleware.CurrentReaderID(c)
	locked, err := ch.configSvc.ManualLock(c.Request.Context(), readerID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"locked": locked})
}
