package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SocialGouv/champollion-go/internal/application/services"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// SystemHandlers serves liveness and runtime diagnostics.
type SystemHandlers struct {
	registry    *services.LoadRegistry
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	startedAt   time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(registry *services.LoadRegistry, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SystemHandlers {
	return &SystemHandlers{
		registry:    registry,
		logger:      logger,
		perfTracker: perfTracker,
		startedAt:   time.Now(),
	}
}

// Health handles GET /health
func (h *SystemHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(h.startedAt).String(),
		"activeLoads": h.registry.Len(),
	})
}

// GetStats handles GET /api/v1/admin/stats
func (h *SystemHandlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"performance": h.perfTracker.GetStats(),
		"alerts":      h.perfTracker.GetAlerts(),
		"activeLoads": h.registry.Len(),
	})
}

// GetLogLevels handles GET /api/v1/admin/logs/levels
func (h *SystemHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel handles PUT /api/v1/admin/logs/levels - sets the log level for a specific channel.
func (h *SystemHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	switch strings.ToUpper(req.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), logging.ParseLevel(req.Level)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to set log level", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": fmt.Sprintf("Log level for channel '%s' set to '%s'", req.Channel, req.Level)})
}
