package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/SocialGouv/champollion-go/internal/application/services"
	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// CorrectionsHandlers handles the inspector's local corrections.
type CorrectionsHandlers struct {
	correctionsService *services.CorrectionsService
	logger             *logging.ChanneledLogger
	perfTracker        *performance.Tracker
}

// NewCorrectionsHandlers creates corrections handlers with injected dependencies
func NewCorrectionsHandlers(correctionsService *services.CorrectionsService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *CorrectionsHandlers {
	return &CorrectionsHandlers{
		correctionsService: correctionsService,
		logger:             logger,
		perfTracker:        perfTracker,
	}
}

// GetCorrections handles GET /api/v1/etablissements/:siret/corrections
func (h *CorrectionsHandlers) GetCorrections(c *gin.Context) {
	siret := c.Param("siret")
	h.logger.Corrections().Debug("Received get corrections request", "method", c.Request.Method, "path", c.Request.URL.Path, "siret", siret)

	c.JSON(http.StatusOK, h.correctionsService.Read(c.Request.Context(), siret))
}

// PutCorrections handles PUT /api/v1/etablissements/:siret/corrections
func (h *CorrectionsHandlers) PutCorrections(c *gin.Context) {
	siret := c.Param("siret")
	start := time.Now()
	marker := h.perfTracker.StartOperation("put_corrections_request", siret)
	defer marker.Complete()
	h.logger.Corrections().Debug("Received put corrections request", "method", c.Request.Method, "path", c.Request.URL.Path, "siret", siret)

	var req corrections.LocalCorrections
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Corrections().Error("Corrections request JSON binding failed", "siret", siret, "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	if err := h.correctionsService.Save(c.Request.Context(), siret, req); err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrInvalidCorrections) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid corrections", "details": err.Error()})
			return
		}
		h.logger.LogError(logging.ChannelCorrections, "save_corrections", err, siret, map[string]any{"path": c.Request.URL.Path})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save corrections"})
		return
	}

	c.JSON(http.StatusOK, h.correctionsService.Read(c.Request.Context(), siret))

	marker.SetSuccess(true)
	h.logger.Perf().Info("Performance for PutCorrections request", "duration", time.Since(start), "siret", siret, "success", true)
}

// DeleteCorrections handles DELETE /api/v1/etablissements/:siret/corrections
func (h *CorrectionsHandlers) DeleteCorrections(c *gin.Context) {
	siret := c.Param("siret")
	h.logger.Corrections().Debug("Received delete corrections request", "method", c.Request.Method, "path", c.Request.URL.Path, "siret", siret)

	if err := h.correctionsService.Clear(c.Request.Context(), siret); err != nil {
		h.logger.LogError(logging.ChannelCorrections, "clear_corrections", err, siret, map[string]any{"path": c.Request.URL.Path})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear corrections"})
		return
	}
	c.Status(http.StatusNoContent)
}
