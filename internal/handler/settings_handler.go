package handler

import (
	"net/http"

	"github.com/SergeiKhy/vidlink/internal/middleware"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SettingsHandler настройки вызывающего
type SettingsHandler struct {
	service service.SettingsService
	logger  *zap.Logger
}

func NewSettingsHandler(service service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  logger,
	}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	eff, err := h.service.Get(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		h.logger.Error("Failed to load settings", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eff)
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var input models.UpdateSettingsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	eff, err := h.service.Update(c.Request.Context(), middleware.Caller(c), &input)
	if err != nil {
		h.logger.Warn("Failed to update settings", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eff)
}

func (h *SettingsHandler) ResetSettings(c *gin.Context) {
	eff, err := h.service.Reset(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		h.logger.Error("Failed to reset settings", zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eff)
}
