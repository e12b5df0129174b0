package handler

import (
	"net/http"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LinkHandler раздаёт опубликованные файлы по временным ссылкам
type LinkHandler struct {
	service service.LinkService
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		logger:  logger,
	}
}

// Root проверка доступности файлового сервера
func (h *LinkHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "File server is running"})
}

// Download отдаёт файл как вложение под сохранённым именем
func (h *LinkHandler) Download(c *gin.Context) {
	id := c.Param("id")

	rec, path, err := h.service.Download(c.Request.Context(), id)
	if err != nil {
		h.logLookupError("Download failed", id, err)
		respondError(c, err)
		return
	}

	h.logger.Info("Download",
		zap.String("id", id),
		zap.String("file", rec.Filename),
		zap.Uint64("downloads", rec.AccessCount),
	)
	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(path, rec.Filename)
}

// Info сведения о ссылке
func (h *LinkHandler) Info(c *gin.Context) {
	id := c.Param("id")

	info, err := h.service.Info(c.Request.Context(), id)
	if err != nil {
		h.logLookupError("Info failed", id, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// Cleanup удаляет истёкшие ссылки и файлы без ссылок
func (h *LinkHandler) Cleanup(c *gin.Context) {
	result, err := h.service.Cleanup(c.Request.Context())
	if err != nil {
		h.logger.Error("Cleanup failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *LinkHandler) logLookupError(msg, id string, err error) {
	if apperr.KindOf(err) == apperr.KindNotFound {
		h.logger.Debug(msg, zap.String("id", id), zap.Error(err))
		return
	}
	h.logger.Error(msg, zap.String("id", id), zap.Error(err))
}
