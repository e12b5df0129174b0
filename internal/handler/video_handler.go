package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/vidlink/internal/middleware"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VideoHandler принимает ссылки на видео от вызывающих
type VideoHandler struct {
	service service.VideoService
	logger  *zap.Logger
}

func NewVideoHandler(service service.VideoService, logger *zap.Logger) *VideoHandler {
	return &VideoHandler{
		service: service,
		logger:  logger,
	}
}

type ProcessVideoRequest struct {
	URL string `json:"url" binding:"required"`
}

type PublishedLinkResponse struct {
	LinkID           string `json:"link_id"`
	DownloadURL      string `json:"download_url"`
	InfoURL          string `json:"info_url"`
	Filename         string `json:"filename"`
	Platform         string `json:"platform"`
	Title            string `json:"title"`
	SizeBytes        uint64 `json:"size_bytes"`
	Size             string `json:"size"`
	ExpiresAt        string `json:"expires_at"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// ProcessVideo скачивает видео и отдаёт его напрямую (200) или публикует ссылку (201)
func (h *VideoHandler) ProcessVideo(c *gin.Context) {
	var req ProcessVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	d := &ginDelivery{c: c}
	err := h.service.Process(c.Request.Context(), middleware.Caller(c), req.URL, d)
	if err == nil {
		return
	}
	if d.sent {
		// Заголовки уже ушли, статус не поменять
		h.logger.Warn("Delivery interrupted", zap.Error(err))
		c.Abort()
		return
	}
	respondError(c, err)
}

// ginDelivery пишет результат обработки в ответ gin
type ginDelivery struct {
	c    *gin.Context
	sent bool
}

func (d *ginDelivery) SendVideo(ctx context.Context, video *models.DirectVideo, content io.Reader) error {
	d.sent = true
	d.c.DataFromReader(http.StatusOK, int64(video.Size), "video/mp4", content, map[string]string{
		"X-Video-Title":    mime.QEncoding.Encode("utf-8", video.Title),
		"X-Video-Platform": video.Platform,
		"X-Video-Size":     strconv.FormatUint(video.Size, 10),
	})
	return d.c.Request.Context().Err()
}

func (d *ginDelivery) SendLink(ctx context.Context, link *models.PublishedLink) error {
	d.sent = true
	d.c.JSON(http.StatusCreated, PublishedLinkResponse{
		LinkID:           link.LinkID,
		DownloadURL:      link.DownloadURL,
		InfoURL:          link.InfoURL,
		Filename:         link.Filename,
		Platform:         link.Platform,
		Title:            link.Title,
		SizeBytes:        link.Size,
		Size:             service.HumanSize(link.Size),
		ExpiresAt:        link.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresInMinutes: int(link.TTL / time.Minute),
	})
	return nil
}
