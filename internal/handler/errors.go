package handler

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/gin-gonic/gin"
)

// detailLimit ограничение длины текста ошибки ввода-вывода в ответе
const detailLimit = 200

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SizeErrorResponse ответ при превышении лимита размера
type SizeErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	ObservedBytes uint64 `json:"observed_bytes"`
	LimitBytes    uint64 `json:"limit_bytes"`
}

// respondError переводит ошибку сервиса в HTTP статус и тело ответа
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	switch kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   kind.String(),
			Message: validationMessage(err),
		})
	case apperr.KindSizeExceeded:
		var e *apperr.Error
		errors.As(err, &e)
		c.JSON(http.StatusRequestEntityTooLarge, SizeErrorResponse{
			Error:         kind.String(),
			Message:       fmt.Sprintf("Видео больше допустимого размера: %s > %s", service.HumanSize(e.Observed), service.HumanSize(e.Limit)),
			ObservedBytes: e.Observed,
			LimitBytes:    e.Limit,
		})
	case apperr.KindExtraction:
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   kind.String(),
			Message: "Не удалось скачать видео по ссылке",
		})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   kind.String(),
			Message: "Ссылка не найдена или истекла",
		})
	case apperr.KindCancelled:
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   kind.String(),
			Message: "Запрос отменён",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   apperr.KindIO.String(),
			Message: truncateDetail(err.Error()),
		})
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return "Невалидная ссылка: нужен http(s) URL"
	case errors.Is(err, service.ErrHostNotAllowed):
		return "Платформа не поддерживается"
	default:
		return err.Error()
	}
}

func truncateDetail(s string) string {
	if len(s) <= detailLimit {
		return s
	}
	s = s[:detailLimit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
