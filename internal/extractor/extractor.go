// Package extractor содержит адаптеры, которые по ссылке на страницу находят видеопоток
// и записывают его в файл, указанный вызывающим.
package extractor

import (
	"context"
	"errors"
	"strings"
)

// ErrNoMedia на странице не найден видеопоток
var ErrNoMedia = errors.New("no media stream found")

// ProgressFunc получает количество уже скачанных байт
type ProgressFunc func(downloaded uint64)

// Request параметры извлечения
type Request struct {
	URL        string
	OutputPath string
	Format     string // пусто: формат по умолчанию
}

// MediaInfo метаданные извлечённого видео
type MediaInfo struct {
	Title string
}

// Extractor записывает видео по req.URL в req.OutputPath.
// Отмена ctx должна прерывать передачу.
type Extractor interface {
	Extract(ctx context.Context, req Request, progress ProgressFunc) (*MediaInfo, error)
}

// Платформы
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
	PlatformUnknown   = "unknown"
)

var platformHosts = []struct {
	substr   string
	platform string
}{
	{"instagram.com", PlatformInstagram},
	{"tiktok.com", PlatformTikTok},
	{"youtube.com", PlatformYouTube},
	{"youtu.be", PlatformYouTube},
}

// DetectPlatform определяет платформу по подстроке в URL. Результат только информативный.
func DetectPlatform(rawURL string) string {
	u := strings.ToLower(rawURL)
	for _, h := range platformHosts {
		if strings.Contains(u, h.substr) {
			return h.platform
		}
	}
	return PlatformUnknown
}

func notify(progress ProgressFunc, n uint64) {
	if progress != nil {
		progress(n)
	}
}
