package service

import (
	"context"
	"errors"
	"html"
	"io"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/fetcher"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/repository"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Ошибки валидации запроса
var (
	ErrInvalidURL     = errors.New("невалидный URL")
	ErrHostNotAllowed = errors.New("домен не поддерживается")
)

// Длина заголовка в ответах
const (
	directTitleLimit = 100
	linkTitleLimit   = 150
	defaultTitle     = "video"
)

// Delivery получатель результата обработки
type Delivery interface {
	SendVideo(ctx context.Context, video *models.DirectVideo, content io.Reader) error
	SendLink(ctx context.Context, link *models.PublishedLink) error
}

// Publisher перенос и удаление файлов хранилища
type Publisher interface {
	Promote(scratchPath, platform string) (string, error)
	DiscardScratch(path string)
	Remove(filename string) error
}

// VideoConfig параметры обработки запросов
type VideoConfig struct {
	BaseURL        string
	AllowedDomains []string
	Formats        []string
}

// VideoService обрабатывает запрос на видео: проверка, скачивание, выдача файла или ссылки
type VideoService interface {
	Process(ctx context.Context, caller, rawURL string, delivery Delivery) error
}

type videoService struct {
	fetcher  fetcher.Fetcher
	store    Publisher
	links    repository.LinkRepository
	settings SettingsService
	cfg      VideoConfig
	policy   *bluemonday.Policy
	logger   *zap.Logger
}

// NewVideoService создаёт новый экземпляр сервиса
func NewVideoService(
	f fetcher.Fetcher,
	store Publisher,
	links repository.LinkRepository,
	settings SettingsService,
	cfg VideoConfig,
	logger *zap.Logger,
) VideoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &videoService{
		fetcher:  f,
		store:    store,
		links:    links,
		settings: settings,
		cfg:      cfg,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}
}

// Process проводит запрос через стадии Validating -> Fetching -> DirectReturn | Publishing.
// Любая возвращённая ошибка имеет тип *apperr.Error.
func (s *videoService) Process(ctx context.Context, caller, rawURL string, delivery Delivery) error {
	log := s.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("caller_id", caller),
	)

	log.Info("Validating", zap.String("url", rawURL))
	u, err := s.validateURL(rawURL)
	if err != nil {
		log.Info("Failed", zap.String("stage", "validating"), zap.Error(err))
		return err
	}

	eff, err := s.settings.Get(ctx, caller)
	if err != nil {
		log.Warn("Settings unavailable, using defaults", zap.Error(err))
		eff = s.settings.Defaults()
	}

	log.Info("Fetching", zap.Uint64("ceiling", eff.MaxServerSize))
	video, err := s.fetcher.Fetch(ctx, models.FetchRequest{
		SourceURL:   u.String(),
		SizeCeiling: eff.MaxServerSize,
		Formats:     s.cfg.Formats,
	})
	if err != nil {
		err = apperr.Wrap(apperr.KindIO, "fetch", err)
		s.logFailure(log, "fetching", err)
		return err
	}

	title := s.cleanTitle(video.Title)
	if video.Size <= min(eff.DirectSize, eff.MaxServerSize) {
		log.Info("DirectReturn", zap.Uint64("size", video.Size))
		err = s.deliverDirect(ctx, video, title, delivery)
	} else {
		log.Info("Publishing", zap.Uint64("size", video.Size))
		err = s.publish(ctx, video, title, TTL(eff), delivery)
	}
	if err != nil {
		s.logFailure(log, "delivering", err)
		return err
	}

	log.Info("Done", zap.String("platform", video.Platform), zap.Uint64("size", video.Size))
	return nil
}

func (s *videoService) deliverDirect(ctx context.Context, video *models.FetchedVideo, title string, delivery Delivery) error {
	defer s.store.DiscardScratch(video.LocalPath)

	f, err := os.Open(video.LocalPath)
	if err != nil {
		return apperr.New(apperr.KindIO, "open video", err)
	}
	defer f.Close()

	err = delivery.SendVideo(ctx, &models.DirectVideo{
		Platform: video.Platform,
		Title:    truncate(title, directTitleLimit),
		Size:     video.Size,
	}, f)
	return apperr.Wrap(apperr.KindIO, "send video", err)
}

func (s *videoService) publish(ctx context.Context, video *models.FetchedVideo, title string, ttl time.Duration, delivery Delivery) error {
	filename, err := s.store.Promote(video.LocalPath, video.Platform)
	if err != nil {
		s.store.DiscardScratch(video.LocalPath)
		return apperr.Wrap(apperr.KindIO, "promote", err)
	}

	rec, err := s.links.Create(ctx, filename, ttl)
	if err != nil {
		// Файл без записи никто не скачает
		if rmErr := s.store.Remove(filename); rmErr != nil {
			s.logger.Warn("Failed to remove unpublished file", zap.String("file", filename), zap.Error(rmErr))
		}
		return apperr.Wrap(apperr.KindIO, "create link", err)
	}

	err = delivery.SendLink(ctx, &models.PublishedLink{
		LinkID:      rec.ID,
		DownloadURL: s.cfg.BaseURL + "/download/" + rec.ID,
		InfoURL:     s.cfg.BaseURL + "/info/" + rec.ID,
		Filename:    filename,
		Platform:    video.Platform,
		Title:       truncate(title, linkTitleLimit),
		Size:        video.Size,
		TTL:         ttl,
		ExpiresAt:   rec.ExpiresAt,
	})
	return apperr.Wrap(apperr.KindIO, "send link", err)
}

// validateURL принимает http(s) ссылки на разрешённые домены и их поддомены
func (s *videoService) validateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, apperr.New(apperr.KindValidation, "validate url", ErrInvalidURL)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	for _, domain := range s.cfg.AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return u, nil
		}
	}
	return nil, apperr.New(apperr.KindValidation, "validate url", ErrHostNotAllowed)
}

// cleanTitle убирает разметку из заголовка, пришедшего со страницы
func (s *videoService) cleanTitle(title string) string {
	plain := html.UnescapeString(s.policy.Sanitize(title))
	plain = strings.Join(strings.Fields(plain), " ")
	if plain == "" {
		return defaultTitle
	}
	return plain
}

func (s *videoService) logFailure(log *zap.Logger, stage string, err error) {
	fields := []zap.Field{zap.String("stage", stage), zap.Stringer("kind", apperr.KindOf(err)), zap.Error(err)}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindSizeExceeded, apperr.KindCancelled:
		log.Info("Failed", fields...)
	default:
		log.Error("Failed", fields...)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
