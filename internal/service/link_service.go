package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/repository"
	"go.uber.org/zap"
)

// ErrFileMissing запись жива, но файла на диске нет
var ErrFileMissing = errors.New("файл ссылки отсутствует")

// FileLocator доступ к файлам постоянного хранилища
type FileLocator interface {
	Path(filename string) string
	ReclaimOrphans(referenced map[string]struct{}, grace time.Duration) (int, error)
}

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	Download(ctx context.Context, id string) (*models.LinkRecord, string, error)
	Info(ctx context.Context, id string) (*models.LinkInfo, error)
	Cleanup(ctx context.Context) (*models.CleanupResult, error)
}

// LinkServiceOption настройка сервиса ссылок
type LinkServiceOption func(*linkService)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) LinkServiceOption {
	return func(s *linkService) { s.now = now }
}

// linkService реализация сервиса ссылок
type linkService struct {
	links       repository.LinkRepository
	files       FileLocator
	orphanGrace time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(links repository.LinkRepository, files FileLocator, orphanGrace time.Duration, logger *zap.Logger, opts ...LinkServiceOption) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &linkService{
		links:       links,
		files:       files,
		orphanGrace: orphanGrace,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Download засчитывает обращение и возвращает путь к файлу ссылки
func (s *linkService) Download(ctx context.Context, id string) (*models.LinkRecord, string, error) {
	rec, err := s.links.Resolve(ctx, id)
	if err != nil {
		return nil, "", err
	}

	path := s.files.Path(rec.Filename)
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, "", apperr.New(apperr.KindIO, "download", err)
		}
		s.logger.Warn("Link file is missing", zap.String("id", id), zap.String("file", rec.Filename))
		return nil, "", apperr.New(apperr.KindNotFound, "download", ErrFileMissing)
	}
	return rec, path, nil
}

// Info сведения о ссылке; тоже считается обращением
func (s *linkService) Info(ctx context.Context, id string) (*models.LinkInfo, error) {
	rec, err := s.links.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	info := models.NewLinkInfo(rec, s.now())
	return &info, nil
}

// Cleanup удаляет истёкшие ссылки, затем файлы без ссылок старше orphanGrace
func (s *linkService) Cleanup(ctx context.Context) (*models.CleanupResult, error) {
	swept, err := s.links.Sweep(ctx)
	if err != nil {
		return nil, err
	}

	orphans, err := s.files.ReclaimOrphans(s.links.Filenames(), s.orphanGrace)
	if err != nil {
		s.logger.Warn("Orphan reclaim failed", zap.Error(err))
	}

	s.logger.Info("Cleanup finished",
		zap.Int("removed", swept.Removed),
		zap.Int("remaining", swept.Remaining),
		zap.Int("orphans_removed", orphans),
	)
	return &models.CleanupResult{
		Removed:        swept.Removed,
		Remaining:      swept.Remaining,
		OrphansRemoved: orphans,
	}, nil
}
