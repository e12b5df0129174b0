// Package fetcher скачивает видео во временный файл, не давая ему вырасти сверх лимита.
package fetcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/extractor"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPollInterval = 500 * time.Millisecond

// Fetcher интерфейс скачивания с лимитом размера
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchedVideo, error)
}

// ScratchStore временные файлы скачивания
type ScratchStore interface {
	ReserveScratch(platform string) (string, error)
	DiscardScratch(path string)
}

type sizeBoundedFetcher struct {
	extractor    extractor.Extractor
	scratch      ScratchStore
	pollInterval time.Duration
	logger       *zap.Logger
}

// New создаёт Fetcher. pollInterval задаёт, как часто сторож проверяет размер между
// уведомлениями о прогрессе.
func New(ext extractor.Extractor, scratch ScratchStore, pollInterval time.Duration, logger *zap.Logger) Fetcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sizeBoundedFetcher{
		extractor:    ext,
		scratch:      scratch,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Fetch пробует форматы по очереди. К следующему формату переходит только после
// ошибки извлечения; превышение размера и отмена завершают попытки сразу.
func (f *sizeBoundedFetcher) Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchedVideo, error) {
	platform := extractor.DetectPlatform(req.SourceURL)

	formats := req.Formats
	if len(formats) == 0 {
		formats = []string{""}
	}

	var lastErr error
	for i, format := range formats {
		video, err := f.attempt(ctx, req, platform, format)
		if err == nil {
			return video, nil
		}
		lastErr = err
		if apperr.KindOf(err) != apperr.KindExtraction {
			return nil, err
		}
		if i < len(formats)-1 {
			f.logger.Warn("Extraction failed, trying next format",
				zap.String("url", req.SourceURL),
				zap.String("format", format),
				zap.Error(err),
			)
		}
	}
	return nil, lastErr
}

func (f *sizeBoundedFetcher) attempt(ctx context.Context, req models.FetchRequest, platform, format string) (*models.FetchedVideo, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.New(apperr.KindCancelled, "fetch", err)
	}

	path, err := f.scratch.ReserveScratch(platform)
	if err != nil {
		return nil, err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			f.scratch.DiscardScratch(path)
		}
	}()

	info, err := f.transfer(ctx, req, path, format)
	if err != nil {
		return nil, err
	}

	// Финальная проверка: прогресс мог прийти не весь
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.New(apperr.KindExtraction, "fetch", errors.New("extractor produced no file"))
		}
		return nil, apperr.New(apperr.KindIO, "fetch", err)
	}
	size := uint64(fi.Size())
	if size == 0 {
		return nil, apperr.New(apperr.KindExtraction, "fetch", errors.New("extractor produced an empty file"))
	}
	if size > req.SizeCeiling {
		return nil, apperr.SizeExceeded("fetch", size, req.SizeCeiling)
	}

	handedOff = true
	return &models.FetchedVideo{
		LocalPath: path,
		Size:      size,
		Platform:  platform,
		Title:     info.Title,
	}, nil
}

// transfer запускает извлекатель и сторожа размера. Сторож отменяет извлекатель,
// как только размер на диске превысит лимит.
func (f *sizeBoundedFetcher) transfer(ctx context.Context, req models.FetchRequest, path, format string) (*extractor.MediaInfo, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		info     *extractor.MediaInfo
		reported atomic.Uint64
	)
	samples := make(chan struct{}, 1)
	extracted := make(chan struct{})

	g.Go(func() error {
		defer close(extracted)
		mi, err := f.extractor.Extract(gctx, extractor.Request{
			URL:        req.SourceURL,
			OutputPath: path,
			Format:     format,
		}, func(n uint64) {
			for {
				cur := reported.Load()
				if n <= cur || reported.CompareAndSwap(cur, n) {
					break
				}
			}
			select {
			case samples <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return err
		}
		if mi == nil {
			mi = &extractor.MediaInfo{}
		}
		info = mi
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-extracted:
				return nil
			case <-gctx.Done():
				return nil
			case <-samples:
			case <-ticker.C:
			}
			observed, _ := storage.ObservedSize(path)
			if r := reported.Load(); r > observed {
				observed = r
			}
			if observed > req.SizeCeiling {
				f.logger.Info("Size ceiling exceeded, aborting transfer",
					zap.String("url", req.SourceURL),
					zap.Uint64("observed", observed),
					zap.Uint64("limit", req.SizeCeiling),
				)
				return apperr.SizeExceeded("fetch", observed, req.SizeCeiling)
			}
		}
	})

	err := g.Wait()
	switch {
	case err == nil:
		return info, nil
	case ctx.Err() != nil:
		return nil, apperr.New(apperr.KindCancelled, "fetch", ctx.Err())
	case apperr.KindOf(err) == apperr.KindSizeExceeded:
		return nil, err
	default:
		// Ошибки локального файла извлекатель уже пометил как IO
		return nil, apperr.Wrap(apperr.KindExtraction, "extract", err)
	}
}
