// Package storage отвечает за файлы видео: временные файлы скачивания,
// перенос в постоянное хранилище и удаление.
package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	scratchPrefix = "temp_"
	videoExt      = ".mp4"
	suffixLength  = 6
	suffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
	promoteTries  = 5
	timeLayout    = "20060102_150405"
)

// Подменяются в тестах
var (
	renameFunc   = os.Rename
	linkFunc     = os.Link
	newScratchID = func() string { return uuid.NewString() }
	newSuffix    = randomSuffix
)

// CrossDeviceError rename между файловыми системами (EXDEV).
// Копирование с последующим удалением не выполняется.
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("cross-device move %q -> %q (EXDEV): scratch and videos dirs must share a filesystem: %v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice является ли err ошибкой EXDEV
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Option настройка Storage
type Option func(*Storage)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// Storage каталоги временных и постоянных файлов
type Storage struct {
	videosDir  string
	scratchDir string
	now        func() time.Time
	logger     *zap.Logger
}

// New создаёт хранилище поверх двух каталогов
func New(videosDir, scratchDir string, logger *zap.Logger, opts ...Option) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		videosDir:  filepath.Clean(videosDir),
		scratchDir: filepath.Clean(scratchDir),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureDirs создаёт каталоги хранилища
func (s *Storage) EnsureDirs() error {
	for _, dir := range []string{s.videosDir, s.scratchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.New(apperr.KindIO, "ensure dirs", err)
		}
	}
	return nil
}

// VideosDir каталог постоянного хранилища
func (s *Storage) VideosDir() string { return s.videosDir }

// ReserveScratch резервирует уникальный временный файл для скачивания.
// Существующий файл никогда не перезаписывается.
func (s *Storage) ReserveScratch(platform string) (string, error) {
	name := fmt.Sprintf("%s%s_%s_%s%s", scratchPrefix, platform, s.now().Format(timeLayout), newScratchID(), videoExt)
	path := filepath.Join(s.scratchDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", apperr.New(apperr.KindIO, "reserve scratch", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", apperr.New(apperr.KindIO, "reserve scratch", err)
	}
	return path, nil
}

// DiscardScratch удаляет временный файл и всё, что загрузчик создал рядом с ним
// под тем же именем: .part, .ytdl и промежуточные форматы .fNNN.* при слиянии потоков.
func (s *Storage) DiscardScratch(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove scratch file", zap.String("path", path), zap.Error(err))
	}
	for _, p := range siblings(path) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove scratch file", zap.String("path", p), zap.Error(err))
		}
	}
}

// ObservedSize размер на диске. Для одиночного файла это максимум из него и его .part;
// промежуточные форматы слияния (.fNNN.*) лежат одновременно и суммируются.
func ObservedSize(path string) (uint64, bool) {
	var (
		single    uint64
		fragments uint64
		found     bool
	)
	fragPrefix := filepath.Base(stem(path)) + ".f"
	for _, p := range append([]string{path}, siblings(path)...) {
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		found = true
		n := uint64(fi.Size())
		if strings.HasPrefix(filepath.Base(p), fragPrefix) {
			fragments += n
		} else if n > single {
			single = n
		}
	}
	return max(single, fragments), found
}

// Promote переносит временный файл в постоянное хранилище под именем
// {platform}_{YYYYMMDD_HHMMSS}_{random6}.mp4 и возвращает это имя.
// Перенос сделан через link(2) + unlink: link атомарно отказывает, если имя занято.
// При ошибке временный файл остаётся на месте, вызывающий сам решает, что с ним делать.
func (s *Storage) Promote(scratchPath, platform string) (string, error) {
	for i := 0; i < promoteTries; i++ {
		suffix, err := newSuffix()
		if err != nil {
			return "", apperr.New(apperr.KindIO, "promote", err)
		}
		name := fmt.Sprintf("%s_%s_%s%s", platform, s.now().Format(timeLayout), suffix, videoExt)
		dst := filepath.Join(s.videosDir, name)

		if err := link(scratchPath, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				s.logger.Debug("Durable name taken, retrying", zap.String("name", name))
				continue
			}
			return "", apperr.New(apperr.KindIO, "promote", err)
		}
		if err := os.Remove(scratchPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// Файл уже опубликован; остаток подберёт PurgeScratch при следующем запуске
			s.logger.Warn("Failed to unlink promoted scratch file", zap.String("path", scratchPath), zap.Error(err))
		}
		return name, nil
	}
	return "", apperr.New(apperr.KindIO, "promote", fmt.Errorf("no free durable name after %d attempts: %w", promoteTries, fs.ErrExist))
}

// Path полный путь файла в постоянном хранилище. Компоненты пути из имени отбрасываются.
func (s *Storage) Path(filename string) string {
	return filepath.Join(s.videosDir, filepath.Base(filename))
}

// Remove удаляет файл из постоянного хранилища; отсутствие файла не ошибка
func (s *Storage) Remove(filename string) error {
	if err := os.Remove(s.Path(filename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.New(apperr.KindIO, "remove", err)
	}
	return nil
}

// ReclaimOrphans удаляет файлы хранилища, на которые не ссылается ни одна запись
// и которые старше grace. Возвращает количество удалённых файлов.
func (s *Storage) ReclaimOrphans(referenced map[string]struct{}, grace time.Duration) (int, error) {
	entries, err := os.ReadDir(s.videosDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, apperr.New(apperr.KindIO, "reclaim orphans", err)
	}

	cutoff := s.now().Add(-grace)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := referenced[e.Name()]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.videosDir, e.Name())); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("Failed to remove orphan", zap.String("file", e.Name()), zap.Error(err))
			}
			continue
		}
		s.logger.Info("Orphan video removed", zap.String("file", e.Name()))
		removed++
	}
	return removed, nil
}

// PurgeScratch очищает каталог временных файлов. Вызывается при старте, до приёма запросов.
func (s *Storage) PurgeScratch() (int, error) {
	entries, err := os.ReadDir(s.scratchDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, apperr.New(apperr.KindIO, "purge scratch", err)
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.scratchDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// stem путь без расширения .mp4
func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// siblings файлы каталога, начинающиеся с имени path без расширения и точки.
// Сам path в результат не входит.
func siblings(path string) []string {
	dir := filepath.Dir(path)
	prefix := filepath.Base(stem(path)) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || name == filepath.Base(path) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out
}

func link(src, dst string) error {
	if err := linkFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

func rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

func randomSuffix() (string, error) {
	b := make([]byte, suffixLength)
	limit := big.NewInt(int64(len(suffixCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = suffixCharset[n.Int64()]
	}
	return string(b), nil
}
