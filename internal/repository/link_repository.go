package repository

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrInvalidTTL   = errors.New("link ttl must be positive")
)

const linkIDLength = 12

// LinkRepository реестр временных ссылок на файлы хранилища.
// Каждая операция сначала удаляет истёкшие ссылки.
type LinkRepository interface {
	Create(ctx context.Context, filename string, ttl time.Duration) (*models.LinkRecord, error)
	Resolve(ctx context.Context, id string) (*models.LinkRecord, error)
	Sweep(ctx context.Context) (models.SweepResult, error)
	Filenames() map[string]struct{}
	Len() int
}

// FileRemover удаляет файл хранилища по имени
type FileRemover interface {
	Remove(filename string) error
}

// LinkOption настройка реестра
type LinkOption func(*linkRepository)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) LinkOption {
	return func(r *linkRepository) { r.now = now }
}

// WithLogger задаёт логгер
func WithLogger(logger *zap.Logger) LinkOption {
	return func(r *linkRepository) { r.logger = logger }
}

type linkRepository struct {
	mu     sync.Mutex
	path   string
	links  map[string]*models.LinkRecord
	files  FileRemover
	now    func() time.Time
	logger *zap.Logger
}

// NewLinkRepository загружает реестр из JSON файла path (отсутствие файла не ошибка)
func NewLinkRepository(path string, files FileRemover, opts ...LinkOption) (LinkRepository, error) {
	r := &linkRepository{
		path:   path,
		links:  make(map[string]*models.LinkRecord),
		files:  files,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Create регистрирует ссылку на filename со сроком жизни ttl
func (r *linkRepository) Create(ctx context.Context, filename string, ttl time.Duration) (*models.LinkRecord, error) {
	if ttl <= 0 {
		return nil, apperr.New(apperr.KindValidation, "create link", ErrInvalidTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)

	rec := &models.LinkRecord{
		ID:        r.newIDLocked(filename, now),
		Filename:  filename,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	r.links[rec.ID] = rec

	if err := r.persistLocked(); err != nil {
		delete(r.links, rec.ID)
		return nil, apperr.New(apperr.KindIO, "create link", err)
	}

	r.logger.Info("Link created",
		zap.String("id", rec.ID),
		zap.String("file", filename),
		zap.Time("expires_at", rec.ExpiresAt),
	)

	out := *rec
	return &out, nil
}

// Resolve возвращает живую ссылку и увеличивает её счётчик обращений
func (r *linkRepository) Resolve(ctx context.Context, id string) (*models.LinkRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.sweepLocked(r.now())

	rec, ok := r.links[id]
	if !ok {
		if removed > 0 {
			r.persistOrLog()
		}
		return nil, apperr.New(apperr.KindNotFound, "resolve link", ErrLinkNotFound)
	}

	rec.AccessCount++
	// Счётчик остаётся в памяти, даже если запись на диск не удалась
	r.persistOrLog()

	out := *rec
	return &out, nil
}

// Sweep удаляет истёкшие ссылки и файлы, на которые больше никто не ссылается
func (r *linkRepository) Sweep(ctx context.Context) (models.SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.sweepLocked(r.now())
	if removed > 0 {
		if err := r.persistLocked(); err != nil {
			return models.SweepResult{}, apperr.New(apperr.KindIO, "sweep links", err)
		}
	}
	return models.SweepResult{Removed: removed, Remaining: len(r.links)}, nil
}

// Filenames имена файлов, на которые ссылаются живые записи
func (r *linkRepository) Filenames() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]struct{}, len(r.links))
	for _, rec := range r.links {
		out[rec.Filename] = struct{}{}
	}
	return out
}

func (r *linkRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// sweepLocked удаляет записи с ExpiresAt не позже now. Файл удаляется,
// только если на него не ссылается ни одна оставшаяся запись.
func (r *linkRepository) sweepLocked(now time.Time) int {
	var expired []*models.LinkRecord
	for id, rec := range r.links {
		if rec.Expired(now) {
			expired = append(expired, rec)
			delete(r.links, id)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	live := make(map[string]struct{}, len(r.links))
	for _, rec := range r.links {
		live[rec.Filename] = struct{}{}
	}
	removedFiles := make(map[string]struct{})
	for _, rec := range expired {
		r.logger.Info("Link expired", zap.String("id", rec.ID), zap.String("file", rec.Filename))
		if _, shared := live[rec.Filename]; shared {
			continue
		}
		if _, done := removedFiles[rec.Filename]; done {
			continue
		}
		removedFiles[rec.Filename] = struct{}{}
		if r.files == nil {
			continue
		}
		if err := r.files.Remove(rec.Filename); err != nil {
			r.logger.Warn("Failed to remove expired file", zap.String("file", rec.Filename), zap.Error(err))
		}
	}
	return len(expired)
}

// newIDLocked md5(filename + время)[:12]; при совпадении с живой ссылкой добавляется соль
func (r *linkRepository) newIDLocked(filename string, now time.Time) string {
	seed := filename + now.Format(time.RFC3339Nano)
	for salt := 0; ; salt++ {
		input := seed
		if salt > 0 {
			input += "#" + strconv.Itoa(salt)
		}
		sum := md5.Sum([]byte(input))
		id := hex.EncodeToString(sum[:])[:linkIDLength]
		if _, taken := r.links[id]; !taken {
			return id
		}
	}
}

func (r *linkRepository) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.New(apperr.KindIO, "load links", err)
	}

	var stored map[string]*models.LinkRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		// Повреждённый файл не должен мешать запуску: следующая запись его перезапишет
		r.logger.Error("Links file is corrupted, starting empty", zap.String("path", r.path), zap.Error(err))
		return nil
	}
	for id, rec := range stored {
		if rec == nil {
			continue
		}
		rec.ID = id
		r.links[id] = rec
	}
	r.logger.Info("Links loaded", zap.Int("count", len(r.links)))
	return nil
}

func (r *linkRepository) persistLocked() error {
	data, err := json.MarshalIndent(r.links, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	return storage.WriteFileAtomic(r.path, data)
}

func (r *linkRepository) persistOrLog() {
	if err := r.persistLocked(); err != nil {
		r.logger.Error("Failed to persist links", zap.String("path", r.path), zap.Error(err))
	}
}
