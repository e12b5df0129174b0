package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/extractor"
	"github.com/SergeiKhy/vidlink/internal/fetcher"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ceiling = 10_000_000

// fakeExtractor пишет size байт порциями по chunk и сообщает прогресс после каждой
type fakeExtractor struct {
	mu    sync.Mutex
	size  int
	chunk int
	// не сообщать прогресс
	silent bool
	// ждать отмены после записи
	block bool
	// ошибки по формату
	failFor  map[string]error
	requests []extractor.Request
}

func (f *fakeExtractor) Extract(ctx context.Context, req extractor.Request, progress extractor.ProgressFunc) (*extractor.MediaInfo, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err, ok := f.failFor[req.Format]; ok {
		// оставляем мусор, как это делает настоящий загрузчик
		_ = os.WriteFile(req.OutputPath+".part", []byte("partial"), 0o644)
		return nil, err
	}

	out, err := os.OpenFile(req.OutputPath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	chunk := f.chunk
	if chunk == 0 {
		chunk = 1 << 20
	}
	written := 0
	for written < f.size {
		n := min(chunk, f.size-written)
		if _, err := out.Write(make([]byte, n)); err != nil {
			return nil, err
		}
		written += n
		if !f.silent && progress != nil {
			progress(uint64(written))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &extractor.MediaInfo{Title: "clip"}, nil
}

func (f *fakeExtractor) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		out = append(out, r.OutputPath)
	}
	return out
}

func setupFetcher(t *testing.T, ext extractor.Extractor) (fetcher.Fetcher, string) {
	t.Helper()
	root := t.TempDir()
	scratchDir := filepath.Join(root, "downloads")
	store := storage.New(filepath.Join(root, "videos"), scratchDir, nil)
	require.NoError(t, store.EnsureDirs())
	return fetcher.New(ext, store, 5*time.Millisecond, nil), scratchDir
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "временные файлы должны быть удалены")
}

func request(formats ...string) models.FetchRequest {
	return models.FetchRequest{
		SourceURL:   "https://www.youtube.com/watch?v=abc",
		SizeCeiling: ceiling,
		Formats:     formats,
	}
}

// TestFetch_JustUnderCeiling проверяет успех на 9,999,999 байтах
func TestFetch_JustUnderCeiling(t *testing.T) {
	f, _ := setupFetcher(t, &fakeExtractor{size: ceiling - 1})

	video, err := f.Fetch(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, uint64(ceiling-1), video.Size)
	assert.Equal(t, "youtube", video.Platform)
	assert.Equal(t, "clip", video.Title)

	fi, err := os.Stat(video.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, int64(ceiling-1), fi.Size())
}

// TestFetch_ExactlyCeiling размер, равный лимиту, допустим
func TestFetch_ExactlyCeiling(t *testing.T) {
	f, _ := setupFetcher(t, &fakeExtractor{size: ceiling})

	video, err := f.Fetch(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, uint64(ceiling), video.Size)
}

// TestFetch_JustOverCeiling проверяет отказ на 10,000,001 байте без остатков на диске
func TestFetch_JustOverCeiling(t *testing.T) {
	f, scratchDir := setupFetcher(t, &fakeExtractor{size: ceiling + 1})

	video, err := f.Fetch(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, video)
	assert.ErrorIs(t, err, apperr.ErrSizeExceeded)

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, uint64(ceiling+1), ae.Observed)
	assert.Equal(t, uint64(ceiling), ae.Limit)

	assertScratchEmpty(t, scratchDir)
}

// TestFetch_AbortsInFlight проверяет, что сторож прерывает зависшую передачу
func TestFetch_AbortsInFlight(t *testing.T) {
	ext := &fakeExtractor{size: ceiling + 5_000_000, block: true}
	f, scratchDir := setupFetcher(t, ext)

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), request())
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperr.ErrSizeExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("передача не была прервана")
	}
	assertScratchEmpty(t, scratchDir)
}

// TestFetch_FinalCheckWithoutProgress проверяет финальную проверку размера
func TestFetch_FinalCheckWithoutProgress(t *testing.T) {
	f, scratchDir := setupFetcher(t, &fakeExtractor{size: ceiling + 1, chunk: ceiling + 1, silent: true})

	_, err := f.Fetch(context.Background(), request())
	assert.ErrorIs(t, err, apperr.ErrSizeExceeded)
	assertScratchEmpty(t, scratchDir)
}

// TestFetch_FormatFallback проверяет переход к следующему формату со свежим временным файлом
func TestFetch_FormatFallback(t *testing.T) {
	ext := &fakeExtractor{
		size:    1024,
		failFor: map[string]error{"bad": errors.New("requested format not available")},
	}
	f, scratchDir := setupFetcher(t, ext)

	video, err := f.Fetch(context.Background(), request("bad", "good"))
	require.NoError(t, err)

	paths := ext.paths()
	require.Len(t, paths, 2)
	assert.NotEqual(t, paths[0], paths[1])
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[0]+".part")
	assert.Equal(t, paths[1], video.LocalPath)

	entries, err := os.ReadDir(scratchDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestFetch_AllFormatsFail проверяет ошибку извлечения после всех форматов
func TestFetch_AllFormatsFail(t *testing.T) {
	ext := &fakeExtractor{failFor: map[string]error{
		"a": errors.New("boom"),
		"b": errors.New("boom"),
	}}
	f, scratchDir := setupFetcher(t, ext)

	_, err := f.Fetch(context.Background(), request("a", "b"))
	assert.ErrorIs(t, err, apperr.ErrExtraction)
	assert.Len(t, ext.paths(), 2)
	assertScratchEmpty(t, scratchDir)
}

// TestFetch_SizeExceededNotRetried превышение размера не переходит к следующему формату
func TestFetch_SizeExceededNotRetried(t *testing.T) {
	ext := &fakeExtractor{size: ceiling + 1}
	f, _ := setupFetcher(t, ext)

	_, err := f.Fetch(context.Background(), request("a", "b"))
	assert.ErrorIs(t, err, apperr.ErrSizeExceeded)
	assert.Len(t, ext.paths(), 1)
}

// TestFetch_DefaultFormat без настроенных форматов делается одна попытка с форматом по умолчанию
func TestFetch_DefaultFormat(t *testing.T) {
	ext := &fakeExtractor{size: 10}
	f, _ := setupFetcher(t, ext)

	_, err := f.Fetch(context.Background(), request())
	require.NoError(t, err)
	require.Len(t, ext.requests, 1)
	assert.Empty(t, ext.requests[0].Format)
}

// TestFetch_EmptyOutput пустой файл считается ошибкой извлечения
func TestFetch_EmptyOutput(t *testing.T) {
	f, scratchDir := setupFetcher(t, &fakeExtractor{size: 0})

	_, err := f.Fetch(context.Background(), request())
	assert.ErrorIs(t, err, apperr.ErrExtraction)
	assertScratchEmpty(t, scratchDir)
}

// TestFetch_Cancelled проверяет отмену родительского контекста
func TestFetch_Cancelled(t *testing.T) {
	f, scratchDir := setupFetcher(t, &fakeExtractor{size: 10, block: true})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := f.Fetch(ctx, request())
	assert.ErrorIs(t, err, apperr.ErrCancelled)
	assertScratchEmpty(t, scratchDir)
}

// TestFetch_IOFailureNotRetried ошибка локального файла не переходит к следующему формату
func TestFetch_IOFailureNotRetried(t *testing.T) {
	ext := &fakeExtractor{failFor: map[string]error{
		"a": apperr.New(apperr.KindIO, "write output", os.ErrPermission),
		"b": errors.New("boom"),
	}}
	f, scratchDir := setupFetcher(t, ext)

	_, err := f.Fetch(context.Background(), request("a", "b"))
	assert.ErrorIs(t, err, apperr.ErrIO)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Len(t, ext.paths(), 1)
	assertScratchEmpty(t, scratchDir)
}

// brokenScratch выдаёт путь в несуществующем каталоге
type brokenScratch struct {
	dir string
}

func (b brokenScratch) ReserveScratch(platform string) (string, error) {
	return filepath.Join(b.dir, "missing", "temp_"+platform+".mp4"), nil
}

func (b brokenScratch) DiscardScratch(string) {}

// TestFetch_HTTPExtractorOutputFailure недоступный временный файл даёт IO после одной попытки
func TestFetch_HTTPExtractorOutputFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	ext := extractor.NewHTTP(srv.Client(), nil)
	f := fetcher.New(ext, brokenScratch{dir: t.TempDir()}, 5*time.Millisecond, nil)

	_, err := f.Fetch(context.Background(), models.FetchRequest{
		SourceURL:   srv.URL + "/clip.mp4",
		SizeCeiling: ceiling,
		Formats:     []string{"a", "b", "c"},
	})
	assert.ErrorIs(t, err, apperr.ErrIO)
	assert.Equal(t, apperr.KindIO, apperr.KindOf(err))
	assert.EqualValues(t, 1, hits.Load())
}

// mergeExtractor качает видео и звук отдельными файлами рядом с целевым, как yt-dlp для bv+ba
type mergeExtractor struct {
	streamSize int
}

func (m *mergeExtractor) Extract(ctx context.Context, req extractor.Request, progress extractor.ProgressFunc) (*extractor.MediaInfo, error) {
	base := strings.TrimSuffix(req.OutputPath, ".mp4")
	for _, name := range []string{base + ".f137.mp4", base + ".f140.m4a.part"} {
		if err := os.WriteFile(name, make([]byte, m.streamSize), 0o644); err != nil {
			return nil, err
		}
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// TestFetch_MergeStreamsCounted сторож видит суммарный размер потоков и удаляет их
func TestFetch_MergeStreamsCounted(t *testing.T) {
	f, scratchDir := setupFetcher(t, &mergeExtractor{streamSize: ceiling/2 + 1})

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), request("bv*+ba"))
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperr.ErrSizeExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("передача не была прервана")
	}
	assertScratchEmpty(t, scratchDir)
}
