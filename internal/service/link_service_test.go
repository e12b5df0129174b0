package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/repository"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/SergeiKhy/vidlink/internal/service/mocks"
	"github.com/SergeiKhy/vidlink/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkEnv struct {
	svc   service.LinkService
	links *mocks.MockLinkRepository
	store *storage.Storage
	now   time.Time
}

// setupLinkService создаёт сервис ссылок с управляемым временем
func setupLinkService(t *testing.T) *linkEnv {
	t.Helper()
	root := t.TempDir()
	store := storage.New(filepath.Join(root, "videos"), filepath.Join(root, "downloads"), nil)
	require.NoError(t, store.EnsureDirs())

	env := &linkEnv{store: store, now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.links = mocks.NewMockLinkRepository()
	env.links.Now = clock
	env.svc = service.NewLinkService(env.links, store, 10*time.Minute, nil, service.WithClock(clock))
	return env
}

// TestLinkService_Info_MinutesLeft через 59 минут у часовой ссылки осталась 1 минута
func TestLinkService_Info_MinutesLeft(t *testing.T) {
	env := setupLinkService(t)
	ctx := context.Background()

	rec, err := env.links.Create(ctx, "f.mp4", time.Hour)
	require.NoError(t, err)

	env.now = env.now.Add(59 * time.Minute)

	info, err := env.svc.Info(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.ExpiresInMinutes)
	assert.Equal(t, "f.mp4", info.Filename)
	assert.Equal(t, uint64(1), info.Downloads, "info тоже считается обращением")
	assert.Equal(t, "2025-06-01T13:00:00Z", info.ExpiresAt)
}

// TestLinkService_Download проверяет путь к файлу и счётчик
func TestLinkService_Download(t *testing.T) {
	env := setupLinkService(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(env.store.Path("f.mp4"), []byte("video"), 0o644))

	rec, err := env.links.Create(ctx, "f.mp4", time.Hour)
	require.NoError(t, err)

	got, path, err := env.svc.Download(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, env.store.Path("f.mp4"), path)
	assert.Equal(t, uint64(1), got.AccessCount)
}

// TestLinkService_Download_FileMissing живая запись без файла даёт NotFound
func TestLinkService_Download_FileMissing(t *testing.T) {
	env := setupLinkService(t)
	ctx := context.Background()

	rec, err := env.links.Create(ctx, "gone.mp4", time.Hour)
	require.NoError(t, err)

	_, _, err = env.svc.Download(ctx, rec.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, err, service.ErrFileMissing)
}

func TestLinkService_Download_Unknown(t *testing.T) {
	env := setupLinkService(t)

	_, _, err := env.svc.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

// TestLinkService_Cleanup проверяет очистку ссылок и файлов без ссылок
func TestLinkService_Cleanup(t *testing.T) {
	env := setupLinkService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.links.Create(ctx, "old.mp4", time.Minute)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := env.links.Create(ctx, "live.mp4", time.Hour)
		require.NoError(t, err)
	}

	// файл без ссылки, давно изменённый
	orphan := env.store.Path("orphan.mp4")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	old := env.now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))
	require.NoError(t, os.WriteFile(env.store.Path("live.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(env.store.Path("live.mp4"), old, old))

	env.now = env.now.Add(10 * time.Minute)

	res, err := env.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Removed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 1, res.OrphansRemoved)
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, env.store.Path("live.mp4"))
}
