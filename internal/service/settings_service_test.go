package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/service"
	"github.com/SergeiKhy/vidlink/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func setupSettingsService() (service.SettingsService, *mocks.MockSettingsRepository) {
	repo := mocks.NewMockSettingsRepository()
	return service.NewSettingsService(repo, testLimits, nil), repo
}

// TestSettingsService_Defaults проверяет значения для нового вызывающего
func TestSettingsService_Defaults(t *testing.T) {
	svc, _ := setupSettingsService()

	eff, err := svc.Get(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, uint64(500*mb), eff.MaxServerSize)
	assert.Equal(t, "500MiB", eff.MaxServerSizeH)
	assert.Equal(t, 60, eff.LinkTTLMinutes)
	assert.Equal(t, uint64(50*mb), eff.DirectSize)
	assert.Equal(t, service.SizePresetsMB, eff.SizePresetsMB)
	assert.Equal(t, service.TTLPresets, eff.TTLPresets)
}

// TestSettingsService_Update проверяет частичное обновление
func TestSettingsService_Update(t *testing.T) {
	svc, _ := setupSettingsService()
	ctx := context.Background()

	eff, err := svc.Update(ctx, "alice", &models.UpdateSettingsInput{MaxServerSizeMB: intPtr(2048)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2048*mb), eff.MaxServerSize)
	assert.Equal(t, 60, eff.LinkTTLMinutes)

	eff, err = svc.Update(ctx, "alice", &models.UpdateSettingsInput{LinkTTLMinutes: intPtr(720)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2048*mb), eff.MaxServerSize, "размер не должен сброситься")
	assert.Equal(t, 720, eff.LinkTTLMinutes)

	// другие вызывающие не затронуты
	other, err := svc.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(500*mb), other.MaxServerSize)
}

// TestSettingsService_UpdateValidation проверяет границы
func TestSettingsService_UpdateValidation(t *testing.T) {
	svc, _ := setupSettingsService()
	ctx := context.Background()

	invalid := []*models.UpdateSettingsInput{
		{MaxServerSizeMB: intPtr(0)},
		{MaxServerSizeMB: intPtr(-5)},
		{MaxServerSizeMB: intPtr(5121)},
		{LinkTTLMinutes: intPtr(0)},
		{LinkTTLMinutes: intPtr(1441)},
	}
	for _, in := range invalid {
		_, err := svc.Update(ctx, "alice", in)
		assert.ErrorIs(t, err, service.ErrInvalidSettings)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}

	// верхние границы допустимы
	eff, err := svc.Update(ctx, "alice", &models.UpdateSettingsInput{MaxServerSizeMB: intPtr(5120), LinkTTLMinutes: intPtr(1440)})
	require.NoError(t, err)
	assert.Equal(t, uint64(5120*mb), eff.MaxServerSize)
}

// TestSettingsService_Reset проверяет возврат к значениям по умолчанию
func TestSettingsService_Reset(t *testing.T) {
	svc, _ := setupSettingsService()
	ctx := context.Background()

	_, err := svc.Update(ctx, "alice", &models.UpdateSettingsInput{LinkTTLMinutes: intPtr(15)})
	require.NoError(t, err)

	eff, err := svc.Reset(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 60, eff.LinkTTLMinutes)

	eff, err = svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 60, eff.LinkTTLMinutes)
}

// TestSettingsService_StoredValuesClamped сохранённые значения не превышают текущих лимитов
func TestSettingsService_StoredValuesClamped(t *testing.T) {
	svc, repo := setupSettingsService()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "alice", &models.CallerSettings{MaxServerSize: 100 * 1024 * mb, LinkTTLMinutes: 10000}))

	eff, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, testLimits.MaxSizeLimit, eff.MaxServerSize)
	assert.Equal(t, 1440, eff.LinkTTLMinutes)
}

func TestSettingsService_StoreError(t *testing.T) {
	svc, repo := setupSettingsService()
	repo.GetErr = errors.New("connection refused")

	_, err := svc.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, apperr.ErrIO)
}
