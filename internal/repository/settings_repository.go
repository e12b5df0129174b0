package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/SergeiKhy/vidlink/internal/models"
)

var ErrSettingsNotFound = errors.New("settings not found")

// SettingsRepository хранилище настроек по идентификатору вызывающего
type SettingsRepository interface {
	Get(ctx context.Context, caller string) (*models.CallerSettings, error)
	Save(ctx context.Context, caller string, settings *models.CallerSettings) error
	Delete(ctx context.Context, caller string) error
}

type memorySettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]models.CallerSettings
}

// NewMemorySettingsRepository настройки в памяти процесса
func NewMemorySettingsRepository() SettingsRepository {
	return &memorySettingsRepository{settings: make(map[string]models.CallerSettings)}
}

func (r *memorySettingsRepository) Get(ctx context.Context, caller string) (*models.CallerSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[caller]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	return &s, nil
}

func (r *memorySettingsRepository) Save(ctx context.Context, caller string, settings *models.CallerSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[caller] = *settings
	return nil
}

func (r *memorySettingsRepository) Delete(ctx context.Context, caller string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings, caller)
	return nil
}
