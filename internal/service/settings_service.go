package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/repository"
	"github.com/docker/go-units"
	"go.uber.org/zap"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Предустановки, которые предлагаются пользователю; принимается любое значение в пределах лимитов
var (
	SizePresetsMB = []int{100, 200, 500, 1024, 2048, 5120}
	TTLPresets    = []int{15, 30, 60, 180, 360, 720, 1440}
)

// Limits системные значения по умолчанию и верхние границы
type Limits struct {
	DefaultMaxSize    uint64
	MaxSizeLimit      uint64
	DirectSize        uint64
	DefaultTTLMinutes int
	MaxTTLMinutes     int
}

// SettingsService настройки вызывающих поверх системных значений
type SettingsService interface {
	Get(ctx context.Context, caller string) (*models.EffectiveSettings, error)
	Update(ctx context.Context, caller string, input *models.UpdateSettingsInput) (*models.EffectiveSettings, error)
	Reset(ctx context.Context, caller string) (*models.EffectiveSettings, error)
	Defaults() *models.EffectiveSettings
}

type settingsService struct {
	repo   repository.SettingsRepository
	limits Limits
	logger *zap.Logger
}

// NewSettingsService создаёт сервис настроек
func NewSettingsService(repo repository.SettingsRepository, limits Limits, logger *zap.Logger) SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &settingsService{repo: repo, limits: limits, logger: logger}
}

// Get возвращает действующие настройки вызывающего
func (s *settingsService) Get(ctx context.Context, caller string) (*models.EffectiveSettings, error) {
	stored, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.effective(stored), nil
}

// Update проверяет и сохраняет изменённые поля; незаданные поля не меняются
func (s *settingsService) Update(ctx context.Context, caller string, input *models.UpdateSettingsInput) (*models.EffectiveSettings, error) {
	stored, err := s.load(ctx, caller)
	if err != nil {
		return nil, err
	}

	if input.MaxServerSizeMB != nil {
		size := uint64(*input.MaxServerSizeMB) * units.MiB
		if *input.MaxServerSizeMB < 1 || size > s.limits.MaxSizeLimit {
			return nil, apperr.New(apperr.KindValidation, "update settings",
				fmt.Errorf("%w: max_server_size_mb must be within 1..%d", ErrInvalidSettings, s.limits.MaxSizeLimit/units.MiB))
		}
		stored.MaxServerSize = size
	}
	if input.LinkTTLMinutes != nil {
		ttl := *input.LinkTTLMinutes
		if ttl < 1 || ttl > s.limits.MaxTTLMinutes {
			return nil, apperr.New(apperr.KindValidation, "update settings",
				fmt.Errorf("%w: link_ttl_minutes must be within 1..%d", ErrInvalidSettings, s.limits.MaxTTLMinutes))
		}
		stored.LinkTTLMinutes = ttl
	}

	if err := s.repo.Save(ctx, caller, &stored); err != nil {
		return nil, apperr.New(apperr.KindIO, "save settings", err)
	}
	s.logger.Info("Settings updated",
		zap.String("caller_id", caller),
		zap.Uint64("max_server_size", stored.MaxServerSize),
		zap.Int("link_ttl_minutes", stored.LinkTTLMinutes),
	)
	return s.effective(stored), nil
}

// Reset возвращает вызывающего к системным значениям
func (s *settingsService) Reset(ctx context.Context, caller string) (*models.EffectiveSettings, error) {
	if err := s.repo.Delete(ctx, caller); err != nil {
		return nil, apperr.New(apperr.KindIO, "reset settings", err)
	}
	return s.effective(models.CallerSettings{}), nil
}

func (s *settingsService) load(ctx context.Context, caller string) (models.CallerSettings, error) {
	stored, err := s.repo.Get(ctx, caller)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return models.CallerSettings{}, nil
		}
		return models.CallerSettings{}, apperr.New(apperr.KindIO, "load settings", err)
	}
	return *stored, nil
}

func (s *settingsService) effective(stored models.CallerSettings) *models.EffectiveSettings {
	size := stored.MaxServerSize
	if size == 0 {
		size = s.limits.DefaultMaxSize
	}
	size = min(size, s.limits.MaxSizeLimit)

	ttl := stored.LinkTTLMinutes
	if ttl <= 0 {
		ttl = s.limits.DefaultTTLMinutes
	}
	ttl = min(ttl, s.limits.MaxTTLMinutes)

	return &models.EffectiveSettings{
		MaxServerSize:  size,
		MaxServerSizeH: HumanSize(size),
		LinkTTLMinutes: ttl,
		DirectSize:     s.limits.DirectSize,
		DirectSizeH:    HumanSize(s.limits.DirectSize),
		SizePresetsMB:  SizePresetsMB,
		TTLPresets:     TTLPresets,
	}
}

// Defaults действующие настройки без учёта вызывающего
func (s *settingsService) Defaults() *models.EffectiveSettings {
	return s.effective(models.CallerSettings{})
}

// TTL срок жизни ссылки из действующих настроек
func TTL(eff *models.EffectiveSettings) time.Duration {
	return time.Duration(eff.LinkTTLMinutes) * time.Minute
}

// HumanSize размер в двоичных единицах, например "500MiB"
func HumanSize(n uint64) string {
	return units.BytesSize(float64(n))
}
