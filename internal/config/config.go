package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Limits    LimitsConfig
	Links     LinksConfig
	Fetch     FetchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Settings  SettingsConfig
	Redis     RedisConfig
	Log       LogConfig
}

type AppConfig struct {
	Port        string
	BaseURL     string
	GinMode     string
	CORSOrigins []string
}

type StorageConfig struct {
	DataDir     string
	VideosDir   string
	ScratchDir  string
	LinksDB     string
	OrphanGrace time.Duration
}

type LimitsConfig struct {
	MaxServerSize      uint64 // лимит по умолчанию
	MaxServerSizeLimit uint64 // верхняя граница пользовательского лимита
	DirectSize         uint64 // до этого размера видео отдаётся напрямую
}

type LinksConfig struct {
	DefaultTTLMinutes int
	MaxTTLMinutes     int
}

type FetchConfig struct {
	Extractor      string // ytdlp | http
	YTDLPPath      string
	Formats        []string
	PollInterval   time.Duration
	AllowedDomains []string
}

type AuthConfig struct {
	APIKeys   map[string]string // API key -> name/description
	AdminKeys map[string]string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type SettingsConfig struct {
	Backend string // memory | redis
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type LogConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var defaultAllowedDomains = []string{
	"instagram.com",
	"youtube.com",
	"youtu.be",
	"tiktok.com",
	"vm.tiktok.com",
	"vt.tiktok.com",
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// .env необязателен: переменные окружения имеют приоритет
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return fromViper(viper.GetViper())
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("APP_PORT", "8000")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DATA_DIR", "./temp")
	v.SetDefault("ORPHAN_GRACE", "10m")
	v.SetDefault("MAX_SERVER_SIZE", "500MB")
	v.SetDefault("MAX_SERVER_SIZE_LIMIT", "5GB")
	v.SetDefault("DIRECT_SIZE", "50MB")
	v.SetDefault("LINK_TTL_MINUTES", 60)
	v.SetDefault("LINK_TTL_MAX_MINUTES", 1440)
	v.SetDefault("EXTRACTOR", "ytdlp")
	v.SetDefault("YTDLP_PATH", "yt-dlp")
	v.SetDefault("FETCH_FORMATS", "best[ext=mp4]/best")
	v.SetDefault("FETCH_POLL_INTERVAL", "500ms")
	v.SetDefault("SETTINGS_BACKEND", "memory")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 7)

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("BASE_URL"), "/")
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:" + cfg.App.Port
	}
	cfg.App.GinMode = v.GetString("GIN_MODE")
	cfg.App.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	// Пути
	cfg.Storage.DataDir = v.GetString("DATA_DIR")
	cfg.Storage.VideosDir = orDefault(v.GetString("VIDEOS_DIR"), filepath.Join(cfg.Storage.DataDir, "videos"))
	cfg.Storage.ScratchDir = orDefault(v.GetString("SCRATCH_DIR"), filepath.Join(cfg.Storage.DataDir, "downloads"))
	cfg.Storage.LinksDB = orDefault(v.GetString("LINKS_DB"), filepath.Join(cfg.Storage.DataDir, "links.json"))
	cfg.Storage.OrphanGrace = v.GetDuration("ORPHAN_GRACE")

	// Лимиты размеров
	var err error
	if cfg.Limits.MaxServerSize, err = parseSize(v, "MAX_SERVER_SIZE"); err != nil {
		return nil, err
	}
	if cfg.Limits.MaxServerSizeLimit, err = parseSize(v, "MAX_SERVER_SIZE_LIMIT"); err != nil {
		return nil, err
	}
	if cfg.Limits.DirectSize, err = parseSize(v, "DIRECT_SIZE"); err != nil {
		return nil, err
	}
	if cfg.Limits.MaxServerSize > cfg.Limits.MaxServerSizeLimit {
		return nil, fmt.Errorf("MAX_SERVER_SIZE (%d) exceeds MAX_SERVER_SIZE_LIMIT (%d)",
			cfg.Limits.MaxServerSize, cfg.Limits.MaxServerSizeLimit)
	}

	// Ссылки
	cfg.Links.DefaultTTLMinutes = v.GetInt("LINK_TTL_MINUTES")
	if cfg.Links.DefaultTTLMinutes <= 0 {
		cfg.Links.DefaultTTLMinutes = 60
	}
	cfg.Links.MaxTTLMinutes = v.GetInt("LINK_TTL_MAX_MINUTES")
	if cfg.Links.MaxTTLMinutes < cfg.Links.DefaultTTLMinutes {
		cfg.Links.MaxTTLMinutes = cfg.Links.DefaultTTLMinutes
	}

	// Скачивание
	cfg.Fetch.Extractor = strings.ToLower(v.GetString("EXTRACTOR"))
	cfg.Fetch.YTDLPPath = v.GetString("YTDLP_PATH")
	cfg.Fetch.Formats = splitList(v.GetString("FETCH_FORMATS"))
	cfg.Fetch.PollInterval = v.GetDuration("FETCH_POLL_INTERVAL")
	cfg.Fetch.AllowedDomains = splitList(strings.ToLower(v.GetString("ALLOWED_DOMAINS")))
	if len(cfg.Fetch.AllowedDomains) == 0 {
		cfg.Fetch.AllowedDomains = append([]string(nil), defaultAllowedDomains...)
	}

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	cfg.Auth.APIKeys = parseAPIKeys(v.GetString("API_KEYS"))
	cfg.Auth.AdminKeys = parseAPIKeys(v.GetString("ADMIN_KEYS"))

	// Rate limit config
	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 10
	}
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")
	if cfg.RateLimit.BurstSize == 0 {
		cfg.RateLimit.BurstSize = 20
	}

	cfg.Settings.Backend = strings.ToLower(v.GetString("SETTINGS_BACKEND"))
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Path = v.GetString("LOG_PATH")
	cfg.Log.MaxSizeMB = v.GetInt("LOG_MAX_SIZE_MB")
	cfg.Log.MaxBackups = v.GetInt("LOG_MAX_BACKUPS")
	cfg.Log.MaxAgeDays = v.GetInt("LOG_MAX_AGE_DAYS")
	cfg.Log.Compress = v.GetBool("LOG_COMPRESS")

	return &cfg, nil
}

// parseSize разбирает размер вида "500MB" / "5GB" (двоичные единицы)
func parseSize(v *viper.Viper, key string) (uint64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return uint64(n), nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
