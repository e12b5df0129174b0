package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFromViper_Defaults проверяет значения по умолчанию
func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.App.Port)
	assert.Equal(t, "http://localhost:8000", cfg.App.BaseURL)
	assert.Equal(t, uint64(500*1024*1024), cfg.Limits.MaxServerSize)
	assert.Equal(t, uint64(5*1024*1024*1024), cfg.Limits.MaxServerSizeLimit)
	assert.Equal(t, uint64(50*1024*1024), cfg.Limits.DirectSize)
	assert.Equal(t, 60, cfg.Links.DefaultTTLMinutes)
	assert.Equal(t, 1440, cfg.Links.MaxTTLMinutes)
	assert.Equal(t, filepath.Join("temp", "videos"), filepath.Clean(cfg.Storage.VideosDir))
	assert.Equal(t, filepath.Join("temp", "downloads"), filepath.Clean(cfg.Storage.ScratchDir))
	assert.Equal(t, filepath.Join("temp", "links.json"), filepath.Clean(cfg.Storage.LinksDB))
	assert.Equal(t, 10*time.Minute, cfg.Storage.OrphanGrace)
	assert.Equal(t, []string{"best[ext=mp4]/best"}, cfg.Fetch.Formats)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.PollInterval)
	assert.Contains(t, cfg.Fetch.AllowedDomains, "youtu.be")
	assert.Equal(t, "memory", cfg.Settings.Backend)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.BurstSize)
	assert.Empty(t, cfg.Auth.APIKeys)
}

// TestFromViper_Overrides проверяет разбор пользовательских значений
func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("APP_PORT", "9000")
	v.Set("BASE_URL", "https://files.example.com/")
	v.Set("DATA_DIR", "/srv/vid")
	v.Set("MAX_SERVER_SIZE", "1GB")
	v.Set("DIRECT_SIZE", "20MB")
	v.Set("ALLOWED_DOMAINS", "YouTube.com, vimeo.com")
	v.Set("FETCH_FORMATS", "bv*+ba/b, best")
	v.Set("API_KEYS", "k1:alice, k2:bob")
	v.Set("ADMIN_KEYS", "root:admin")

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.com", cfg.App.BaseURL)
	assert.Equal(t, "/srv/vid/videos", cfg.Storage.VideosDir)
	assert.Equal(t, uint64(1<<30), cfg.Limits.MaxServerSize)
	assert.Equal(t, uint64(20<<20), cfg.Limits.DirectSize)
	assert.Equal(t, []string{"youtube.com", "vimeo.com"}, cfg.Fetch.AllowedDomains)
	assert.Equal(t, []string{"bv*+ba/b", "best"}, cfg.Fetch.Formats)
	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, cfg.Auth.APIKeys)
	assert.Equal(t, map[string]string{"root": "admin"}, cfg.Auth.AdminKeys)
}

// TestFromViper_InvalidSize проверяет отказ на некорректном размере
func TestFromViper_InvalidSize(t *testing.T) {
	v := viper.New()
	v.Set("MAX_SERVER_SIZE", "lots")

	_, err := fromViper(v)
	assert.Error(t, err)

	v = viper.New()
	v.Set("MAX_SERVER_SIZE", "10GB")
	_, err = fromViper(v)
	assert.Error(t, err, "лимит по умолчанию не может превышать верхнюю границу")
}

func TestParseAPIKeys(t *testing.T) {
	assert.Empty(t, parseAPIKeys(""))
	assert.Equal(t, map[string]string{"a": "b"}, parseAPIKeys("a:b,broken"))
}
