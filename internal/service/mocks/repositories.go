package mocks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"github.com/SergeiKhy/vidlink/internal/models"
	"github.com/SergeiKhy/vidlink/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository in memory
type MockLinkRepository struct {
	mu        sync.Mutex
	links     map[string]*models.LinkRecord
	Now       func() time.Time
	CreateErr error
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links: make(map[string]*models.LinkRecord),
		Now:   time.Now,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, filename string, ttl time.Duration) (*models.LinkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if ttl <= 0 {
		return nil, apperr.New(apperr.KindValidation, "create link", repository.ErrInvalidTTL)
	}

	b := make([]byte, 6)
	_, _ = rand.Read(b)
	now := m.Now()
	rec := &models.LinkRecord{
		ID:        hex.EncodeToString(b),
		Filename:  filename,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.links[rec.ID] = rec
	out := *rec
	return &out, nil
}

func (m *MockLinkRepository) Resolve(ctx context.Context, id string) (*models.LinkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()
	rec, ok := m.links[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "resolve link", repository.ErrLinkNotFound)
	}
	rec.AccessCount++
	out := *rec
	return &out, nil
}

func (m *MockLinkRepository) Sweep(ctx context.Context) (models.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.sweepLocked()
	return models.SweepResult{Removed: removed, Remaining: len(m.links)}, nil
}

func (m *MockLinkRepository) Filenames() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]struct{})
	for _, rec := range m.links {
		out[rec.Filename] = struct{}{}
	}
	return out
}

func (m *MockLinkRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// Records returns a snapshot of live records
func (m *MockLinkRepository) Records() []models.LinkRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.LinkRecord, 0, len(m.links))
	for _, rec := range m.links {
		out = append(out, *rec)
	}
	return out
}

func (m *MockLinkRepository) sweepLocked() int {
	now := m.Now()
	removed := 0
	for id, rec := range m.links {
		if rec.Expired(now) {
			delete(m.links, id)
			removed++
		}
	}
	return removed
}

// MockSettingsRepository implements repository.SettingsRepository; GetErr simulates an unavailable store
type MockSettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]models.CallerSettings
	GetErr   error
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{settings: make(map[string]models.CallerSettings)}
}

func (m *MockSettingsRepository) Get(ctx context.Context, caller string) (*models.CallerSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	s, ok := m.settings[caller]
	if !ok {
		return nil, repository.ErrSettingsNotFound
	}
	return &s, nil
}

func (m *MockSettingsRepository) Save(ctx context.Context, caller string, settings *models.CallerSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[caller] = *settings
	return nil
}

func (m *MockSettingsRepository) Delete(ctx context.Context, caller string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, caller)
	return nil
}

// MockFetcher implements fetcher.Fetcher by writing a file of Size bytes into ScratchDir
type MockFetcher struct {
	mu         sync.Mutex
	ScratchDir string
	Size       int
	Platform   string
	Title      string
	Err        error
	Requests   []models.FetchRequest
	seq        int
}

func (m *MockFetcher) Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchedVideo, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if uint64(m.Size) > req.SizeCeiling {
		return nil, apperr.SizeExceeded("fetch", uint64(m.Size), req.SizeCeiling)
	}

	platform := m.Platform
	if platform == "" {
		platform = "youtube"
	}
	path := filepath.Join(m.ScratchDir, fmt.Sprintf("temp_%s_%d.mp4", platform, seq))
	if err := os.WriteFile(path, make([]byte, m.Size), 0o644); err != nil {
		return nil, apperr.New(apperr.KindIO, "fetch", err)
	}
	return &models.FetchedVideo{
		LocalPath: path,
		Size:      uint64(m.Size),
		Platform:  platform,
		Title:     m.Title,
	}, nil
}

// LastRequest returns the most recent fetch request
func (m *MockFetcher) LastRequest() (models.FetchRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return models.FetchRequest{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}

// MockDelivery implements service.Delivery and records what was delivered
type MockDelivery struct {
	mu      sync.Mutex
	Video   *models.DirectVideo
	Content []byte
	Link    *models.PublishedLink
	Err     error
}

var ErrDeliveryFailed = errors.New("delivery failed")

func (m *MockDelivery) SendVideo(ctx context.Context, video *models.DirectVideo, content io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.Video = video
	m.Content = data
	return nil
}

func (m *MockDelivery) SendLink(ctx context.Context, link *models.PublishedLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.Link = link
	return nil
}
