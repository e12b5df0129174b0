package models

import (
	"time"
)

// LinkRecord запись реестра ссылок. Файл Filename лежит в хранилище видео.
type LinkRecord struct {
	ID          string    `json:"-"`
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessCount uint64    `json:"downloads"`
}

// Expired истекла ли ссылка к моменту now
func (r *LinkRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Remaining оставшееся время жизни, не меньше нуля
func (r *LinkRecord) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// LinkInfo ответ /info/{id}
type LinkInfo struct {
	Filename         string `json:"filename"`
	CreatedAt        string `json:"created_at"`
	ExpiresAt        string `json:"expires_at"`
	Downloads        uint64 `json:"downloads"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// NewLinkInfo собирает ответ /info из записи
func NewLinkInfo(r *LinkRecord, now time.Time) LinkInfo {
	return LinkInfo{
		Filename:         r.Filename,
		CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:        r.ExpiresAt.UTC().Format(time.RFC3339),
		Downloads:        r.AccessCount,
		ExpiresInMinutes: int(r.Remaining(now) / time.Minute),
	}
}

// SweepResult итог очистки реестра
type SweepResult struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// CleanupResult итог административной очистки
type CleanupResult struct {
	Removed        int `json:"removed"`
	Remaining      int `json:"remaining"`
	OrphansRemoved int `json:"orphans_removed"`
}
