package models

import (
	"time"
)

// FetchRequest запрос на скачивание с лимитом размера
type FetchRequest struct {
	SourceURL   string
	SizeCeiling uint64
	Formats     []string
}

// FetchedVideo успешный результат скачивания; LocalPath принадлежит вызывающему до передачи в хранилище
type FetchedVideo struct {
	LocalPath string
	Size      uint64
	Platform  string
	Title     string
}

// DirectVideo видео, отдаваемое вызывающему напрямую
type DirectVideo struct {
	Platform string
	Title    string
	Size     uint64
}

// PublishedLink опубликованная временная ссылка
type PublishedLink struct {
	LinkID      string
	DownloadURL string
	InfoURL     string
	Filename    string
	Platform    string
	Title       string
	Size        uint64
	TTL         time.Duration
	ExpiresAt   time.Time
}
