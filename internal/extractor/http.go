package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/SergeiKhy/vidlink/internal/apperr"
	"go.uber.org/zap"
)

const (
	defaultRetryMax = 2
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	maxPageSize     = 4 << 20
)

// Мета-теги, в которых страницы публикуют прямую ссылку на видео, в порядке приоритета
var videoMetaProps = []string{"og:video:secure_url", "og:video:url", "og:video", "twitter:player:stream"}

// RetryTransport повторяет идемпотентные запросы без тела при сетевых ошибках
type RetryTransport struct {
	Base     http.RoundTripper
	RetryMax int
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	retries := t.RetryMax
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	if retries < 0 || !canRetry {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", userAgent)
		}
		resp, err := base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewHTTPClient клиент для скачивания страниц и видео. Общего таймаута нет:
// длительность передачи ограничивает контекст.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &RetryTransport{
			Base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
			RetryMax: defaultRetryMax,
		},
	}
}

// HTTP извлекает видео без внешних инструментов: либо ссылка сразу отдаёт video/*,
// либо ссылка на видео берётся из og:video или тега <video> на странице.
type HTTP struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTP создаёт извлекатель; client nil означает NewHTTPClient()
func NewHTTP(client *http.Client, logger *zap.Logger) *HTTP {
	if client == nil {
		client = NewHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{client: client, logger: logger}
}

func (h *HTTP) Extract(ctx context.Context, req Request, progress ProgressFunc) (*MediaInfo, error) {
	resp, err := h.get(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	if isVideo(resp.Header.Get("Content-Type")) {
		defer resp.Body.Close()
		if err := saveBody(resp.Body, req.OutputPath, progress); err != nil {
			return nil, err
		}
		return &MediaInfo{Title: titleFromPath(resp.Request.URL)}, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	mediaURL, ok := findMediaURL(doc, resp.Request.URL)
	if !ok {
		return nil, ErrNoMedia
	}
	title := findTitle(doc)
	h.logger.Debug("Media stream resolved", zap.String("page", req.URL), zap.String("media", mediaURL))

	media, err := h.get(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	defer media.Body.Close()

	if err := saveBody(media.Body, req.OutputPath, progress); err != nil {
		return nil, err
	}
	return &MediaInfo{Title: title}, nil
}

func (h *HTTP) get(ctx context.Context, rawURL string) (*http.Response, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

func findMediaURL(doc *goquery.Document, base *url.URL) (string, bool) {
	var candidates []string
	for _, prop := range videoMetaProps {
		sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, prop, prop)
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			candidates = append(candidates, v)
		}
	}
	doc.Find("video[src], video source[src]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("src"); ok {
			candidates = append(candidates, v)
		}
	})

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		u, err := base.Parse(c)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		return u.String(), true
	}
	return "", false
}

func findTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func titleFromPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segs[len(segs)-1]
}

func isVideo(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mt, "video/")
}

// saveBody пишет тело ответа в уже зарезервированный файл, сообщая прогресс.
// Ошибки локального файла возвращаются как IO, ошибки чтения тела остаются ошибками извлечения.
func saveBody(body io.Reader, path string, progress ProgressFunc) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.New(apperr.KindIO, "open output", err)
	}
	pw := &progressWriter{w: f, progress: progress}
	_, copyErr := io.Copy(pw, body)
	closeErr := f.Close()

	if pw.err != nil {
		return apperr.New(apperr.KindIO, "write output", pw.err)
	}
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return apperr.New(apperr.KindIO, "close output", closeErr)
	}
	return nil
}

type progressWriter struct {
	w        io.Writer
	written  uint64
	progress ProgressFunc
	err      error
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += uint64(n)
	notify(p.progress, p.written)
	if err != nil {
		p.err = err
	}
	return n, err
}
