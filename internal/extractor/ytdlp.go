package extractor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/vidlink/internal/apperr"
	"go.uber.org/zap"
)

const (
	progressPrefix = "progress:"
	titlePrefix    = "title:"
	outputTailSize = 10
	waitDelay      = 5 * time.Second
)

// YTDLP извлекает видео внешним процессом yt-dlp
type YTDLP struct {
	path   string
	logger *zap.Logger
}

// NewYTDLP создаёт извлекатель; path путь к бинарнику yt-dlp
func NewYTDLP(path string, logger *zap.Logger) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLP{path: path, logger: logger}
}

func (y *YTDLP) args(req Request) []string {
	args := []string{
		"--no-playlist",
		"--newline",
		"--no-simulate",
		"--progress",
		"--force-overwrites",
		"--socket-timeout", "30",
		"--retries", "10",
		"--fragment-retries", "10",
		"--progress-template", "download:" + progressPrefix + "%(progress.downloaded_bytes)s",
		"--print", "after_move:" + titlePrefix + "%(title)s",
		"-o", req.OutputPath,
	}
	if req.Format != "" {
		args = append(args, "-f", req.Format)
	}
	return append(args, "--", req.URL)
}

// Extract запускает yt-dlp и разбирает прогресс из вывода процесса
func (y *YTDLP) Extract(ctx context.Context, req Request, progress ProgressFunc) (*MediaInfo, error) {
	// Ошибку каталога назначения yt-dlp выдал бы как обычный сбой загрузки
	if fi, err := os.Stat(filepath.Dir(req.OutputPath)); err != nil {
		return nil, apperr.New(apperr.KindIO, "output dir", err)
	} else if !fi.IsDir() {
		return nil, apperr.New(apperr.KindIO, "output dir", fmt.Errorf("%s is not a directory", filepath.Dir(req.OutputPath)))
	}

	cmd := exec.CommandContext(ctx, y.path, y.args(req)...)
	// При отмене убивается вся группа: yt-dlp и запущенный им ffmpeg
	setProcessGroup(cmd)
	// Дочерние процессы могут держать вывод открытым после kill
	cmd.WaitDelay = waitDelay

	// Строки прогресса в зависимости от режима идут в stdout или stderr
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var (
		info MediaInfo
		tail []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if n, ok := parseProgress(line); ok {
				notify(progress, n)
				continue
			}
			if title, ok := strings.CutPrefix(line, titlePrefix); ok {
				info.Title = strings.TrimSpace(title)
			} else if line != "" {
				tail = append(tail, line)
				if len(tail) > outputTailSize {
					tail = tail[1:]
				}
			}
		}
		// Дочитываем остаток, чтобы процесс не блокировался на записи
		_, _ = io.Copy(io.Discard, pr)
	}()

	if err := cmd.Start(); err != nil {
		pw.Close()
		<-done
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}
	err := cmd.Wait()
	pw.Close()
	<-done

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		y.logger.Debug("yt-dlp failed", zap.String("url", req.URL), zap.Strings("output", tail))
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, lastLine(tail))
	}

	return &info, nil
}

func parseProgress(line string) (uint64, bool) {
	raw, ok := strings.CutPrefix(line, progressPrefix)
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	// yt-dlp печатает NA или дробное значение
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, true
	}
	return n, true
}

func lastLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], "ERROR") {
			return lines[i]
		}
	}
	if len(lines) == 0 {
		return "no output"
	}
	return lines[len(lines)-1]
}
