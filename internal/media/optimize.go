package media

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	imageMaxWidth = 1600
	jpegQuality   = 82
)

// Optimizer shrinks stored media in place. Every step is best-effort:
// when optimization fails or grows the file, the original stays.
type Optimizer struct {
	ffmpegPath string
	logger     *slog.Logger
}

func NewOptimizer(ffmpegPath string, logger *slog.Logger) *Optimizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Optimizer{ffmpegPath: ffmpegPath, logger: logger}
}

// Optimize rewrites path with a smaller rendition when possible and
// returns the path to use (possibly unchanged).
func (o *Optimizer) Optimize(ctx context.Context, path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return o.optimizeImage(path)
	case ".ogg", ".mp3", ".m4a", ".wav", ".oga":
		return o.optimizeAudio(ctx, path)
	default:
		return path
	}
}

// optimizeImage caps width and re-encodes as JPEG.
func (o *Optimizer) optimizeImage(path string) string {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		o.logger.Debug("image optimization skipped", "path", path, "error", err)
		return path
	}
	if img.Bounds().Dx() > imageMaxWidth {
		img = imaging.Resize(img, imageMaxWidth, 0, imaging.Lanczos)
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".opt.jpg"
	if err := imaging.Save(img, out, imaging.JPEGQuality(jpegQuality)); err != nil {
		o.logger.Debug("image re-encode failed", "path", path, "error", err)
		return path
	}
	return keepSmaller(path, out)
}

// optimizeAudio re-encodes to mono opus at 64 kbps via ffmpeg.
func (o *Optimizer) optimizeAudio(ctx context.Context, path string) string {
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".opt.ogg"
	cmd := exec.CommandContext(ctx, o.ffmpegPath,
		"-y", "-i", path,
		"-c:a", "libopus", "-b:a", "64k", "-ac", "1",
		out)
	if err := cmd.Run(); err != nil {
		o.logger.Debug("audio re-encode failed", "path", path, "error", err)
		os.Remove(out)
		return path
	}
	return keepSmaller(path, out)
}

// keepSmaller retains whichever file is smaller and removes the other.
func keepSmaller(original, candidate string) string {
	origInfo, err1 := os.Stat(original)
	candInfo, err2 := os.Stat(candidate)
	if err1 != nil || err2 != nil || candInfo.Size() >= origInfo.Size() {
		os.Remove(candidate)
		return original
	}
	os.Remove(original)
	return candidate
}

// Store couples download and optimization for the ingestion path.
type Store struct {
	Downloader *Downloader
	Optimizer  *Optimizer
	logger     *slog.Logger
}

func NewStore(dl *Downloader, opt *Optimizer, logger *slog.Logger) *Store {
	return &Store{Downloader: dl, Optimizer: opt, logger: logger}
}

// Persist resolves a media reference to a local path. Remote URLs are
// downloaded and optimized; local paths are optimized in place. Any
// failure returns the original reference so the pipeline keeps going.
func (s *Store) Persist(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		path, err := s.Downloader.Fetch(ctx, ref)
		if err != nil {
			s.logger.Warn("media persistence failed, keeping remote reference",
				"url", ref, "error", err)
			return ref
		}
		return s.Optimizer.Optimize(ctx, path)
	}
	if _, err := os.Stat(ref); err != nil {
		return ref
	}
	return s.Optimizer.Optimize(ctx, ref)
}
