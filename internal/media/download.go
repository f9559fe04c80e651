// Package media persists inbound attachments: a size/type-gated
// download step followed by a best-effort optimization step.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxBytes caps a single attachment download.
	DefaultMaxBytes = 25 * 1024 * 1024

	probeTimeout    = 5 * time.Second
	downloadTimeout = 30 * time.Second
)

// allowedTypes is the inbound attachment MIME allow-list. Prefix match
// covers parameterized types like "audio/ogg; codecs=opus".
var allowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"audio/ogg",
	"audio/mpeg",
	"audio/mp4",
	"audio/wav",
	"audio/webm",
	"application/pdf",
	"video/mp4",
}

// Downloader fetches remote attachments onto local disk.
type Downloader struct {
	dir      string
	maxBytes int64
	client   *http.Client
}

func NewDownloader(dir string, maxBytes int64) *Downloader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Downloader{
		dir:      dir,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: downloadTimeout},
	}
}

func typeAllowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

// probe checks declared size and type before committing to a download.
// Probe failures are not fatal: some hosts reject HEAD.
func (d *Downloader) probe(ctx context.Context, url string) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	if err != nil {
		return nil
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > d.maxBytes {
			return fmt.Errorf("attachment too large: %d bytes (cap %d)", size, d.maxBytes)
		}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !typeAllowed(ct) {
		return fmt.Errorf("attachment type not allowed: %s", ct)
	}
	return nil
}

// Fetch downloads url into the media directory and returns the local
// path. The stream is hard-capped at maxBytes regardless of what the
// probe saw.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	if err := d.probe(ctx, url); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("media request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media download: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !typeAllowed(ct) {
		return "", fmt.Errorf("attachment type not allowed: %s", ct)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("media dir: %w", err)
	}
	name := uuid.Must(uuid.NewV7()).String() + extensionFor(resp.Header.Get("Content-Type"), url)
	path := filepath.Join(d.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("media file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("media stream: %w", err)
	}
	if n > d.maxBytes {
		os.Remove(path)
		return "", fmt.Errorf("attachment exceeded %d byte cap", d.maxBytes)
	}
	return path, nil
}

func extensionFor(contentType, url string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(ct, "image/png"):
		return ".png"
	case strings.HasPrefix(ct, "image/webp"):
		return ".webp"
	case strings.HasPrefix(ct, "image/gif"):
		return ".gif"
	case strings.HasPrefix(ct, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(ct, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(ct, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(ct, "video/mp4"):
		return ".mp4"
	}
	if ext := filepath.Ext(strings.SplitN(url, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".bin"
}
