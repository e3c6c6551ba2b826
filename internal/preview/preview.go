// Package preview renders a dataset image with its labels written on top,
// scaled to fit the operator's screen.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/patrickmn/go-cache"
	"golang.org/x/image/font"

	// Extra decoders for the walker's image extensions.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/starford/laguz/internal/apperr"
)

const (
	DefaultWidth    = 800
	DefaultHeight   = 600
	DefaultFontSize = 16
	DefaultCacheTTL = 5 * time.Minute

	// Label lines start at textHeight and are spaced by textHeight+lineGap.
	textHeight = 20
	lineGap    = 5
	textX      = 3
)

// Config controls the rendered output.
type Config struct {
	Width    int
	Height   int
	FontPath string  // TrueType font; the built-in bitmap font is used when empty
	FontSize float64 // points, only used with FontPath
	CacheTTL time.Duration
}

// Renderer draws previews and caches the encoded PNGs.
type Renderer struct {
	cfg    Config
	logger *slog.Logger
	cache  *cache.Cache

	mu   sync.Mutex // guards face, which keeps glyph caches
	face font.Face
}

// New creates a renderer. A configured font that cannot be loaded is an
// error.
func New(cfg Config, logger *slog.Logger) (*Renderer, error) {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = DefaultFontSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Renderer{
		cfg:    cfg,
		logger: logger,
		cache:  cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
	}
	if cfg.FontPath != "" {
		face, err := gg.LoadFontFace(cfg.FontPath, cfg.FontSize)
		if err != nil {
			return nil, fmt.Errorf("preview: load font %s: %w", cfg.FontPath, err)
		}
		r.face = face
	}
	return r, nil
}

// Render returns the PNG preview of the image at absPath with one label per
// line in the top-left corner. A missing file yields apperr.ErrNotFound.
func (r *Renderer) Render(ctx context.Context, absPath string, labels []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("preview: %s: %w", absPath, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("preview: stat %s: %w", absPath, err)
	}

	key := cacheKey(absPath, info.ModTime(), info.Size(), labels)
	if cached, found := r.cache.Get(key); found {
		return cached.([]byte), nil
	}

	img, err := imaging.Open(absPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("preview: decode %s: %w", absPath, err)
	}
	out, err := r.draw(img, labels)
	if err != nil {
		return nil, fmt.Errorf("preview: render %s: %w", absPath, err)
	}

	r.cache.Set(key, out, cache.DefaultExpiration)
	r.logger.Debug("preview: rendered",
		slog.String("path", absPath),
		slog.Int("bytes", len(out)),
		slog.Int("labels", len(labels)))
	return out, nil
}

// Flush drops every cached preview.
func (r *Renderer) Flush() { r.cache.Flush() }

// Cached returns the number of cached previews.
func (r *Renderer) Cached() int { return r.cache.ItemCount() }

func (r *Renderer) draw(img image.Image, labels []string) ([]byte, error) {
	img = imaging.Fit(img, r.cfg.Width, r.cfg.Height, imaging.Lanczos)

	dc := gg.NewContextForImage(img)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.face != nil {
		dc.SetFontFace(r.face)
	}
	dc.SetRGB(0, 0, 1)
	for i, l := range labels {
		y := textHeight + textHeight*i + lineGap*i
		dc.DrawString(l, textX, float64(y))
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cacheKey(path string, mod time.Time, size int64, labels []string) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(mod.UnixNano(), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(size, 10))
	for _, l := range labels {
		b.WriteByte('|')
		b.WriteString(l)
	}
	return b.String()
}
