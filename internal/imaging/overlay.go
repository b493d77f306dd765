// Package imaging stamps the page logo onto article images.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"frameworks/crowsnest/pkg/cache"
	"frameworks/crowsnest/pkg/logging"
)

const (
	// LogoWidthRatio is the logo width relative to the image width.
	LogoWidthRatio = 0.10
	// LogoMargin is the distance from the top and right edges.
	LogoMargin = 30

	defaultMaxBytes = 20 << 20
)

var (
	ErrUnsupportedLogo = errors.New("unsupported logo format")
	ErrEmptySource     = errors.New("empty image source")
)

// Getter downloads remote images.
type Getter interface {
	Get(ctx context.Context, url string, maxBytes int64) ([]byte, http.Header, error)
}

type Config struct {
	Fetcher  Getter
	MaxBytes int64
	Logger   logging.Logger
}

// Overlayer composites a logo onto images from URLs, data URIs or files.
type Overlayer struct {
	fetcher  Getter
	maxBytes int64
	logger   logging.Logger
	logos    *cache.Cache[image.Image]
}

func New(cfg Config) *Overlayer {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Overlayer{
		fetcher:  cfg.Fetcher,
		maxBytes: cfg.MaxBytes,
		logger:   cfg.Logger,
		logos:    cache.New[image.Image](cache.Options{TTL: 10 * time.Minute, MaxEntries: 8}, cache.MetricsHooks{}),
	}
}

// Overlay loads source, stamps the logo at logoPath in the top-right corner
// and returns a PNG. Without a usable logo the source is re-encoded as is.
func (o *Overlayer) Overlay(ctx context.Context, source, logoPath string) ([]byte, error) {
	data, err := o.load(ctx, source)
	if err != nil {
		return nil, err
	}
	base, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	logo, err := o.logo(ctx, logoPath)
	switch {
	case err != nil:
		o.logger.WithError(err).WithField("logo", logoPath).Error("Overlay: logo unusable, keeping original image")
		logo = nil
	case logo == nil:
		o.logger.WithField("logo", logoPath).Debug("Overlay: no logo configured, keeping original image")
	}

	out := base
	if logo != nil {
		out = Composite(base, logo)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Composite draws logo scaled to LogoWidthRatio of base's width, keeping its
// aspect ratio, LogoMargin pixels from the top-right corner.
func Composite(base, logo image.Image) *image.RGBA {
	b := base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), base, b.Min, draw.Src)

	lb := logo.Bounds()
	w := int(float64(b.Dx()) * LogoWidthRatio)
	if w < 1 || lb.Dx() == 0 {
		return dst
	}
	h := lb.Dy() * w / lb.Dx()
	if h < 1 {
		h = 1
	}
	x := b.Dx() - w - LogoMargin
	if x < 0 {
		x = 0
	}
	rect := image.Rect(x, LogoMargin, x+w, LogoMargin+h)
	draw.CatmullRom.Scale(dst, rect, logo, lb, draw.Over, nil)
	return dst
}

func (o *Overlayer) load(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return nil, ErrEmptySource
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if o.fetcher == nil {
			return nil, fmt.Errorf("no fetcher for %s", source)
		}
		data, _, err := o.fetcher.Get(ctx, source, o.maxBytes)
		return data, err
	case strings.HasPrefix(source, "data:image"):
		idx := strings.Index(source, ";base64,")
		if idx < 0 {
			return nil, errors.New("data uri is not base64")
		}
		data, err := base64.StdEncoding.DecodeString(source[idx+len(";base64,"):])
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return data, nil
	default:
		return os.ReadFile(source)
	}
}

// logo returns (nil, nil) when no logo is configured or the file is gone.
func (o *Overlayer) logo(ctx context.Context, path string) (image.Image, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("%w: convert %s to PNG or JPG", ErrUnsupportedLogo, filepath.Base(path))
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	return o.logos.Get(ctx, key, func(context.Context, string) (image.Image, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode logo: %w", err)
		}
		return img, nil
	})
}
