package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"frameworks/crowsnest/pkg/clients"
	"frameworks/crowsnest/pkg/logging"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xf000 && g < 0x1000 && b < 0x1000
}

func TestCompositePlacesLogoTopRight(t *testing.T) {
	t.Parallel()
	base := solid(1000, 600, color.White)
	logo := solid(50, 25, color.RGBA{R: 255, A: 255})

	out := Composite(base, logo)
	if out.Bounds().Dx() != 1000 || out.Bounds().Dy() != 600 {
		t.Fatalf("size changed: %v", out.Bounds())
	}
	// logo is 100x50 at x=870..970, y=30..80
	if !isRed(out.At(920, 55)) {
		t.Fatalf("expected logo pixel inside the box, got %v", out.At(920, 55))
	}
	for _, p := range []image.Point{{860, 55}, {980, 55}, {920, 20}, {920, 90}, {10, 10}} {
		if isRed(out.At(p.X, p.Y)) {
			t.Fatalf("unexpected logo pixel at %v", p)
		}
	}
}

func TestOverlayFromURLWithLogo(t *testing.T) {
	src := encodePNG(t, solid(400, 300, color.White))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(src)
	}))
	defer srv.Close()

	logoPath := filepath.Join(t.TempDir(), "logo.png")
	if err := os.WriteFile(logoPath, encodePNG(t, solid(20, 20, color.RGBA{R: 255, A: 255})), 0o600); err != nil {
		t.Fatalf("write logo: %v", err)
	}

	o := New(Config{Fetcher: clients.NewFetcher(clients.FetcherConfig{})})
	data, err := o.Overlay(context.Background(), srv.URL+"/a.png", logoPath)
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	out := decodePNG(t, data)
	// 40x40 logo at x=330..370, y=30..70
	if !isRed(out.At(350, 50)) {
		t.Fatalf("expected logo at top right, got %v", out.At(350, 50))
	}
}

func TestOverlayWithoutLogoReencodes(t *testing.T) {
	raw := encodePNG(t, solid(64, 32, color.RGBA{B: 255, A: 255}))
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	o := New(Config{})
	data, err := o.Overlay(context.Background(), uri, filepath.Join(t.TempDir(), "missing.png"))
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	out := decodePNG(t, data)
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 32 {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
}

func TestOverlayRejectsPDFLogo(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "img.png")
	if err := os.WriteFile(imgPath, encodePNG(t, solid(400, 200, color.White)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	logoPath := filepath.Join(dir, "logo.pdf")
	if err := os.WriteFile(logoPath, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	logger := logging.NewDiscardLogger()
	hook := test.NewLocal(logger)
	o := New(Config{Logger: logger})
	data, err := o.Overlay(context.Background(), imgPath, logoPath)
	if err != nil {
		t.Fatalf("expected original image, got %v", err)
	}
	if isRed(decodePNG(t, data).At(340, 40)) {
		t.Fatalf("logo must not be drawn")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logging.ErrorLevel {
		t.Fatalf("expected error log for pdf logo")
	}
	if err, _ := entry.Data[logrus.ErrorKey].(error); !errors.Is(err, ErrUnsupportedLogo) {
		t.Fatalf("expected ErrUnsupportedLogo, got %v", entry.Data[logrus.ErrorKey])
	}
}

func TestOverlayErrors(t *testing.T) {
	o := New(Config{})
	if _, err := o.Overlay(context.Background(), "", ""); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
	if _, err := o.Overlay(context.Background(), "data:image/png;base64,@@@", ""); err == nil {
		t.Fatalf("expected bad data uri to fail")
	}
	notImage := filepath.Join(t.TempDir(), "x.txt")
	_ = os.WriteFile(notImage, []byte("hello"), 0o600)
	if _, err := o.Overlay(context.Background(), notImage, ""); err == nil {
		t.Fatalf("expected decode failure")
	}
}
