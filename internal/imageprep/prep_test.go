package imageprep

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func buildTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareJPEGDownscalesLargeImage(t *testing.T) {
	prep, err := New()
	if err != nil {
		t.Fatalf("new preprocessor: %v", err)
	}

	src := buildTestPNG(t, 400, 200)
	out, width, height, err := prep.PrepareJPEG(context.Background(), src, 100, 80)
	if err != nil {
		t.Fatalf("prepare jpeg: %v", err)
	}
	if width != 100 {
		t.Fatalf("expected width 100, got %d", width)
	}
	if height != 50 {
		t.Fatalf("expected height 50, got %d", height)
	}

	decoded, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 50 {
		t.Fatalf("unexpected output bounds %v", decoded.Bounds())
	}
}

func TestPrepareJPEGKeepsSmallImageDimensions(t *testing.T) {
	prep, err := New()
	if err != nil {
		t.Fatalf("new preprocessor: %v", err)
	}

	src := buildTestPNG(t, 60, 40)
	_, width, height, err := prep.PrepareJPEG(context.Background(), src, 100, 80)
	if err != nil {
		t.Fatalf("prepare jpeg: %v", err)
	}
	if width != 60 || height != 40 {
		t.Fatalf("expected 60x40, got %dx%d", width, height)
	}
}

func TestPrepareJPEGRejectsGarbage(t *testing.T) {
	prep, err := New()
	if err != nil {
		t.Fatalf("new preprocessor: %v", err)
	}

	_, _, _, err = prep.PrepareJPEG(context.Background(), []byte("not an image"), 100, 80)
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}
