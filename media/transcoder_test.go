package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"
)

// noisePNG encodes a w×h image of random pixels. Noise barely compresses,
// so anything reasonably large lands well past the passthrough limit.
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode noise png: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareSmallPassthrough(t *testing.T) {
	data := make([]byte, 1024)
	rand.New(rand.NewSource(2)).Read(data)

	out, mimeType, err := Prepare(data, "image/png")
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected small input to pass through byte-identical")
	}
	if mimeType != "image/png" {
		t.Errorf("expected declared mime to be kept, got %q", mimeType)
	}
}

func TestPrepareOversizedResized(t *testing.T) {
	data := noisePNG(t, 2600, 1300)
	if len(data) <= MaxPassthroughBytes {
		t.Fatalf("test image too small to exercise transcoding: %d bytes", len(data))
	}

	out, mimeType, err := Prepare(data, "image/png")
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if mimeType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", mimeType)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable JPEG: %v", err)
	}
	if cfg.Width > 1920 || cfg.Height > 1920 {
		t.Errorf("expected both dimensions <= 1920, got %dx%d", cfg.Width, cfg.Height)
	}
	// 2:1 aspect must survive the downscale
	if cfg.Width != 1920 || cfg.Height != 960 {
		t.Errorf("expected 1920x960, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPrepareOversizedSquare(t *testing.T) {
	data := noisePNG(t, 2200, 2200)
	if len(data) <= MaxPassthroughBytes {
		t.Fatalf("test image too small to exercise transcoding: %d bytes", len(data))
	}

	out, _, err := Prepare(data, "image/png")
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable JPEG: %v", err)
	}
	if cfg.Width != 1920 || cfg.Height != 1920 {
		t.Errorf("expected 1920x1920, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPrepareOversizedNotAnImage(t *testing.T) {
	data := make([]byte, MaxPassthroughBytes+1)
	rand.New(rand.NewSource(3)).Read(data)

	_, _, err := Prepare(data, "application/pdf")
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}
}
