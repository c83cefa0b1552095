package utils

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNormalizeImageProducesJPEG(t *testing.T) {
	out, err := NormalizeImage(encodePNG(t, 32, 24), 10)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 24 {
		t.Errorf("dimensions changed: got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestNormalizeImageTooSmall(t *testing.T) {
	_, err := NormalizeImage(encodePNG(t, 5, 40), 10)
	if !errors.Is(err, ErrImageTooSmall) {
		t.Errorf("expected ErrImageTooSmall, got %v", err)
	}
}

func TestNormalizeImageUndecodable(t *testing.T) {
	if _, err := NormalizeImage([]byte("not an image"), 10); err == nil {
		t.Error("expected decode error")
	}
}

func TestNormalizeImageExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jpeg", "jpg"},
		{".jpeg", "jpg"},
		{"JPG", "jpg"},
		{"png", "png"},
		{"", "png"},
		{"tiff", "tiff"},
	}
	for _, tt := range tests {
		if got := NormalizeImageExt(tt.in); got != tt.want {
			t.Errorf("NormalizeImageExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
