package ai

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func TestNormalizeUnitLength(t *testing.T) {
	vec := normalize([]float32{3, 4})
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-6 {
		t.Errorf("norm = %v, want 1", math.Sqrt(sum))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("vec = %v, want [0.6 0.8]", vec)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	vec := normalize([]float32{0, 0, 0})
	for _, v := range vec {
		if v != 0 {
			t.Errorf("zero vector changed: %v", vec)
		}
	}
}

func TestNormalizeAllOrderPreserved(t *testing.T) {
	vecs := normalizeAll([][]float32{{2, 0}, {0, 5}})
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vecs = %v", vecs)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPrepareImagesIndexMapping(t *testing.T) {
	inputs := [][]byte{
		testPNG(t, 50, 50),
		[]byte("garbage"),
		testPNG(t, 3, 3), // below minimum
		testPNG(t, 20, 40),
	}

	valid, indices := prepareImages(inputs, 10)
	if len(valid) != 2 {
		t.Fatalf("got %d valid images, want 2", len(valid))
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 3 {
		t.Errorf("indices = %v, want [0 3]", indices)
	}
}

func TestPrepareImagesAllRejected(t *testing.T) {
	valid, indices := prepareImages([][]byte{[]byte("a"), []byte("b")}, 10)
	if len(valid) != 0 || len(indices) != 0 {
		t.Errorf("valid = %d, indices = %v, want empty", len(valid), indices)
	}
}

func TestPrepareImagesEmpty(t *testing.T) {
	valid, indices := prepareImages(nil, 10)
	if valid != nil || indices != nil {
		t.Errorf("got %v / %v, want nil", valid, indices)
	}
}

func TestGetRateLimits(t *testing.T) {
	tests := []struct {
		tier    string
		wantRPM int
	}{
		{"free", 10},
		{"tier1", 1000},
		{"tier2", 2000},
		{"unknown", 10},
		{"", 10},
	}
	for _, tt := range tests {
		if got := getRateLimits(tt.tier); got.RPM != tt.wantRPM {
			t.Errorf("getRateLimits(%q).RPM = %d, want %d", tt.tier, got.RPM, tt.wantRPM)
		}
	}
}
