package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"strings"

	// Registered decoders for the formats PDFs commonly embed.
	_ "image/gif"
	_ "image/png"
)

// ErrImageTooSmall marks images below the minimum pixel-dimension threshold;
// they carry no useful visual signal and are skipped during embedding.
var ErrImageTooSmall = errors.New("image below minimum dimensions")

// NormalizeImage decodes raw image bytes, rejects images smaller than minDim
// pixels on either side, and re-encodes as 3-channel JPEG so every embedding
// input has the same color layout.
func NormalizeImage(data []byte, minDim int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() < minDim || bounds.Dy() < minDim {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, bounds.Dx(), bounds.Dy())
	}

	// Flatten alpha and palette formats onto an RGB(A) canvas.
	rgb := image.NewRGBA(bounds)
	draw.Draw(rgb, bounds, img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to re-encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeImageExt maps extractor-reported file types onto the extensions
// used for persisted copies.
func NormalizeImageExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "jpeg":
		return "jpg"
	case "":
		return "png"
	default:
		return ext
	}
}
