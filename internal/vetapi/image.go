package vetapi

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// MaxSide is the longest edge handed to the engine. Larger images are
	// scaled down preserving aspect ratio; smaller ones are left alone.
	MaxSide = 512

	// maxPixels rejects images whose header claims more than this many pixels
	// before any pixel data is decoded.
	maxPixels = 50_000_000
)

var (
	errNoImage       = errors.New("no image provided")
	errBadBase64     = errors.New("image_base64 is not valid base64")
	errTooManyPixels = errors.New("image dimensions too large")
)

// decodeImage decodes a PNG, JPEG, GIF, BMP or WebP image and fits it within
// MaxSide x MaxSide.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errNoImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported or corrupt image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, errTooManyPixels
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported or corrupt image: %w", err)
	}
	return fit(img, MaxSide), nil
}

// decodeBase64Image accepts bare base64 or a data URL.
func decodeBase64Image(s string) (image.Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errNoImage
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errBadBase64
	}
	return decodeImage(data)
}

// fit scales img down so neither side exceeds limit.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	nw, nh := limit, limit
	if w >= h {
		nh = max(1, h*limit/w)
	} else {
		nw = max(1, w*limit/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
