package vetapi

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// pngHeader returns a PNG that stops after a valid IHDR chunk claiming w x h.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 1024, 768, 512, 384},
		{"portrait", 300, 900, 170, 512},
		{"exact", 512, 512, 512, 512},
		{"small", 100, 50, 100, 50},
		{"sliver", 4000, 1, 512, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := solid(tt.w, tt.h)
			got := fit(src, MaxSide)
			b := got.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("fit(%dx%d) = %dx%d, want %dx%d", tt.w, tt.h, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			if tt.w <= MaxSide && tt.h <= MaxSide && got != image.Image(src) {
				t.Error("image within bounds should be returned unchanged")
			}
		})
	}
}

func TestDecodeImage_Formats(t *testing.T) {
	t.Parallel()

	src := solid(40, 30)
	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, src) },
		"jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, src, nil) },
		"gif":  func(b *bytes.Buffer) error { return gif.Encode(b, src, nil) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, src) },
	}

	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := enc(&buf); err != nil {
				t.Fatalf("encode: %v", err)
			}
			img, err := decodeImage(buf.Bytes())
			if err != nil {
				t.Fatalf("decodeImage: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
				t.Errorf("bounds = %v, want 40x30", b)
			}
		})
	}
}

func TestDecodeImage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, errNoImage},
		{"huge dimensions", pngHeader(10000, 10000), errTooManyPixels},
		{"not an image", []byte("definitely not a picture"), nil},
		{"truncated png", pngHeader(10, 10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decodeImage(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeBase64Image(t *testing.T) {
	t.Parallel()

	raw := base64.StdEncoding.EncodeToString(encodePNG(t, solid(600, 300)))

	tests := []struct {
		name    string
		in      string
		wantErr error
		wantW   int
	}{
		{"bare", raw, nil, 512},
		{"data url", "data:image/png;base64," + raw, nil, 512},
		{"surrounding whitespace", "  \n" + raw + "\n", nil, 512},
		{"empty", "", errNoImage, 0},
		{"invalid base64", "!!!not base64!!!", errBadBase64, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img, err := decodeBase64Image(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeBase64Image: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != 256 {
				t.Errorf("bounds = %v, want %dx256", b, tt.wantW)
			}
		})
	}
}
