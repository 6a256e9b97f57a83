package answercache

import (
	"encoding/binary"
	"image"

	"github.com/cespare/xxhash/v2"
)

// ImageFingerprint hashes the bounds and pixel data of img. It is cheap and
// deterministic, not collision resistant.
func ImageFingerprint(img image.Image) uint64 {
	d := xxhash.New()
	b := img.Bounds()

	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(int32(b.Min.X))) //nolint:gosec // bit pattern only
	binary.LittleEndian.PutUint32(hdr[4:], uint32(int32(b.Min.Y))) //nolint:gosec // bit pattern only
	binary.LittleEndian.PutUint32(hdr[8:], uint32(b.Dx()))         //nolint:gosec // bit pattern only
	binary.LittleEndian.PutUint32(hdr[12:], uint32(b.Dy()))        //nolint:gosec // bit pattern only
	_, _ = d.Write(hdr[:])

	switch m := img.(type) {
	case *image.RGBA:
		writeRows(d, m.Pix, m.Stride, b.Dx()*4, b.Dy())
	case *image.NRGBA:
		writeRows(d, m.Pix, m.Stride, b.Dx()*4, b.Dy())
	case *image.Gray:
		writeRows(d, m.Pix, m.Stride, b.Dx(), b.Dy())
	default:
		var px [8]byte
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, a := img.At(x, y).RGBA()
				binary.LittleEndian.PutUint16(px[0:], uint16(r))  //nolint:gosec // RGBA is 16-bit
				binary.LittleEndian.PutUint16(px[2:], uint16(g))  //nolint:gosec // RGBA is 16-bit
				binary.LittleEndian.PutUint16(px[4:], uint16(bl)) //nolint:gosec // RGBA is 16-bit
				binary.LittleEndian.PutUint16(px[6:], uint16(a))  //nolint:gosec // RGBA is 16-bit
				_, _ = d.Write(px[:])
			}
		}
	}
	return d.Sum64()
}

func writeRows(d *xxhash.Digest, pix []byte, stride, rowBytes, rows int) {
	for y := range rows {
		off := y * stride
		_, _ = d.Write(pix[off : off+rowBytes])
	}
}

// QuestionsFingerprint hashes an ordered question list. Reordering the list
// changes the result.
func QuestionsFingerprint(questions []string) uint64 {
	d := xxhash.New()
	var n [8]byte
	for _, q := range questions {
		binary.LittleEndian.PutUint64(n[:], uint64(len(q)))
		_, _ = d.Write(n[:])
		_, _ = d.WriteString(q)
	}
	return d.Sum64()
}

// KeyFor builds the cache key for an image fingerprint and question list.
func KeyFor(imageFP uint64, questions []string) Key {
	return Key{Image: imageFP, Questions: QuestionsFingerprint(questions)}
}
