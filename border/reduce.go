package border

import (
	"errors"
	"image"
)

const bytesPerPixel = 4

var ErrShortImage = errors.New("border: pixel buffer shorter than stride*height")

// Image is a read-only view of 32-bit pixels. Within a pixel, red is bits
// 0-7, green 8-15 and blue 16-23 of the little-endian word; the top byte is
// ignored.
type Image struct {
	Width  int
	Height int
	// Stride is the distance in bytes between rows. Zero means 4*Width.
	Stride int
	Pix    []byte
}

func (m Image) stride() int {
	if m.Stride > 0 {
		return m.Stride
	}
	return m.Width * bytesPerPixel
}

// Bounds returns the pixel rectangle of m.
func (m Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Validate reports whether Pix can hold every row of the image.
func (m Image) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return nil
	}
	if len(m.Pix) < (m.Height-1)*m.stride()+m.Width*bytesPerPixel {
		return ErrShortImage
	}
	return nil
}

// Reduce returns the truncated per-channel mean over r. Parts of r outside
// the image are ignored and an empty window yields black.
func Reduce(m Image, r image.Rectangle) RGB {
	r = r.Intersect(m.Bounds())
	if r.Empty() {
		return RGB{}
	}

	stride := m.stride()
	var sr, sg, sb uint64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Pix[y*stride+r.Min.X*bytesPerPixel : y*stride+r.Max.X*bytesPerPixel]
		for o := 0; o < len(row); o += bytesPerPixel {
			sr += uint64(row[o])
			sg += uint64(row[o+1])
			sb += uint64(row[o+2])
		}
	}

	n := uint64(r.Dx() * r.Dy())
	return RGB{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n)}
}

// Compute fills dst with the color of every LED for m.
func Compute(m Image, dst *Colors) {
	for i, w := range Partition(m.Width, m.Height) {
		dst[i] = Reduce(m, w.Rect)
	}
}
