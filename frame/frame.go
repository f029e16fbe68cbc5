// Package frame encodes LED colors into the fixed serial framing understood by
// the strip controller:
//
//	"WAMB" | R G B for every LED in wiring order | "BMAW"
package frame

import "wlambilight.app/ambilight/border"

var (
	Header = [4]byte{'W', 'A', 'M', 'B'}
	Footer = [4]byte{'B', 'M', 'A', 'W'}
)

// Size is the length of every encoded frame.
const Size = len(Header) + 3*border.Total + len(Footer)

const payloadOffset = len(Header)

// Buffer is a pre-sized frame. Header and footer are written once by
// NewBuffer; Encode only touches the color payload.
type Buffer struct {
	b [Size]byte
}

// NewBuffer returns a framed buffer with an all-black payload.
func NewBuffer() *Buffer {
	f := &Buffer{}
	copy(f.b[:], Header[:])
	copy(f.b[Size-len(Footer):], Footer[:])
	return f
}

// Encode overwrites the payload with c.
func (f *Buffer) Encode(c *border.Colors) {
	p := f.b[payloadOffset : payloadOffset+3*border.Total]
	for i, rgb := range c {
		p[3*i] = rgb.R
		p[3*i+1] = rgb.G
		p[3*i+2] = rgb.B
	}
}

// Blank sets every LED to black.
func (f *Buffer) Blank() {
	clear(f.b[payloadOffset : payloadOffset+3*border.Total])
}

// Bytes returns the backing frame. The slice aliases the buffer and stays
// valid for its lifetime.
func (f *Buffer) Bytes() []byte {
	return f.b[:]
}

// Slot returns the color currently encoded for LED i.
func (f *Buffer) Slot(i int) border.RGB {
	o := payloadOffset + 3*i
	return border.RGB{R: f.b[o], G: f.b[o+1], B: f.b[o+2]}
}
