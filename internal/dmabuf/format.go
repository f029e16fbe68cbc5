package dmabuf

import "fmt"

// Format is a DRM fourcc pixel format code.
type Format uint32

const (
	FormatXRGB8888 Format = 'X' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatARGB8888 Format = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatXBGR8888 Format = 'X' | 'B'<<8 | '2'<<16 | '4'<<24
	FormatABGR8888 Format = 'A' | 'B'<<8 | '2'<<16 | '4'<<24
)

// Modifiers with a fixed meaning across vendors.
const (
	ModLinear  uint64 = 0
	ModInvalid uint64 = 0x00ffffffffffffff
)

// BytesPerPixel returns the pixel size of the 32-bit formats and 0 for
// anything else.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatXRGB8888, FormatARGB8888, FormatXBGR8888, FormatABGR8888:
		return 4
	default:
		return 0
	}
}

func (f Format) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b[:])
}
