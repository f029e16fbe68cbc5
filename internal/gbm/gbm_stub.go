//go:build !linux || !cgo

package gbm

type Device struct{}

func IsAvailable() bool {
	return false
}

func Open(path string) (*Device, error) {
	return nil, ErrLibraryNotLoaded
}

func (d *Device) Map(b *Buffer) (*Mapping, error) {
	return nil, ErrLibraryNotLoaded
}

func (d *Device) Close() error {
	return nil
}

type Mapping struct {
	Pixels []byte
	Stride uint32
}

func (m *Mapping) Unmap() error {
	return nil
}
