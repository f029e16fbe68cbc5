//go:build unix

package dmabuf

import (
	"errors"
	"sync"
)

var (
	ErrUnsupportedModifier = errors.New("dmabuf: modifier cannot be mapped by this importer")
	ErrUnsupportedFormat   = errors.New("dmabuf: unsupported pixel format")
)

// Importer turns a complete descriptor into CPU-readable memory.
type Importer interface {
	// Map imports d and maps it for reading over its full size. The
	// descriptor keeps ownership of its fds.
	Map(d *Descriptor) (*Mapping, error)
	Close() error
}

// Mapping is a read-only view of device memory. Pixels must not be used
// after Release.
type Mapping struct {
	Pixels []byte
	Stride uint32

	release func() error
	once    sync.Once
	err     error
}

// NewMapping wraps pixels; release runs once, on the first Release.
func NewMapping(pixels []byte, stride uint32, release func() error) *Mapping {
	return &Mapping{Pixels: pixels, Stride: stride, release: release}
}

// Release unmaps the memory and destroys the imported buffer.
func (m *Mapping) Release() error {
	m.once.Do(func() {
		m.Pixels = nil
		if m.release != nil {
			m.err = m.release()
		}
	})
	return m.err
}

// Fallback tries each importer in order and returns the first mapping.
type Fallback []Importer

func (f Fallback) Map(d *Descriptor) (*Mapping, error) {
	var errs []error
	for _, imp := range f {
		m, err := imp.Map(d)
		if err == nil {
			return m, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrUnsupportedModifier
	}
	return nil, errors.Join(errs...)
}

func (f Fallback) Close() error {
	var errs []error
	for _, imp := range f {
		errs = append(errs, imp.Close())
	}
	return errors.Join(errs...)
}
