// Package gbm maps exported dmabufs through libgbm, loaded at runtime with
// dlopen so the binary starts on systems without it.
package gbm

import "errors"

// MaxPlanes is the plane limit of gbm_import_fd_modifier_data.
const MaxPlanes = 4

var (
	ErrLibraryNotLoaded = errors.New("libgbm.so.1 could not be loaded")
	ErrCreateDevice     = errors.New("gbm: failed to create device")
	ErrDeviceClosed     = errors.New("gbm: device closed")
	ErrPlaneCount       = errors.New("gbm: invalid plane count")
	ErrImport           = errors.New("gbm: failed to import buffer")
	ErrMap              = errors.New("gbm: failed to map buffer")
)

// Plane is one fd-backed plane of a buffer to import.
type Plane struct {
	FD     int
	Stride uint32
	Offset uint32
}

// Buffer describes a dmabuf to import.
type Buffer struct {
	Width    uint32
	Height   uint32
	Format   uint32
	Modifier uint64
	Planes   []Plane
}
