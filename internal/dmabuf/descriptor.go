//go:build unix

// Package dmabuf owns the file descriptors and mappings of one exported
// compositor buffer.
package dmabuf

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MaxPlanes is the largest number of planes a buffer may carry.
const MaxPlanes = 4

var (
	ErrPlaneIndex       = errors.New("dmabuf: plane index out of range")
	ErrMissingPlane     = errors.New("dmabuf: plane was never received")
	ErrNoPlanes         = errors.New("dmabuf: buffer has no planes")
	ErrNoMetadata       = errors.New("dmabuf: frame metadata was never received")
	ErrDescriptorClosed = errors.New("dmabuf: descriptor already closed")
)

// Plane is one memory region of a buffer.
type Plane struct {
	FD     int
	Size   uint32
	Offset uint32
	Stride uint32
}

// Descriptor collects the pieces of one exported buffer as they arrive.
// Every fd handed to SetPlane is owned by the descriptor and closed exactly
// once by Close.
type Descriptor struct {
	Width    uint32
	Height   uint32
	Format   Format
	Modifier uint64
	// DeclaredPlanes is the object count announced with the metadata.
	DeclaredPlanes uint32

	hasMetadata bool
	planes      [MaxPlanes]Plane
	set         [MaxPlanes]bool
	closed      bool
}

// Modifier assembles a 64-bit format modifier from its protocol halves.
func Modifier(high, low uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}

// SetFrame records the buffer metadata.
func (d *Descriptor) SetFrame(width, height uint32, format Format, modHigh, modLow, objects uint32) {
	d.Width = width
	d.Height = height
	d.Format = format
	d.Modifier = Modifier(modHigh, modLow)
	d.DeclaredPlanes = objects
	d.hasMetadata = true
}

// SetPlane records the plane at index and takes ownership of fd. On error
// fd has already been closed.
func (d *Descriptor) SetPlane(index uint32, fd int, size, offset, stride uint32) error {
	if d.closed {
		closeFD(fd)
		return ErrDescriptorClosed
	}
	if index >= MaxPlanes {
		closeFD(fd)
		return fmt.Errorf("%w: %d", ErrPlaneIndex, index)
	}
	if d.set[index] {
		// A repeated index replaces the earlier plane.
		closeFD(d.planes[index].FD)
	}
	d.planes[index] = Plane{FD: fd, Size: size, Offset: offset, Stride: stride}
	d.set[index] = true
	return nil
}

// PlaneCount returns the number of distinct plane indices received.
func (d *Descriptor) PlaneCount() int {
	n := 0
	for _, ok := range d.set {
		if ok {
			n++
		}
	}
	return n
}

// Planes returns the received planes in index order. Call Validate first;
// a gap in the indices truncates the result.
func (d *Descriptor) Planes() []Plane {
	out := make([]Plane, 0, MaxPlanes)
	for i, ok := range d.set {
		if !ok {
			break
		}
		out = append(out, d.planes[i])
	}
	return out
}

// Validate reports whether the descriptor can be imported: metadata was
// received and the planes form a gapless run from index 0 covering every
// declared plane.
func (d *Descriptor) Validate() error {
	if d.closed {
		return ErrDescriptorClosed
	}
	if !d.hasMetadata {
		return ErrNoMetadata
	}
	n := d.PlaneCount()
	if n == 0 {
		return ErrNoPlanes
	}
	for i := 0; i < n; i++ {
		if !d.set[i] {
			return fmt.Errorf("%w: index %d", ErrMissingPlane, i)
		}
	}
	if uint32(n) < d.DeclaredPlanes {
		return fmt.Errorf("%w: got %d of %d", ErrMissingPlane, n, d.DeclaredPlanes)
	}
	return nil
}

// Close closes every received fd. It is safe to call more than once.
func (d *Descriptor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for i := range d.set {
		if !d.set[i] {
			continue
		}
		if err := unix.Close(d.planes[i].FD); err != nil {
			errs = append(errs, fmt.Errorf("close plane %d fd %d: %w", i, d.planes[i].FD, err))
		}
		d.set[i] = false
		d.planes[i].FD = -1
	}
	return errors.Join(errs...)
}

func closeFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}
