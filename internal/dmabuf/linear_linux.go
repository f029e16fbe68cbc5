//go:build linux

package dmabuf

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// _IOW('b', 0, struct dma_buf_sync)
const dmaBufIoctlSync = 0x40086200

const (
	dmaBufSyncRead  = 1 << 0
	dmaBufSyncStart = 0 << 2
	dmaBufSyncEnd   = 1 << 2
)

// LinearImporter maps single-plane linear buffers straight from the dmabuf
// fd. It needs no GPU library and cannot read tiled or compressed layouts.
type LinearImporter struct{}

func (LinearImporter) Map(d *Descriptor) (*Mapping, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Modifier != ModLinear {
		return nil, fmt.Errorf("%w: 0x%016x", ErrUnsupportedModifier, d.Modifier)
	}
	bpp := d.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, d.Format)
	}
	planes := d.Planes()
	if len(planes) != 1 {
		return nil, fmt.Errorf("%w: %s with %d planes", ErrUnsupportedFormat, d.Format, len(planes))
	}

	p := planes[0]
	stride := p.Stride
	if stride == 0 {
		stride = d.Width * uint32(bpp)
	}
	end := int(p.Offset) + int(stride)*int(d.Height)

	// mmap offsets must be page aligned, so map from the start of the object.
	data, err := unix.Mmap(p.FD, 0, end, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap dmabuf: %w", err)
	}
	if err := syncDmabuf(p.FD, dmaBufSyncStart|dmaBufSyncRead); err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}

	fd := p.FD
	return NewMapping(data[p.Offset:end], stride, func() error {
		return errors.Join(syncDmabuf(fd, dmaBufSyncEnd|dmaBufSyncRead), unix.Munmap(data))
	}), nil
}

func (LinearImporter) Close() error { return nil }

func syncDmabuf(fd int, flags uint64) error {
	arg := flags
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), dmaBufIoctlSync, uintptr(unsafe.Pointer(&arg)))
	switch errno {
	case 0, unix.ENOTTY:
		// ENOTTY: not a dmabuf (or a kernel without sync support); nothing
		// to flush.
		return nil
	default:
		return fmt.Errorf("dmabuf sync: %w", errno)
	}
}
