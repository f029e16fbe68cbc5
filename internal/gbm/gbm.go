//go:build linux && cgo

package gbm

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

// Subset of gbm.h; declared here so the build needs no gbm headers.
struct gbm_device;
struct gbm_bo;

#define GO_GBM_MAX_PLANES 4
#define GO_GBM_BO_IMPORT_FD_MODIFIER 0x5504
#define GO_GBM_BO_USE_SCANOUT (1 << 0)
#define GO_GBM_BO_TRANSFER_READ (1 << 0)

struct go_gbm_import_fd_modifier_data {
    uint32_t width;
    uint32_t height;
    uint32_t format;
    uint32_t num_fds;
    int fds[GO_GBM_MAX_PLANES];
    int strides[GO_GBM_MAX_PLANES];
    int offsets[GO_GBM_MAX_PLANES];
    uint64_t modifier;
};

static struct gbm_device * (*d_gbm_create_device)(int fd);
static void (*d_gbm_device_destroy)(struct gbm_device *gbm);
static struct gbm_bo * (*d_gbm_bo_import)(struct gbm_device *gbm, uint32_t type, void *buffer, uint32_t flags);
static void * (*d_gbm_bo_map)(struct gbm_bo *bo, uint32_t x, uint32_t y, uint32_t width, uint32_t height, uint32_t flags, uint32_t *stride, void **map_data);
static void (*d_gbm_bo_unmap)(struct gbm_bo *bo, void *map_data);
static void (*d_gbm_bo_destroy)(struct gbm_bo *bo);

static void* gbm_lib_handle = NULL;

static int load_gbm() {
    if (gbm_lib_handle != NULL) return 1;

    const char* lib_names[] = {
        "libgbm.so.1",
        "libgbm.so",
        NULL
    };

    for (int i = 0; lib_names[i] != NULL; i++) {
        gbm_lib_handle = dlopen(lib_names[i], RTLD_NOW);
        if (gbm_lib_handle) break;
    }

    if (!gbm_lib_handle) return 0;

    d_gbm_create_device = dlsym(gbm_lib_handle, "gbm_create_device");
    d_gbm_device_destroy = dlsym(gbm_lib_handle, "gbm_device_destroy");
    d_gbm_bo_import = dlsym(gbm_lib_handle, "gbm_bo_import");
    d_gbm_bo_map = dlsym(gbm_lib_handle, "gbm_bo_map");
    d_gbm_bo_unmap = dlsym(gbm_lib_handle, "gbm_bo_unmap");
    d_gbm_bo_destroy = dlsym(gbm_lib_handle, "gbm_bo_destroy");

    if (!d_gbm_create_device || !d_gbm_device_destroy || !d_gbm_bo_import ||
        !d_gbm_bo_map || !d_gbm_bo_unmap || !d_gbm_bo_destroy) {
        dlclose(gbm_lib_handle);
        gbm_lib_handle = NULL;
        return 0;
    }

    return 1;
}

struct go_gbm_mapping {
    void *ptr;
    void *map_data;
    uint32_t stride;
};

static inline struct gbm_device * wrap_gbm_create_device(int fd) { return d_gbm_create_device(fd); }
static inline void wrap_gbm_device_destroy(struct gbm_device *gbm) { d_gbm_device_destroy(gbm); }

static inline struct gbm_bo * wrap_gbm_bo_import(struct gbm_device *gbm, struct go_gbm_import_fd_modifier_data *data) {
    return d_gbm_bo_import(gbm, GO_GBM_BO_IMPORT_FD_MODIFIER, data, GO_GBM_BO_USE_SCANOUT);
}

static inline struct go_gbm_mapping wrap_gbm_bo_map(struct gbm_bo *bo, uint32_t width, uint32_t height) {
    struct go_gbm_mapping m = { NULL, NULL, 0 };
    m.ptr = d_gbm_bo_map(bo, 0, 0, width, height, GO_GBM_BO_TRANSFER_READ, &m.stride, &m.map_data);
    return m;
}

static inline void wrap_gbm_bo_unmap(struct gbm_bo *bo, void *map_data) { d_gbm_bo_unmap(bo, map_data); }
static inline void wrap_gbm_bo_destroy(struct gbm_bo *bo) { d_gbm_bo_destroy(bo); }
*/
import "C"
import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

var (
	libMu     sync.Mutex
	libLoaded bool
)

// IsAvailable reports whether libgbm can be loaded.
func IsAvailable() bool {
	libMu.Lock()
	defer libMu.Unlock()
	if libLoaded {
		return true
	}
	if C.load_gbm() == 1 {
		libLoaded = true
		return true
	}
	return false
}

// Device is a GBM device on a DRM render node.
type Device struct {
	node *os.File
	dev  *C.struct_gbm_device

	closeOnce sync.Once
}

// Open creates a GBM device on the render node at path, for example
// /dev/dri/renderD128.
func Open(path string) (*Device, error) {
	if !IsAvailable() {
		return nil, ErrLibraryNotLoaded
	}

	node, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open render node: %w", err)
	}

	dev := C.wrap_gbm_create_device(C.int(node.Fd()))
	if dev == nil {
		_ = node.Close()
		return nil, fmt.Errorf("%w: %s", ErrCreateDevice, path)
	}

	return &Device{node: node, dev: dev}, nil
}

// Map imports the buffer described by b and maps it for reading over its
// full width and height. The fds in b stay owned by the caller.
func (d *Device) Map(b *Buffer) (*Mapping, error) {
	if d.dev == nil {
		return nil, ErrDeviceClosed
	}
	if len(b.Planes) == 0 || len(b.Planes) > MaxPlanes {
		return nil, fmt.Errorf("%w: %d", ErrPlaneCount, len(b.Planes))
	}

	var data C.struct_go_gbm_import_fd_modifier_data
	data.width = C.uint32_t(b.Width)
	data.height = C.uint32_t(b.Height)
	data.format = C.uint32_t(b.Format)
	data.num_fds = C.uint32_t(len(b.Planes))
	data.modifier = C.uint64_t(b.Modifier)
	for i := 0; i < MaxPlanes; i++ {
		data.fds[i] = -1
	}
	for i, p := range b.Planes {
		data.fds[i] = C.int(p.FD)
		data.strides[i] = C.int(p.Stride)
		data.offsets[i] = C.int(p.Offset)
	}

	bo := C.wrap_gbm_bo_import(d.dev, &data)
	if bo == nil {
		return nil, ErrImport
	}

	m := C.wrap_gbm_bo_map(bo, C.uint32_t(b.Width), C.uint32_t(b.Height))
	if m.ptr == nil {
		C.wrap_gbm_bo_destroy(bo)
		return nil, ErrMap
	}

	size := int(m.stride) * int(b.Height)
	return &Mapping{
		Pixels:  unsafe.Slice((*byte)(m.ptr), size),
		Stride:  uint32(m.stride),
		bo:      bo,
		mapData: m.map_data,
	}, nil
}

// Close destroys the device and closes the render node.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.dev != nil {
			C.wrap_gbm_device_destroy(d.dev)
			d.dev = nil
		}
		err = d.node.Close()
	})
	return err
}

// Mapping is a mapped buffer object. Pixels points into device memory.
type Mapping struct {
	Pixels []byte
	Stride uint32

	bo      *C.struct_gbm_bo
	mapData unsafe.Pointer
}

// Unmap unmaps and destroys the buffer object.
func (m *Mapping) Unmap() error {
	if m.bo == nil {
		return errors.New("gbm: mapping already released")
	}
	C.wrap_gbm_bo_unmap(m.bo, m.mapData)
	C.wrap_gbm_bo_destroy(m.bo)
	m.bo = nil
	m.mapData = nil
	m.Pixels = nil
	return nil
}
