//go:build unix

package dmabuf

import (
	"fmt"

	"wlambilight.app/ambilight/internal/gbm"
)

// DefaultRenderNode is the DRM render node used when none is configured.
const DefaultRenderNode = "/dev/dri/renderD128"

// GBMImporter imports buffers of any modifier the GPU driver understands.
type GBMImporter struct {
	dev *gbm.Device
}

// OpenGBM creates an importer on the render node at path.
func OpenGBM(path string) (*GBMImporter, error) {
	if path == "" {
		path = DefaultRenderNode
	}
	dev, err := gbm.Open(path)
	if err != nil {
		return nil, err
	}
	return &GBMImporter{dev: dev}, nil
}

func (g *GBMImporter) Map(d *Descriptor) (*Mapping, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	planes := d.Planes()
	buf := &gbm.Buffer{
		Width:    d.Width,
		Height:   d.Height,
		Format:   uint32(d.Format),
		Modifier: d.Modifier,
		Planes:   make([]gbm.Plane, len(planes)),
	}
	for i, p := range planes {
		buf.Planes[i] = gbm.Plane{FD: p.FD, Stride: p.Stride, Offset: p.Offset}
	}

	m, err := g.dev.Map(buf)
	if err != nil {
		return nil, fmt.Errorf("%w (%dx%d %s modifier 0x%016x)", err, d.Width, d.Height, d.Format, d.Modifier)
	}
	return NewMapping(m.Pixels, m.Stride, m.Unmap), nil
}

func (g *GBMImporter) Close() error {
	return g.dev.Close()
}
