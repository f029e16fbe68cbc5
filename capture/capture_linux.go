//go:build linux

package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wlambilight.app/ambilight/internal/dmabuf"
	"wlambilight.app/ambilight/internal/wayland"
)

type waylandTransport struct {
	conn    *wayland.Conn
	manager *wayland.ExportDmabufManager
	output  *wayland.Output
}

func (w *waylandTransport) captureOutput(overlayCursor bool, h wayland.FrameHandler) (frameRequest, error) {
	f, err := w.manager.CaptureOutput(overlayCursor, w.output, h)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (w *waylandTransport) dispatch() error {
	return w.conn.Dispatch()
}

func (w *waylandTransport) setDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *waylandTransport) close() error {
	// Requests on a broken connection fail; only the socket matters here.
	_ = w.output.Release()
	_ = w.manager.Destroy()
	return w.conn.Close()
}

type display struct {
	conn     *wayland.Conn
	registry *wayland.Registry
	outputs  []*wayland.Output
}

// connectDisplay binds every output and waits for their descriptions.
func connectDisplay(log zerolog.Logger) (*display, error) {
	conn, err := wayland.Connect(log)
	if err != nil {
		return nil, err
	}
	d, err := newDisplay(conn, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return d, nil
}

func newDisplay(conn *wayland.Conn, log zerolog.Logger) (*display, error) {
	d := &display{conn: conn}

	var err error
	d.registry, err = conn.Display().GetRegistry()
	if err != nil {
		return nil, err
	}
	if err := conn.Roundtrip(); err != nil {
		return nil, fmt.Errorf("wayland registry: %w", err)
	}
	log.Debug().Int("globals", len(d.registry.Globals())).Msg("registry announced")
	for _, g := range d.registry.Find(wayland.OutputInterface) {
		o, err := d.registry.BindOutput(g)
		if err != nil {
			return nil, err
		}
		d.outputs = append(d.outputs, o)
	}
	if err := conn.Roundtrip(); err != nil {
		return nil, fmt.Errorf("wayland outputs: %w", err)
	}
	return d, nil
}

func outputInfo(o *wayland.Output) OutputInfo {
	return OutputInfo{
		Name:        o.Name,
		Description: o.Description,
		Make:        o.Make,
		Model:       o.Model,
		Width:       int(o.Width),
		Height:      int(o.Height),
		RefreshMHz:  int(o.RefreshMHz),
	}
}

func selectOutput(outputs []*wayland.Output, query string) (*wayland.Output, error) {
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}
	for _, o := range outputs {
		if o.Matches(query) {
			return o, nil
		}
	}
	labels := make([]string, 0, len(outputs))
	for _, o := range outputs {
		labels = append(labels, fmt.Sprintf("%q", o.Label()))
	}
	return nil, fmt.Errorf("%w %q; available: %s", ErrOutputNotFound, query, strings.Join(labels, ", "))
}

// newImporter prefers libgbm, which handles tiled modifiers, and keeps the
// mmap importer for linear buffers when libgbm is missing or fails.
func newImporter(renderNode string, log zerolog.Logger) dmabuf.Importer {
	g, err := dmabuf.OpenGBM(renderNode)
	if err != nil {
		log.Warn().Err(err).Str("render_node", renderNode).Msg("gbm unavailable, only linear buffers can be mapped")
		return dmabuf.Fallback{dmabuf.LinearImporter{}}
	}
	return dmabuf.Fallback{g, dmabuf.LinearImporter{}}
}

func open(options *Options) (*Session, error) {
	d, err := connectDisplay(*options.Logger)
	if err != nil {
		return nil, err
	}
	s, err := startSession(d, options, func() dmabuf.Importer {
		return newImporter(options.RenderNode, *options.Logger)
	})
	if err != nil {
		_ = d.conn.Close()
		return nil, err
	}
	return s, nil
}

// startSession selects the output on a connected display and binds the
// export manager. The importer is only created once both are found.
func startSession(d *display, options *Options, importer func() dmabuf.Importer) (*Session, error) {
	log := *options.Logger

	managers := d.registry.Find(wayland.ExportDmabufManagerInterface)
	if len(managers) == 0 {
		return nil, ErrNotSupported
	}
	output, err := selectOutput(d.outputs, options.Output)
	if err != nil {
		return nil, err
	}
	for _, o := range d.outputs {
		if o != output {
			_ = o.Release()
		}
	}
	manager, err := d.registry.BindExportDmabufManager(managers[0])
	if err != nil {
		return nil, err
	}

	info := outputInfo(output)
	log.Info().Str("output", info.String()).Msg("capturing output")

	t := &waylandTransport{conn: d.conn, manager: manager, output: output}
	return newSession(options, info, t, importer()), nil
}

func listOutputs() ([]OutputInfo, error) {
	d, err := connectDisplay(captureDebugLogger())
	if err != nil {
		return nil, err
	}
	defer d.conn.Close()

	if len(d.outputs) == 0 {
		return nil, ErrNoOutputs
	}
	infos := make([]OutputInfo, 0, len(d.outputs))
	for _, o := range d.outputs {
		infos = append(infos, outputInfo(o))
	}
	if len(d.registry.Find(wayland.ExportDmabufManagerInterface)) == 0 {
		return infos, ErrNotSupported
	}
	return infos, nil
}
