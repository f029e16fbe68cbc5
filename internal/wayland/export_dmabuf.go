package wayland

// ExportDmabufManagerInterface is the wlr-export-dmabuf-unstable-v1 global.
const ExportDmabufManagerInterface = "zwlr_export_dmabuf_manager_v1"

const (
	managerCaptureOutput = 0
	managerDestroy       = 1
)

const (
	frameDestroy = 0

	frameEventFrame  = 0
	frameEventObject = 1
	frameEventReady  = 2
	frameEventCancel = 3
)

// CancelReason explains a cancelled frame.
type CancelReason uint32

const (
	// CancelTemporary: this frame is lost, the next request may succeed.
	CancelTemporary CancelReason = 0
	// CancelPermanent: the output can no longer be captured.
	CancelPermanent CancelReason = 1
	// CancelResizing: the output is changing size; retry later.
	CancelResizing CancelReason = 2
)

func (r CancelReason) String() string {
	switch r {
	case CancelTemporary:
		return "temporary"
	case CancelPermanent:
		return "permanent"
	case CancelResizing:
		return "resizing"
	default:
		return "unknown"
	}
}

// FrameEvent carries the metadata of an exported frame.
type FrameEvent struct {
	Width       uint32
	Height      uint32
	OffsetX     uint32
	OffsetY     uint32
	BufferFlags uint32
	Flags       uint32
	Format      uint32
	ModHigh     uint32
	ModLow      uint32
	NumObjects  uint32
}

// ObjectEvent describes one plane. The receiver owns FD.
type ObjectEvent struct {
	Index      uint32
	FD         int
	Size       uint32
	Offset     uint32
	Stride     uint32
	PlaneIndex uint32
}

// FrameHandler receives the events of one exported frame. Ready or Cancel
// is always the last call.
type FrameHandler interface {
	Frame(FrameEvent)
	Object(ObjectEvent)
	Ready()
	Cancel(CancelReason)
}

// ExportDmabufManager is a bound zwlr_export_dmabuf_manager_v1.
type ExportDmabufManager struct {
	proxy
}

// BindExportDmabufManager binds the manager global g.
func (r *Registry) BindExportDmabufManager(g Global) (*ExportDmabufManager, error) {
	id, err := r.conn.allocID()
	if err != nil {
		return nil, err
	}
	m := &ExportDmabufManager{proxy: proxy{conn: r.conn, id: id}}
	r.conn.register(id, m)
	return m, r.bind(g, 1, id)
}

func (m *ExportDmabufManager) dispatch(uint16, *decoder) {}

func (m *ExportDmabufManager) eventFDs(uint16) int { return 0 }

// CaptureOutput requests the next frame of output. Events are delivered to
// h from Dispatch.
func (m *ExportDmabufManager) CaptureOutput(overlayCursor bool, output *Output, h FrameHandler) (*ExportDmabufFrame, error) {
	id, err := m.conn.allocID()
	if err != nil {
		return nil, err
	}
	f := &ExportDmabufFrame{proxy: proxy{conn: m.conn, id: id}, handler: h}
	m.conn.register(id, f)

	msg := newMessage(m.id, managerCaptureOutput)
	msg.Uint(id)
	if overlayCursor {
		msg.Int(1)
	} else {
		msg.Int(0)
	}
	msg.Uint(output.id)
	if err := m.conn.send(msg); err != nil {
		m.conn.destroyed(id)
		return nil, err
	}
	return f, nil
}

// Destroy releases the manager.
func (m *ExportDmabufManager) Destroy() error {
	err := m.conn.send(newMessage(m.id, managerDestroy))
	m.conn.destroyed(m.id)
	return err
}

// ExportDmabufFrame is one pending zwlr_export_dmabuf_frame_v1.
type ExportDmabufFrame struct {
	proxy
	handler   FrameHandler
	destroyed bool
}

func (f *ExportDmabufFrame) eventFDs(opcode uint16) int {
	if opcode == frameEventObject {
		return 1
	}
	return 0
}

func (f *ExportDmabufFrame) dispatch(opcode uint16, m *decoder) {
	switch opcode {
	case frameEventFrame:
		ev := FrameEvent{
			Width:       m.Uint(),
			Height:      m.Uint(),
			OffsetX:     m.Uint(),
			OffsetY:     m.Uint(),
			BufferFlags: m.Uint(),
			Flags:       m.Uint(),
			Format:      m.Uint(),
			ModHigh:     m.Uint(),
			ModLow:      m.Uint(),
			NumObjects:  m.Uint(),
		}
		if m.err == nil {
			f.handler.Frame(ev)
		}
	case frameEventObject:
		ev := ObjectEvent{
			Index:      m.Uint(),
			FD:         m.FD(),
			Size:       m.Uint(),
			Offset:     m.Uint(),
			Stride:     m.Uint(),
			PlaneIndex: m.Uint(),
		}
		if m.err == nil {
			f.handler.Object(ev)
		} else if ev.FD >= 0 {
			// hand it back so the dispatcher closes it
			m.fds = append(m.fds, ev.FD)
		}
	case frameEventReady:
		m.Uint() // tv_sec_hi
		m.Uint() // tv_sec_lo
		m.Uint() // tv_nsec
		if m.err == nil {
			f.handler.Ready()
		}
	case frameEventCancel:
		reason := CancelReason(m.Uint())
		if m.err == nil {
			f.handler.Cancel(reason)
		}
	}
}

// Destroy releases the frame. Events still in flight are dropped and their
// fds closed.
func (f *ExportDmabufFrame) Destroy() error {
	if f.destroyed {
		return nil
	}
	f.destroyed = true
	err := f.conn.send(newMessage(f.id, frameDestroy))
	f.conn.destroyed(f.id)
	return err
}
