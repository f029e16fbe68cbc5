// Package capture grabs frames of one Wayland output through the
// wlr-export-dmabuf protocol. Each CaptureOneFrame call issues one request
// and blocks until the compositor has either exported a frame or cancelled
// it.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wlambilight.app/ambilight/border"
	"wlambilight.app/ambilight/internal/dmabuf"
)

var (
	ErrNotSupported    = errors.New("compositor does not support wlr-export-dmabuf")
	ErrNoOutputs       = errors.New("compositor announced no outputs")
	ErrOutputNotFound  = errors.New("no output matches")
	ErrPermanent       = errors.New("frame capture was cancelled permanently")
	ErrFrameTimeout    = errors.New("timed out waiting for a frame")
	ErrSessionClosed   = errors.New("capture session is closed")
	ErrInvalidOptions  = errors.New("invalid capture options")
	ErrIncompleteFrame = errors.New("exported frame is incomplete")
)

// Options configures a capture session.
type Options struct {
	// Output is matched against the output description, then its name, then
	// "make model".
	Output string
	// RenderNode is the DRM render node used to import buffers. Defaults to
	// /dev/dri/renderD128.
	RenderNode string
	// Retries is how many extra requests a temporary or resizing cancel may
	// trigger within one CaptureOneFrame call.
	Retries int
	// FrameTimeout bounds the wait for one frame. Zero waits forever.
	FrameTimeout time.Duration
	// OverlayCursor asks the compositor to draw the cursor into the frame.
	OverlayCursor bool
	// Logger defaults to a debug logger enabled by AMBILIGHT_CAPTURE_DEBUG.
	Logger *zerolog.Logger
}

// Frame is a mapped export. Pixels is only valid until the consumer returns.
type Frame struct {
	Width    int
	Height   int
	Format   dmabuf.Format
	Modifier uint64
	Stride   int
	Pixels   []byte
}

// Image views the frame as packed 32-bit pixels for the border engine.
func (f Frame) Image() border.Image {
	return border.Image{Width: f.Width, Height: f.Height, Stride: f.Stride, Pix: f.Pixels}
}

// OutputInfo describes one compositor output.
type OutputInfo struct {
	Name        string
	Description string
	Make        string
	Model       string
	Width       int
	Height      int
	RefreshMHz  int
}

func (o OutputInfo) String() string {
	label := o.Description
	if label == "" {
		label = o.Name
	}
	if label == "" {
		label = o.Make + " " + o.Model
	}
	if o.Width <= 0 || o.Height <= 0 {
		return label
	}
	return fmt.Sprintf("%s %dx%d@%.3fHz", label, o.Width, o.Height, float64(o.RefreshMHz)/1000)
}

// Open connects to the compositor and selects the output named by options.
func Open(options *Options) (*Session, error) {
	options, err := validateOpenOptions(options)
	if err != nil {
		return nil, err
	}
	return open(options)
}

// ListOutputs enumerates the outputs of the running compositor.
func ListOutputs() ([]OutputInfo, error) {
	return listOutputs()
}

func validateOpenOptions(options *Options) (*Options, error) {
	if options == nil {
		return nil, fmt.Errorf("%w: nil options", ErrInvalidOptions)
	}
	o := *options
	if o.Output == "" {
		return nil, fmt.Errorf("%w: Output must not be empty", ErrInvalidOptions)
	}
	if o.Retries < 0 {
		return nil, fmt.Errorf("%w: Retries must be >= 0", ErrInvalidOptions)
	}
	if o.FrameTimeout < 0 {
		return nil, fmt.Errorf("%w: FrameTimeout must be >= 0", ErrInvalidOptions)
	}
	if o.RenderNode == "" {
		o.RenderNode = dmabuf.DefaultRenderNode
	}
	if o.Logger == nil {
		l := captureDebugLogger()
		o.Logger = &l
	}
	return &o, nil
}
