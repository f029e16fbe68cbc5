//go:build linux

package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"wlambilight.app/ambilight/internal/dmabuf"
	"wlambilight.app/ambilight/internal/wayland"
)

type step func(h wayland.FrameHandler) error

// fakeTransport replays one scripted list of dispatch steps per request.
type fakeTransport struct {
	attempts  [][]step
	requests  int
	destroyed int
	deadlines []time.Time
	closed    bool

	h     wayland.FrameHandler
	steps []step
}

type fakeFrame struct{ t *fakeTransport }

func (f fakeFrame) Destroy() error {
	f.t.destroyed++
	return nil
}

func (f *fakeTransport) captureOutput(_ bool, h wayland.FrameHandler) (frameRequest, error) {
	if f.requests >= len(f.attempts) {
		return nil, errors.New("unexpected capture request")
	}
	f.h = h
	f.steps = f.attempts[f.requests]
	f.requests++
	return fakeFrame{f}, nil
}

func (f *fakeTransport) dispatch() error {
	if len(f.steps) == 0 {
		return errors.New("compositor stalled")
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s(f.h)
}

func (f *fakeTransport) setDeadline(t time.Time) error {
	f.deadlines = append(f.deadlines, t)
	return nil
}

func (f *fakeTransport) close() error {
	f.closed = true
	return nil
}

type fakeImporter struct {
	pixels   []byte
	stride   uint32
	err      error
	maps     int
	releases int
	planes   []dmabuf.Plane
	closed   bool
}

func (f *fakeImporter) Map(d *dmabuf.Descriptor) (*dmabuf.Mapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.maps++
	f.planes = append([]dmabuf.Plane(nil), d.Planes()...)
	return dmabuf.NewMapping(f.pixels, f.stride, func() error {
		f.releases++
		return nil
	}), nil
}

func (f *fakeImporter) Close() error {
	f.closed = true
	return nil
}

func newTestSession(t *testing.T, opts Options, attempts ...[]step) (*Session, *fakeTransport, *fakeImporter) {
	t.Helper()
	nop := zerolog.Nop()
	opts.Output = "DP-3"
	opts.Logger = &nop
	o, err := validateOpenOptions(&opts)
	require.NoError(t, err)

	tr := &fakeTransport{attempts: attempts}
	imp := &fakeImporter{pixels: make([]byte, 4*2*2), stride: 8}
	return newSession(o, OutputInfo{Name: "DP-3"}, tr, imp), tr, imp
}

// newFD returns an fd to hand to the session and reports whether it is
// still open.
func newFD(t *testing.T) (int, func() bool) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	require.NoError(t, unix.Close(p[1]))
	return p[0], func() bool {
		_, err := unix.FcntlInt(uintptr(p[0]), unix.F_GETFD, 0)
		return err == nil
	}
}

func frameEv(w, h, objects uint32) step {
	return func(fh wayland.FrameHandler) error {
		fh.Frame(wayland.FrameEvent{Width: w, Height: h, Format: uint32(dmabuf.FormatXRGB8888), NumObjects: objects})
		return nil
	}
}

func objectEv(plane uint32, fd int) step {
	return func(fh wayland.FrameHandler) error {
		fh.Object(wayland.ObjectEvent{Index: plane, FD: fd, Size: 16, Stride: 8, PlaneIndex: plane})
		return nil
	}
}

func readyEv() step {
	return func(fh wayland.FrameHandler) error {
		fh.Ready()
		return nil
	}
}

func cancelEv(r wayland.CancelReason) step {
	return func(fh wayland.FrameHandler) error {
		fh.Cancel(r)
		return nil
	}
}

// batch runs several handlers in one dispatch.
func batch(steps ...step) step {
	return func(fh wayland.FrameHandler) error {
		for _, s := range steps {
			if err := s(fh); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestCaptureOneFrameDelivers(t *testing.T) {
	fd, open := newFD(t)
	s, tr, imp := newTestSession(t, Options{}, []step{batch(frameEv(2, 2, 1), objectEv(0, fd), readyEv())})

	var got Frame
	calls := 0
	ok, err := s.CaptureOneFrame(func(f Frame) error {
		calls++
		got = f
		assert.True(t, open(), "plane fd must stay open while the frame is consumed")
		assert.Zero(t, tr.destroyed, "frame object must stay alive while the frame is consumed")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, got.Width)
	assert.Equal(t, 2, got.Height)
	assert.Equal(t, 8, got.Stride)
	assert.Equal(t, dmabuf.FormatXRGB8888, got.Format)
	assert.Equal(t, 2, got.Image().Width)

	assert.Equal(t, 1, imp.maps)
	assert.Equal(t, 1, imp.releases)
	require.Len(t, imp.planes, 1)
	assert.Equal(t, fd, imp.planes[0].FD)
	assert.False(t, open())
	assert.Equal(t, 1, tr.destroyed)
}

func TestCaptureOneFrameWaitsAcrossDispatches(t *testing.T) {
	fd0, open0 := newFD(t)
	fd1, open1 := newFD(t)
	// planes before metadata, each event in its own read
	s, tr, imp := newTestSession(t, Options{}, []step{
		objectEv(1, fd1),
		objectEv(0, fd0),
		frameEv(2, 2, 2),
		readyEv(),
	})

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, imp.planes, 2)
	assert.Equal(t, fd0, imp.planes[0].FD)
	assert.Equal(t, fd1, imp.planes[1].FD)
	assert.False(t, open0())
	assert.False(t, open1())
	assert.Empty(t, tr.steps)
}

func TestTemporaryCancelSkipsFrame(t *testing.T) {
	for _, reason := range []wayland.CancelReason{wayland.CancelTemporary, wayland.CancelResizing} {
		t.Run(reason.String(), func(t *testing.T) {
			fd, open := newFD(t)
			s, tr, imp := newTestSession(t, Options{},
				[]step{batch(frameEv(2, 2, 1), objectEv(0, fd), cancelEv(reason))},
				[]step{batch(frameEv(2, 2, 0), readyEv())},
			)

			ok, err := s.CaptureOneFrame(func(Frame) error {
				t.Fatal("consumer called for a cancelled frame")
				return nil
			})
			require.NoError(t, err)
			assert.False(t, ok)
			assert.False(t, open())
			assert.Zero(t, imp.maps)
			assert.Equal(t, 1, tr.requests)
			assert.Equal(t, 1, tr.destroyed)

			// the session stays usable
			_, err = s.CaptureOneFrame(func(Frame) error { return nil })
			assert.ErrorIs(t, err, ErrIncompleteFrame)
			assert.Equal(t, 2, tr.requests)
		})
	}
}

func TestRetriesWithinOneCall(t *testing.T) {
	s, tr, _ := newTestSession(t, Options{Retries: 2},
		[]step{cancelEv(wayland.CancelTemporary)},
		[]step{cancelEv(wayland.CancelResizing)},
		[]step{batch(frameEv(2, 2, 1), objectEv(0, mustFD(t)), readyEv())},
	)

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, tr.requests)
	assert.Equal(t, 3, tr.destroyed)
}

func TestRetriesStopAtLimit(t *testing.T) {
	s, tr, _ := newTestSession(t, Options{Retries: 1},
		[]step{cancelEv(wayland.CancelTemporary)},
		[]step{cancelEv(wayland.CancelTemporary)},
		[]step{batch(frameEv(2, 2, 1), objectEv(0, mustFD(t)), readyEv())},
	)

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, tr.requests)
}

func TestPermanentCancelIsSticky(t *testing.T) {
	fd, open := newFD(t)
	s, tr, _ := newTestSession(t, Options{Retries: 3},
		[]step{batch(objectEv(0, fd), cancelEv(wayland.CancelPermanent))},
	)

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrPermanent)
	assert.False(t, open())

	ok, err = s.CaptureOneFrame(func(Frame) error { return nil })
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, tr.requests, "no request after a permanent cancel")
}

func TestConsumerErrorStillReleases(t *testing.T) {
	fd, open := newFD(t)
	s, _, imp := newTestSession(t, Options{}, []step{batch(frameEv(2, 2, 1), objectEv(0, fd), readyEv())})

	boom := errors.New("boom")
	ok, err := s.CaptureOneFrame(func(Frame) error { return boom })
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, imp.releases)
	assert.False(t, open())
}

func TestMissingPlaneIsNotImported(t *testing.T) {
	fd, open := newFD(t)
	s, _, imp := newTestSession(t, Options{},
		[]step{batch(frameEv(2, 2, 2), objectEv(0, fd), readyEv())},
		[]step{batch(frameEv(2, 2, 1), objectEv(0, mustFD(t)), readyEv())},
	)

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Zero(t, imp.maps)
	assert.False(t, open())

	ok, err = s.CaptureOneFrame(func(Frame) error { return nil })
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestPlaneIndexOutOfRange(t *testing.T) {
	fd, open := newFD(t)
	s, _, imp := newTestSession(t, Options{}, []step{batch(frameEv(2, 2, 1), objectEv(dmabuf.MaxPlanes, fd), readyEv())})

	_, err := s.CaptureOneFrame(func(Frame) error { return nil })
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	assert.ErrorIs(t, err, dmabuf.ErrPlaneIndex)
	assert.Zero(t, imp.maps)
	assert.False(t, open())
}

func TestMapFailureClosesFDs(t *testing.T) {
	fd, open := newFD(t)
	s, _, imp := newTestSession(t, Options{}, []step{batch(frameEv(2, 2, 1), objectEv(0, fd), readyEv())})
	imp.err = dmabuf.ErrUnsupportedModifier

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	assert.False(t, ok)
	assert.ErrorIs(t, err, dmabuf.ErrUnsupportedModifier)
	assert.False(t, open())
}

func TestFrameTimeoutIsNotSticky(t *testing.T) {
	fd, open := newFD(t)
	s, tr, _ := newTestSession(t, Options{FrameTimeout: 50 * time.Millisecond},
		[]step{objectEv(0, fd), func(wayland.FrameHandler) error { return wayland.ErrTimeout }},
		[]step{batch(frameEv(2, 2, 1), objectEv(0, mustFD(t)), readyEv())},
	)

	ok, err := s.CaptureOneFrame(func(Frame) error { return nil })
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrFrameTimeout)
	assert.False(t, open())
	assert.Equal(t, 1, tr.destroyed)
	require.Len(t, tr.deadlines, 2)
	assert.False(t, tr.deadlines[0].IsZero())
	assert.True(t, tr.deadlines[1].IsZero())

	ok, err = s.CaptureOneFrame(func(Frame) error { return nil })
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestBrokenConnectionIsSticky(t *testing.T) {
	broken := errors.New("connection reset")
	s, tr, _ := newTestSession(t, Options{},
		[]step{func(wayland.FrameHandler) error { return broken }},
	)

	_, err := s.CaptureOneFrame(func(Frame) error { return nil })
	require.ErrorIs(t, err, broken)
	_, err = s.CaptureOneFrame(func(Frame) error { return nil })
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 1, tr.requests)
}

func TestClose(t *testing.T) {
	s, tr, imp := newTestSession(t, Options{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, tr.closed)
	assert.True(t, imp.closed)

	_, err := s.CaptureOneFrame(func(Frame) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Zero(t, tr.requests)
}

func TestValidateOpenOptions(t *testing.T) {
	_, err := validateOpenOptions(nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = validateOpenOptions(&Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = validateOpenOptions(&Options{Output: "DP-1", Retries: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = validateOpenOptions(&Options{Output: "DP-1", FrameTimeout: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	in := &Options{Output: "DP-1"}
	o, err := validateOpenOptions(in)
	require.NoError(t, err)
	assert.Equal(t, dmabuf.DefaultRenderNode, o.RenderNode)
	assert.NotNil(t, o.Logger)
	assert.Empty(t, in.RenderNode, "caller options are not modified")
}

func TestOutputInfoString(t *testing.T) {
	assert.Equal(t, "DP-3", OutputInfo{Name: "DP-3"}.String())
	assert.Equal(t, "Dell U2720Q 3840x2160@59.997Hz",
		OutputInfo{Description: "Dell U2720Q", Width: 3840, Height: 2160, RefreshMHz: 59997}.String())
}

func mustFD(t *testing.T) int {
	fd, _ := newFD(t)
	return fd
}
