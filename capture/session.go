//go:build linux

package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"wlambilight.app/ambilight/internal/dmabuf"
	"wlambilight.app/ambilight/internal/wayland"
)

const cancelLogPeriod = 5 * time.Second

// transport is the compositor side of a session.
type transport interface {
	captureOutput(overlayCursor bool, h wayland.FrameHandler) (frameRequest, error)
	dispatch() error
	setDeadline(t time.Time) error
	close() error
}

type frameRequest interface {
	Destroy() error
}

type attemptState int

const (
	attemptRequested attemptState = iota
	attemptMetadata
	attemptReady
	attemptCancelled
)

func (s attemptState) String() string {
	switch s {
	case attemptRequested:
		return "requested"
	case attemptMetadata:
		return "metadata"
	case attemptReady:
		return "ready"
	case attemptCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// attempt collects the events of one exported frame. Only the terminal
// handlers move it to ready or cancelled; metadata and planes may arrive in
// any order before that.
type attempt struct {
	state     attemptState
	desc      dmabuf.Descriptor
	reason    wayland.CancelReason
	malformed error
}

func (a *attempt) terminal() bool {
	return a.state == attemptReady || a.state == attemptCancelled
}

func (a *attempt) Frame(ev wayland.FrameEvent) {
	if a.terminal() {
		return
	}
	a.desc.SetFrame(ev.Width, ev.Height, dmabuf.Format(ev.Format), ev.ModHigh, ev.ModLow, ev.NumObjects)
	a.state = attemptMetadata
}

func (a *attempt) Object(ev wayland.ObjectEvent) {
	if err := a.desc.SetPlane(ev.PlaneIndex, ev.FD, ev.Size, ev.Offset, ev.Stride); err != nil && a.malformed == nil {
		a.malformed = err
	}
}

func (a *attempt) Ready() {
	if !a.terminal() {
		a.state = attemptReady
	}
}

func (a *attempt) Cancel(reason wayland.CancelReason) {
	if !a.terminal() {
		a.state = attemptCancelled
		a.reason = reason
	}
}

// Session captures frames of one output. Calls are serialized.
type Session struct {
	mu       sync.Mutex
	opts     Options
	log      zerolog.Logger
	output   OutputInfo
	t        transport
	importer dmabuf.Importer

	// err is sticky once set: permanent cancel, broken connection or Close.
	err       error
	closed    bool
	seenFrame bool

	lastCancelLog atomic.Int64
}

func newSession(opts *Options, output OutputInfo, t transport, importer dmabuf.Importer) *Session {
	return &Session{
		opts:     *opts,
		log:      opts.Logger.With().Str("output", output.String()).Logger(),
		output:   output,
		t:        t,
		importer: importer,
	}
}

// Output describes the captured output.
func (s *Session) Output() OutputInfo {
	return s.output
}

// CaptureOneFrame requests the next frame and, if the compositor exports
// it, calls fn with the mapped pixels. It reports whether fn was called.
//
// A temporary or resizing cancel is retried up to Options.Retries times and
// then reported as (false, nil). A permanent cancel fails this call and
// every later one with ErrPermanent. ErrFrameTimeout and ErrIncompleteFrame
// affect only this call.
func (s *Session) CaptureOneFrame(fn func(Frame) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}

	for try := 0; ; try++ {
		a, f, err := s.request()
		if err != nil {
			return false, err
		}
		if a.state == attemptReady {
			// the frame object outlives the mapping of its buffer
			defer s.destroyFrame(f)
			return s.deliver(a, fn)
		}
		s.destroyFrame(f)

		if err := a.desc.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing cancelled frame")
		}
		if a.reason == wayland.CancelPermanent {
			s.err = fmt.Errorf("%w: output %s", ErrPermanent, s.output)
			s.log.Error().Msg("compositor cancelled capture permanently")
			return false, s.err
		}
		if try >= s.opts.Retries {
			if captureShouldLog(&s.lastCancelLog, cancelLogPeriod) {
				s.log.Debug().Stringer("reason", a.reason).Int("attempts", try+1).Msg("frame cancelled")
			}
			return false, nil
		}
	}
}

// request runs one capture_output exchange until it is ready or cancelled.
// On success the caller destroys the returned frame.
func (s *Session) request() (*attempt, frameRequest, error) {
	a := &attempt{}
	f, err := s.t.captureOutput(s.opts.OverlayCursor, a)
	if err != nil {
		s.err = fmt.Errorf("request frame: %w", err)
		return nil, nil, s.err
	}

	if s.opts.FrameTimeout > 0 {
		if err := s.t.setDeadline(time.Now().Add(s.opts.FrameTimeout)); err != nil {
			s.log.Warn().Err(err).Msg("setting frame deadline")
		}
		defer s.t.setDeadline(time.Time{})
	}

	for !a.terminal() {
		if err := s.t.dispatch(); err != nil {
			_ = a.desc.Close()
			s.destroyFrame(f)
			if errors.Is(err, wayland.ErrTimeout) {
				return nil, nil, fmt.Errorf("%w after %s in state %s", ErrFrameTimeout, s.opts.FrameTimeout, a.state)
			}
			s.err = fmt.Errorf("dispatch: %w", err)
			return nil, nil, s.err
		}
	}
	return a, f, nil
}

func (s *Session) destroyFrame(f frameRequest) {
	if err := f.Destroy(); err != nil {
		s.log.Debug().Err(err).Msg("destroying frame")
	}
}

// deliver maps a ready frame and hands it to fn. The mapping and every plane
// fd are released before it returns, whatever fn does.
func (s *Session) deliver(a *attempt, fn func(Frame) error) (delivered bool, err error) {
	defer func() {
		if cerr := a.desc.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if a.malformed != nil {
		return false, fmt.Errorf("%w: %w", ErrIncompleteFrame, a.malformed)
	}
	if err := a.desc.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrIncompleteFrame, err)
	}
	if !s.seenFrame {
		s.seenFrame = true
		s.log.Info().
			Uint32("width", a.desc.Width).
			Uint32("height", a.desc.Height).
			Stringer("format", a.desc.Format).
			Str("modifier", fmt.Sprintf("0x%016x", a.desc.Modifier)).
			Int("planes", a.desc.PlaneCount()).
			Msg("first frame")
	}

	m, err := s.importer.Map(&a.desc)
	if err != nil {
		return false, fmt.Errorf("map frame: %w", err)
	}
	defer func() {
		if rerr := m.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	err = fn(Frame{
		Width:    int(a.desc.Width),
		Height:   int(a.desc.Height),
		Format:   a.desc.Format,
		Modifier: a.desc.Modifier,
		Stride:   int(m.Stride),
		Pixels:   m.Pixels,
	})
	return true, err
}

// Close releases the compositor connection and the importer. Later calls
// to CaptureOneFrame return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.err = ErrSessionClosed
	return errors.Join(s.t.close(), s.importer.Close())
}
