// Package driver runs the capture, reduce, encode and write cycle once per
// tick.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"

	"wlambilight.app/ambilight/border"
	"wlambilight.app/ambilight/capture"
	"wlambilight.app/ambilight/frame"
)

const (
	statsPeriod   = time.Second
	slowLogPeriod = 5 * time.Second
)

var ErrInvalidOptions = errors.New("invalid driver options")

// errUnusableFrame marks a delivered frame whose pixels do not cover its
// declared size. The tick keeps the previous colors.
var errUnusableFrame = errors.New("unusable frame")

// FrameSource delivers at most one frame per call; see
// capture.Session.CaptureOneFrame.
type FrameSource interface {
	CaptureOneFrame(fn func(capture.Frame) error) (bool, error)
}

// IdleSource reports whether the screen is blanked.
type IdleSource interface {
	Idle() bool
}

type Options struct {
	Source FrameSource
	// Link receives one complete frame per tick.
	Link conn.Conn
	// Idle is optional. With BlankWhenIdle the strip goes black and capture
	// pauses while it reports idle.
	Idle          IdleSource
	BlankWhenIdle bool
	Period        time.Duration
	Logger        zerolog.Logger
}

// Stats counts tick outcomes.
type Stats struct {
	Ticks    uint64
	Captured uint64
	Skipped  uint64
	TimedOut uint64
	Idle     uint64
}

// Driver owns the frame buffer and the color scratch space; neither is
// reallocated after New.
type Driver struct {
	opts   Options
	log    zerolog.Logger
	buf    *frame.Buffer
	colors border.Colors

	stats   Stats
	wasIdle bool

	lastSlowLog atomic.Int64
	lastSkipLog atomic.Int64
}

func New(opts Options) (*Driver, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: nil Source", ErrInvalidOptions)
	}
	if opts.Link == nil {
		return nil, fmt.Errorf("%w: nil Link", ErrInvalidOptions)
	}
	if opts.Period <= 0 {
		return nil, fmt.Errorf("%w: Period must be positive", ErrInvalidOptions)
	}
	return &Driver{
		opts: opts,
		log:  opts.Logger.With().Str("link", opts.Link.String()).Logger(),
		buf:  frame.NewBuffer(),
	}, nil
}

// Stats returns the counters so far.
func (d *Driver) Stats() Stats {
	return d.stats
}

// Buffer is the frame written on every tick.
func (d *Driver) Buffer() *frame.Buffer {
	return d.buf
}

// Tick runs one cycle. The buffer is always written: fresh colors after a
// capture, the previous ones after a skip, black while idle. Only fatal
// capture errors and write errors are returned.
func (d *Driver) Tick() error {
	d.stats.Ticks++

	if d.opts.BlankWhenIdle && d.opts.Idle != nil && d.opts.Idle.Idle() {
		if !d.wasIdle {
			d.log.Info().Msg("screen idle, blanking strip")
		}
		d.wasIdle = true
		d.stats.Idle++
		d.buf.Blank()
		return d.write()
	}
	if d.wasIdle {
		d.log.Info().Msg("screen active, resuming capture")
		d.wasIdle = false
	}

	ok, err := d.opts.Source.CaptureOneFrame(d.consume)
	switch {
	case err == nil && ok:
		d.stats.Captured++
	case err == nil:
		d.stats.Skipped++
	case errors.Is(err, capture.ErrFrameTimeout):
		d.stats.TimedOut++
		d.log.Debug().Err(err).Msg("frame timed out")
	case errors.Is(err, capture.ErrIncompleteFrame), errors.Is(err, errUnusableFrame):
		d.stats.Skipped++
		if shouldLog(&d.lastSkipLog, slowLogPeriod) {
			d.log.Warn().Err(err).Msg("skipping frame")
		}
	default:
		return fmt.Errorf("capture: %w", err)
	}
	return d.write()
}

func (d *Driver) consume(f capture.Frame) error {
	m := f.Image()
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %dx%d %s stride %d with %d bytes: %w", errUnusableFrame, f.Width, f.Height, f.Format, f.Stride, len(f.Pixels), err)
	}
	border.Compute(m, &d.colors)
	d.buf.Encode(&d.colors)
	return nil
}

func (d *Driver) write() error {
	if err := d.opts.Link.Tx(d.buf.Bytes(), nil); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Blank writes one all-black frame.
func (d *Driver) Blank() error {
	d.buf.Blank()
	return d.write()
}

// Run ticks every Period until ctx is done or a tick fails. Ticks never
// overlap; a slow tick delays the next one. On cancellation the strip is
// blanked and Run returns nil.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.Period)
	defer ticker.Stop()

	d.log.Info().Dur("period", d.opts.Period).Msg("driver started")
	var last Stats
	lastReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().
				Uint64("ticks", d.stats.Ticks).
				Uint64("captured", d.stats.Captured).
				Uint64("skipped", d.stats.Skipped).
				Uint64("timed_out", d.stats.TimedOut).
				Msg("driver stopping")
			return d.Blank()

		case <-ticker.C:
			start := time.Now()
			if err := d.Tick(); err != nil {
				return err
			}
			if took := time.Since(start); took > d.opts.Period && shouldLog(&d.lastSlowLog, slowLogPeriod) {
				d.log.Warn().Dur("took", took).Dur("period", d.opts.Period).Msg("slow tick")
			}
			if now := time.Now(); now.Sub(lastReport) >= statsPeriod {
				d.log.Debug().
					Uint64("captured", d.stats.Captured-last.Captured).
					Uint64("skipped", d.stats.Skipped-last.Skipped).
					Uint64("timed_out", d.stats.TimedOut-last.TimedOut).
					Uint64("idle", d.stats.Idle-last.Idle).
					Msg("ticks")
				last, lastReport = d.stats, now
			}
		}
	}
}

// shouldLog rate-limits a repeated message to one per period.
func shouldLog(last *atomic.Int64, period time.Duration) bool {
	if last == nil || period <= 0 {
		return true
	}

	now := time.Now().UnixNano()
	for {
		prev := last.Load()
		if prev != 0 && time.Duration(now-prev) < period {
			return false
		}
		if last.CompareAndSwap(prev, now) {
			return true
		}
	}
}
