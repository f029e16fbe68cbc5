// Package serial exposes a tty as a periph uart.PortCloser. The port is
// opened write-only and locked with flock so two drivers never interleave
// frames on the same strip.
package serial

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/uart"
)

// DefaultBaud is the controller's line speed.
const DefaultBaud = 230400 * physic.Hertz

var (
	ErrLocked          = errors.New("serial: device is locked by another process")
	ErrUnsupported     = errors.New("serial: not supported on this platform")
	ErrBaud            = errors.New("serial: unsupported baud rate")
	ErrSpeedLimit      = errors.New("serial: baud rate above the port limit")
	ErrFraming         = errors.New("serial: unsupported framing")
	ErrReadUnsupported = errors.New("serial: port is write-only")
	ErrClosed          = errors.New("serial: port is closed")
)

var _ uart.PortCloser = (*Port)(nil)

// framing is the line setting passed to Connect.
type framing struct {
	baud   physic.Frequency
	stop   uart.Stop
	parity uart.Parity
	flow   uart.Flow
	bits   int
}

func (f framing) String() string {
	stop := "1"
	switch f.stop {
	case uart.OneHalf:
		stop = "1.5"
	case uart.Two:
		stop = "2"
	}
	return fmt.Sprintf("%s %d%c%s %s", f.baud, f.bits, f.parity, stop, f.flow)
}

// baudOf converts a periph frequency to an integral baud rate.
func baudOf(f physic.Frequency) (int64, error) {
	if f <= 0 || f%physic.Hertz != 0 {
		return 0, fmt.Errorf("%w: %s", ErrBaud, f)
	}
	return int64(f / physic.Hertz), nil
}

// link is the conn.Conn returned by Connect.
type link struct {
	p *Port
	f framing
}

func (l *link) String() string {
	return fmt.Sprintf("%s (%s)", l.p.path, l.f)
}

// Tx writes w entirely. Reads are not supported.
func (l *link) Tx(w, r []byte) error {
	if len(r) != 0 {
		return ErrReadUnsupported
	}
	return l.p.write(w)
}

func (l *link) Duplex() conn.Duplex {
	return conn.Half
}
