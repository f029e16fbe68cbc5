//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/uart"
)

// Port is an exclusively locked tty.
type Port struct {
	path string

	mu     sync.Mutex
	f      *os.File
	limit  physic.Frequency
	closed bool
}

// Open opens the tty at path and takes an exclusive, non-blocking flock.
func Open(path string) (*Port, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("serial: lock %s: %w", path, err)
	}
	return &Port{path: path, f: os.NewFile(uintptr(fd), path)}, nil
}

func (p *Port) String() string {
	return p.path
}

// LimitSpeed caps the baud rate accepted by Connect.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f < 0 {
		return fmt.Errorf("%w: %s", ErrBaud, f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = f
	return nil
}

// Connect puts the tty in raw mode with the given line setting.
func (p *Port) Connect(f physic.Frequency, stop uart.Stop, parity uart.Parity, flow uart.Flow, bits int) (conn.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.limit > 0 && f > p.limit {
		return nil, fmt.Errorf("%w: %s > %s", ErrSpeedLimit, f, p.limit)
	}
	fr := framing{baud: f, stop: stop, parity: parity, flow: flow, bits: bits}

	fd := int(p.f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("serial: %s is not a tty: %w", p.path, err)
	}
	if err := configure(t, fr); err != nil {
		return nil, err
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, fmt.Errorf("serial: configure %s: %w", p.path, err)
	}
	return &link{p: p, f: fr}, nil
}

// Close releases the lock and the device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.f.Close()
}

func (p *Port) write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, err := p.f.Write(b); err != nil {
		return fmt.Errorf("serial: write %s: %w", p.path, err)
	}
	return nil
}

var baudRates = map[int64]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
}

var charSizes = map[int]uint32{5: unix.CS5, 6: unix.CS6, 7: unix.CS7, 8: unix.CS8}

// configure rewrites t for raw output with framing fr.
func configure(t *unix.Termios, fr framing) error {
	baud, err := baudOf(fr.baud)
	if err != nil {
		return err
	}
	speed, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBaud, baud)
	}
	size, ok := charSizes[fr.bits]
	if !ok {
		return fmt.Errorf("%w: %d data bits", ErrFraming, fr.bits)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL |
		unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST | unix.ONLCR
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CMSPAR | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CLOCAL | unix.CREAD | size | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	switch fr.stop {
	case uart.One:
	case uart.Two:
		t.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("%w: stop bits %d", ErrFraming, fr.stop)
	}

	switch fr.parity {
	case uart.NoParity:
	case uart.Even:
		t.Cflag |= unix.PARENB
	case uart.Odd:
		t.Cflag |= unix.PARENB | unix.PARODD
	case uart.Mark:
		t.Cflag |= unix.PARENB | unix.CMSPAR | unix.PARODD
	case uart.Space:
		t.Cflag |= unix.PARENB | unix.CMSPAR
	default:
		return fmt.Errorf("%w: parity %q", ErrFraming, rune(fr.parity))
	}

	switch {
	case fr.flow == uart.NoFlow:
	case fr.flow == uart.RTSCTS:
		t.Cflag |= unix.CRTSCTS
	case fr.flow&0xFFFF0000 == uart.XOnXOff:
		t.Iflag |= unix.IXON | unix.IXOFF
		t.Cc[unix.VSTART] = byte(fr.flow >> 8)
		t.Cc[unix.VSTOP] = byte(fr.flow)
	default:
		return fmt.Errorf("%w: flow %s", ErrFraming, fr.flow)
	}
	return nil
}
