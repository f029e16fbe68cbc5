package wayland

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	headerSize = 8
	// maxMessageSize is the libwayland limit on a single message.
	maxMessageSize = 4096
	// maxFDsPerRead bounds the fds accepted with one recvmsg.
	maxFDsPerRead = 28
)

var (
	ErrMalformed = errors.New("wayland: malformed message")
	ErrShortArgs = errors.New("wayland: message shorter than its arguments")
	ErrMissingFD = errors.New("wayland: fd argument without ancillary data")
)

var order = binary.NativeEndian

// message is an outgoing request.
type message struct {
	b []byte
}

func newMessage(sender uint32, opcode uint16) *message {
	m := &message{b: make([]byte, headerSize, 64)}
	order.PutUint32(m.b[0:], sender)
	order.PutUint32(m.b[4:], uint32(opcode))
	return m
}

func (m *message) Uint(v uint32) {
	m.b = order.AppendUint32(m.b, v)
}

func (m *message) Int(v int32) {
	m.Uint(uint32(v))
}

// String appends a NUL-terminated string padded to 32 bits.
func (m *message) String(s string) {
	m.Uint(uint32(len(s) + 1))
	m.b = append(m.b, s...)
	m.b = append(m.b, 0)
	for len(m.b)%4 != 0 {
		m.b = append(m.b, 0)
	}
}

// bytes finalizes the size field and returns the encoded request.
func (m *message) bytes() []byte {
	word := order.Uint32(m.b[4:])
	order.PutUint32(m.b[4:], uint32(len(m.b))<<16|word&0xffff)
	return m.b
}

// decoder reads the arguments of one incoming event. Failures are sticky
// and reported through err.
type decoder struct {
	b   []byte
	fds []int
	err error
}

func (d *decoder) Uint() uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.b) < 4 {
		d.err = ErrShortArgs
		return 0
	}
	v := order.Uint32(d.b)
	d.b = d.b[4:]
	return v
}

func (d *decoder) Int() int32 {
	return int32(d.Uint())
}

func (d *decoder) String() string {
	n := int(d.Uint())
	if d.err != nil || n == 0 {
		return ""
	}
	padded := (n + 3) &^ 3
	if len(d.b) < padded {
		d.err = ErrShortArgs
		return ""
	}
	if d.b[n-1] != 0 {
		d.err = fmt.Errorf("%w: unterminated string", ErrMalformed)
		return ""
	}
	s := string(d.b[:n-1])
	d.b = d.b[padded:]
	return s
}

// FD hands over ownership of the next fd received with this event.
func (d *decoder) FD() int {
	if d.err != nil {
		return -1
	}
	if len(d.fds) == 0 {
		d.err = ErrMissingFD
		return -1
	}
	fd := d.fds[0]
	d.fds = d.fds[1:]
	return fd
}

// closeUnclaimed closes fds the handler did not take.
func (d *decoder) closeUnclaimed() {
	for _, fd := range d.fds {
		_ = unix.Close(fd)
	}
	d.fds = nil
}

func parseHeader(b []byte) (sender uint32, opcode uint16, size int) {
	sender = order.Uint32(b[0:])
	word := order.Uint32(b[4:])
	return sender, uint16(word), int(word >> 16)
}
