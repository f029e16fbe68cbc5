// Package wayland is a small client for the Wayland wire protocol. It speaks
// just enough of it to enumerate outputs and export their frames through
// wlr-export-dmabuf-unstable-v1.
package wayland

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

var (
	ErrNoRuntimeDir = errors.New("wayland: XDG_RUNTIME_DIR is not set")
	ErrTimeout      = errors.New("wayland: timed out waiting for events")
	ErrClosed       = errors.New("wayland: connection closed")
	ErrUnknownID    = errors.New("wayland: event for unknown object")
	ErrIDsExhausted = errors.New("wayland: client object ids exhausted")
)

// maxClientID is the last id of the client-allocated range.
const maxClientID = 0xfeffffff

// ProtocolError is a fatal error sent by the compositor.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wayland: protocol error on object %d (code %d): %s", e.ObjectID, e.Code, e.Message)
}

// object is a client-side proxy that receives events.
type object interface {
	dispatch(opcode uint16, d *decoder)
	// eventFDs returns how many fds event opcode carries.
	eventFDs(opcode uint16) int
}

type proxy struct {
	conn *Conn
	id   uint32
}

// ID returns the protocol object id.
func (p *proxy) ID() uint32 { return p.id }

// Conn is a client connection. It is not safe for concurrent use; every
// handler runs on the goroutine calling Dispatch.
type Conn struct {
	sock *net.UnixConn
	log  zerolog.Logger

	display *Display
	objects map[uint32]object
	// zombies were destroyed by the client and wait for delete_id. Their
	// events are dropped but fds are still closed.
	zombies map[uint32]object
	free    []uint32
	nextID  uint32

	buf        [4 * maxMessageSize]byte
	start, end int
	oob        []byte
	fds        []int

	err error
}

// Connect opens the compositor socket named by WAYLAND_SOCKET or
// WAYLAND_DISPLAY.
func Connect(log zerolog.Logger) (*Conn, error) {
	if s := os.Getenv("WAYLAND_SOCKET"); s != "" {
		fd, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("wayland: invalid WAYLAND_SOCKET %q", s)
		}
		f := os.NewFile(uintptr(fd), "wayland-socket")
		c, err := net.FileConn(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("wayland: WAYLAND_SOCKET: %w", err)
		}
		uc, ok := c.(*net.UnixConn)
		if !ok {
			_ = c.Close()
			return nil, fmt.Errorf("wayland: WAYLAND_SOCKET is not a unix socket")
		}
		return NewConn(uc, log), nil
	}

	name := os.Getenv("WAYLAND_DISPLAY")
	if name == "" {
		name = "wayland-0"
	}
	path := name
	if !filepath.IsAbs(name) {
		dir := os.Getenv("XDG_RUNTIME_DIR")
		if dir == "" {
			return nil, ErrNoRuntimeDir
		}
		path = filepath.Join(dir, name)
	}

	sock, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("wayland: connect %s: %w", path, err)
	}
	log.Debug().Str("socket", path).Msg("connected to compositor")
	return NewConn(sock, log), nil
}

// NewConn wraps an established compositor socket.
func NewConn(sock *net.UnixConn, log zerolog.Logger) *Conn {
	c := &Conn{
		sock:    sock,
		log:     log,
		objects: make(map[uint32]object),
		zombies: make(map[uint32]object),
		nextID:  2,
		oob:     make([]byte, unix.CmsgSpace(4*maxFDsPerRead)),
	}
	c.display = &Display{proxy: proxy{conn: c, id: 1}}
	c.objects[1] = c.display
	return c
}

// Display returns the wl_display singleton.
func (c *Conn) Display() *Display { return c.display }

// Err returns the error that broke the connection, if any.
func (c *Conn) Err() error { return c.err }

// SetReadDeadline bounds the wait of the next Dispatch calls. A zero time
// removes the bound.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.sock.SetReadDeadline(t)
}

// Dispatch blocks until at least one event has been handled, then handles
// every complete event already received.
func (c *Conn) Dispatch() error {
	for {
		if c.err != nil {
			return c.err
		}
		n, err := c.dispatchBuffered()
		if err != nil {
			c.err = err
			return err
		}
		if c.err != nil {
			return c.err
		}
		if n > 0 {
			return nil
		}
		if err := c.read(); err != nil {
			return err
		}
	}
}

// Roundtrip blocks until the compositor has processed every request sent so
// far and every resulting event has been handled.
func (c *Conn) Roundtrip() error {
	cb, err := c.display.Sync()
	if err != nil {
		return err
	}
	for !cb.Done() {
		if err := c.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the socket and any fds received but never delivered.
func (c *Conn) Close() error {
	for _, fd := range c.fds {
		_ = unix.Close(fd)
	}
	c.fds = nil
	if c.err == nil {
		c.err = ErrClosed
	}
	return c.sock.Close()
}

func (c *Conn) dispatchBuffered() (int, error) {
	n := 0
	for c.end-c.start >= headerSize {
		sender, opcode, size := parseHeader(c.buf[c.start:c.end])
		if size < headerSize || size%4 != 0 || size > maxMessageSize {
			return n, fmt.Errorf("%w: size %d", ErrMalformed, size)
		}
		if c.end-c.start < size {
			break
		}

		obj, live := c.objects[sender]
		if !live {
			obj = c.zombies[sender]
		}
		if obj == nil {
			return n, fmt.Errorf("%w: id %d opcode %d", ErrUnknownID, sender, opcode)
		}

		need := obj.eventFDs(opcode)
		if len(c.fds) < need {
			// fds travel with the bytes of the same sendmsg; wait for them.
			break
		}
		d := &decoder{b: c.buf[c.start+headerSize : c.start+size]}
		if need > 0 {
			d.fds = append([]int(nil), c.fds[:need]...)
			c.fds = c.fds[need:]
		}
		c.start += size

		if live {
			obj.dispatch(opcode, d)
		} else {
			c.log.Trace().Uint32("id", sender).Uint16("opcode", opcode).Msg("dropping event for destroyed object")
		}
		d.closeUnclaimed()
		if d.err != nil {
			return n, fmt.Errorf("object %d opcode %d: %w", sender, opcode, d.err)
		}
		n++
	}
	return n, nil
}

func (c *Conn) read() error {
	if c.start > 0 {
		copy(c.buf[:], c.buf[c.start:c.end])
		c.end -= c.start
		c.start = 0
	}
	if c.end == len(c.buf) {
		c.err = fmt.Errorf("%w: %d bytes buffered without a dispatchable event", ErrMalformed, c.end)
		return c.err
	}

	n, oobn, _, _, err := c.sock.ReadMsgUnix(c.buf[c.end:], c.oob)
	if oobn > 0 {
		fds, perr := parseRights(c.oob[:oobn])
		c.fds = append(c.fds, fds...)
		if perr != nil && err == nil {
			err = perr
		}
	}
	// n is negative when the read fails, a deadline expiry included.
	if n > 0 {
		c.end += n
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ErrTimeout
		}
		c.err = err
		return err
	}
	if n == 0 {
		c.err = io.EOF
		return io.EOF
	}
	return nil
}

func parseRights(oob []byte) ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("wayland: control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return fds, fmt.Errorf("wayland: unix rights: %w", err)
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

func (c *Conn) send(m *message) error {
	if c.err != nil {
		return c.err
	}
	if _, err := c.sock.Write(m.bytes()); err != nil {
		c.err = err
		return err
	}
	return nil
}

func (c *Conn) allocID() (uint32, error) {
	if n := len(c.free); n > 0 {
		id := c.free[n-1]
		c.free = c.free[:n-1]
		return id, nil
	}
	if c.nextID > maxClientID {
		return 0, ErrIDsExhausted
	}
	id := c.nextID
	c.nextID++
	return id, nil
}

func (c *Conn) register(id uint32, o object) {
	c.objects[id] = o
}

// destroyed moves id to the zombie set until the compositor acknowledges it.
func (c *Conn) destroyed(id uint32) {
	if o, ok := c.objects[id]; ok {
		delete(c.objects, id)
		c.zombies[id] = o
	}
}

func (c *Conn) deleteID(id uint32) {
	_, live := c.objects[id]
	_, zombie := c.zombies[id]
	if !live && !zombie {
		return
	}
	delete(c.objects, id)
	delete(c.zombies, id)
	c.free = append(c.free, id)
}
