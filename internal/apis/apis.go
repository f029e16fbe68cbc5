// Package apis holds the small D-Bus helpers shared by the desktop
// integrations.
package apis

import (
	"github.com/godbus/dbus/v5"
)

// Bus selects a message bus.
type Bus int

const (
	SessionBus Bus = iota
	SystemBus
)

func (b Bus) String() string {
	if b == SystemBus {
		return "system"
	}
	return "session"
}

// Connect returns the shared connection to bus. It must not be closed.
func Connect(bus Bus) (*dbus.Conn, error) {
	if bus == SystemBus {
		return dbus.SystemBus()
	}
	return dbus.SessionBus()
}

// Call invokes method on the object at path owned by dest and stores the
// reply in out, if any.
func Call(conn *dbus.Conn, dest string, path dbus.ObjectPath, method string, out any, args ...any) error {
	call := conn.Object(dest, path).Call(method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if out == nil {
		return nil
	}
	return call.Store(out)
}

// Subscription is a signal match registered on a connection.
type Subscription struct {
	conn    *dbus.Conn
	opts    []dbus.MatchOption
	Signals chan *dbus.Signal
}

// ListenOnSignal subscribes to iface.member emitted at path. Signals is
// buffered; a slow reader delays the connection's other subscribers.
func ListenOnSignal(conn *dbus.Conn, path dbus.ObjectPath, iface, member string) (*Subscription, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if err := conn.AddMatchSignal(opts...); err != nil {
		return nil, err
	}

	signal := make(chan *dbus.Signal, 8)
	conn.Signal(signal)
	return &Subscription{conn: conn, opts: opts, Signals: signal}, nil
}

// Close removes the match and stops delivery to Signals.
func (s *Subscription) Close() error {
	s.conn.RemoveSignal(s.Signals)
	return s.conn.RemoveMatchSignal(s.opts...)
}
