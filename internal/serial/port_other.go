//go:build !linux

package serial

import (
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/uart"
)

// Port is unavailable outside Linux.
type Port struct {
	path string
}

func Open(path string) (*Port, error) {
	return nil, ErrUnsupported
}

func (p *Port) String() string { return p.path }

func (p *Port) LimitSpeed(physic.Frequency) error { return ErrUnsupported }

func (p *Port) Connect(physic.Frequency, uart.Stop, uart.Parity, uart.Flow, int) (conn.Conn, error) {
	return nil, ErrUnsupported
}

func (p *Port) Close() error { return nil }

func (p *Port) write([]byte) error { return ErrUnsupported }
