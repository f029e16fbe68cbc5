//go:build !linux

package capture

import "fmt"

// Session is unavailable outside Linux.
type Session struct{}

func (s *Session) Output() OutputInfo { return OutputInfo{} }

func (s *Session) CaptureOneFrame(func(Frame) error) (bool, error) {
	return false, ErrSessionClosed
}

func (s *Session) Close() error { return nil }

func open(options *Options) (*Session, error) {
	_ = options
	return nil, fmt.Errorf("%w: wlr-export-dmabuf needs a Linux Wayland compositor", ErrNotSupported)
}

func listOutputs() ([]OutputInfo, error) {
	return nil, fmt.Errorf("%w: wlr-export-dmabuf needs a Linux Wayland compositor", ErrNotSupported)
}
