package wayland

import (
	"fmt"
	"strings"
)

// OutputInterface is the wl_output interface name.
const OutputInterface = "wl_output"

// Highest wl_output version understood; v4 adds name and description.
const outputVersion = 4

const (
	outputRelease = 0

	outputEventGeometry    = 0
	outputEventMode        = 1
	outputEventDone        = 2
	outputEventScale       = 3
	outputEventName        = 4
	outputEventDescription = 5

	outputModeCurrent = 0x1
)

// Output is a bound wl_output and the state it announced.
type Output struct {
	proxy
	Global  uint32
	Version uint32

	Name        string
	Description string
	Make        string
	Model       string
	Width       int32
	Height      int32
	RefreshMHz  int32
	Scale       int32
}

// BindOutput binds the wl_output global g.
func (r *Registry) BindOutput(g Global) (*Output, error) {
	id, err := r.conn.allocID()
	if err != nil {
		return nil, err
	}
	version := min(g.Version, outputVersion)
	o := &Output{proxy: proxy{conn: r.conn, id: id}, Global: g.Name, Version: version, Scale: 1}
	r.conn.register(id, o)
	return o, r.bind(g, version, id)
}

func (o *Output) dispatch(opcode uint16, m *decoder) {
	switch opcode {
	case outputEventGeometry:
		m.Int() // x
		m.Int() // y
		m.Int() // physical width
		m.Int() // physical height
		m.Int() // subpixel
		o.Make = m.String()
		o.Model = m.String()
		m.Int() // transform
	case outputEventMode:
		flags := m.Uint()
		w, h, refresh := m.Int(), m.Int(), m.Int()
		if flags&outputModeCurrent != 0 {
			o.Width, o.Height, o.RefreshMHz = w, h, refresh
		}
	case outputEventScale:
		o.Scale = m.Int()
	case outputEventName:
		o.Name = m.String()
	case outputEventDescription:
		o.Description = m.String()
	}
}

func (o *Output) eventFDs(uint16) int { return 0 }

// Matches reports whether query identifies o. The description is searched
// first; compositors without wl_output v4 only offer make and model.
func (o *Output) Matches(query string) bool {
	if query == "" {
		return false
	}
	if o.Description != "" && strings.Contains(o.Description, query) {
		return true
	}
	if o.Name == query {
		return true
	}
	return strings.Contains(strings.TrimSpace(o.Make+" "+o.Model), query)
}

// Label is a human-readable identification of o.
func (o *Output) Label() string {
	switch {
	case o.Description != "":
		return o.Description
	case o.Name != "":
		return o.Name
	default:
		return strings.TrimSpace(fmt.Sprintf("%s %s", o.Make, o.Model))
	}
}

// Release destroys the output proxy when the compositor supports it.
func (o *Output) Release() error {
	if o.Version < 3 {
		return nil
	}
	err := o.conn.send(newMessage(o.id, outputRelease))
	o.conn.destroyed(o.id)
	return err
}
