package wayland

// wl_display
const (
	displaySync        = 0
	displayGetRegistry = 1

	displayEventError    = 0
	displayEventDeleteID = 1
)

// wl_registry
const (
	registryBind = 0

	registryEventGlobal       = 0
	registryEventGlobalRemove = 1
)

// wl_callback
const callbackEventDone = 0

// Display is the wl_display singleton, object 1.
type Display struct {
	proxy
}

func (d *Display) dispatch(opcode uint16, m *decoder) {
	switch opcode {
	case displayEventError:
		e := &ProtocolError{ObjectID: m.Uint(), Code: m.Uint(), Message: m.String()}
		if m.err == nil {
			d.conn.err = e
		}
	case displayEventDeleteID:
		id := m.Uint()
		if m.err == nil {
			d.conn.deleteID(id)
		}
	}
}

func (d *Display) eventFDs(uint16) int { return 0 }

// Sync requests a callback that fires once the compositor has handled every
// earlier request.
func (d *Display) Sync() (*Callback, error) {
	id, err := d.conn.allocID()
	if err != nil {
		return nil, err
	}
	cb := &Callback{proxy: proxy{conn: d.conn, id: id}}
	d.conn.register(id, cb)

	m := newMessage(d.id, displaySync)
	m.Uint(id)
	return cb, d.conn.send(m)
}

// GetRegistry creates the global registry. Globals announced by the
// compositor are collected on the next Roundtrip.
func (d *Display) GetRegistry() (*Registry, error) {
	id, err := d.conn.allocID()
	if err != nil {
		return nil, err
	}
	r := &Registry{proxy: proxy{conn: d.conn, id: id}}
	d.conn.register(id, r)

	m := newMessage(d.id, displayGetRegistry)
	m.Uint(id)
	return r, d.conn.send(m)
}

// Callback is a one-shot wl_callback.
type Callback struct {
	proxy
	done bool
}

// Done reports whether the callback has fired.
func (c *Callback) Done() bool { return c.done }

func (c *Callback) dispatch(opcode uint16, m *decoder) {
	if opcode == callbackEventDone {
		m.Uint()
		c.done = true
	}
}

func (c *Callback) eventFDs(uint16) int { return 0 }

// Global is one advertised compositor interface.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// Registry is the wl_registry.
type Registry struct {
	proxy
	globals []Global
}

// Globals returns the globals announced so far.
func (r *Registry) Globals() []Global {
	return r.globals
}

// Find returns every global implementing iface.
func (r *Registry) Find(iface string) []Global {
	var out []Global
	for _, g := range r.globals {
		if g.Interface == iface {
			out = append(out, g)
		}
	}
	return out
}

func (r *Registry) dispatch(opcode uint16, m *decoder) {
	switch opcode {
	case registryEventGlobal:
		g := Global{Name: m.Uint(), Interface: m.String(), Version: m.Uint()}
		if m.err == nil {
			r.globals = append(r.globals, g)
		}
	case registryEventGlobalRemove:
		name := m.Uint()
		for i, g := range r.globals {
			if g.Name == name {
				r.globals = append(r.globals[:i], r.globals[i+1:]...)
				break
			}
		}
	}
}

func (r *Registry) eventFDs(uint16) int { return 0 }

// bind sends wl_registry.bind for an object whose id was already allocated
// and registered.
func (r *Registry) bind(g Global, version, id uint32) error {
	m := newMessage(r.id, registryBind)
	m.Uint(g.Name)
	m.String(g.Interface)
	m.Uint(version)
	m.Uint(id)
	return r.conn.send(m)
}
