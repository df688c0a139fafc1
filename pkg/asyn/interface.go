package asyn

import "github.com/datawire/goasyn/pkg/asyn/status"

// ifaceEntry is an interface record: a typed function table (vtable) and
// the driver's own private context (driverPvt), keyed by typeName. The
// framework treats vtable and driverPvt as opaque; it never calls into
// them itself.
type ifaceEntry struct {
	typeName  string
	vtable    any
	driverPvt any
}

// RegisterInterface installs the base interface for typeName at portName.
// It fails if that type is already registered at the port; interfaces are
// immutable once registered.
func (m *Manager) RegisterInterface(portName, typeName string, vtable, driverPvt any) error {
	p, err := m.lookupPort(portName)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.interfaces[typeName]; ok {
		return status.User.Newf("asyn: interface %q already registered on port %q", typeName, portName)
	}
	p.interfaces[typeName] = ifaceEntry{typeName: typeName, vtable: vtable, driverPvt: driverPvt}
	return nil
}

// InterposeInterface installs newIface as an overlay in front of whatever
// currently answers typeName lookups for the given endpoint: the device at
// addr if addr >= 0 and the port is multi-device, otherwise the port
// itself. It returns the interface record the new one now shadows, so the
// interposing driver can chain calls through it; the framework never
// traverses the chain itself.
func (m *Manager) InterposeInterface(portName string, addr int, typeName string, vtable, driverPvt any) (previous ifaceEntry, err error) {
	p, err := m.lookupPort(portName)
	if err != nil {
		return ifaceEntry{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.resolveEndpointLocked(addr)
	st := ep.state()

	prev, ok := lastMatchingInterposer(st.interposed, typeName)
	if !ok {
		var pok bool
		prev, pok = p.interfaces[typeName]
		if !pok {
			return ifaceEntry{}, status.User.Newf("asyn: no base interface %q registered on port %q to interpose", typeName, portName)
		}
	}
	st.interposed = append(st.interposed, ifaceEntry{typeName: typeName, vtable: vtable, driverPvt: driverPvt})
	return prev, nil
}

func lastMatchingInterposer(list []ifaceEntry, typeName string) (ifaceEntry, bool) {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].typeName == typeName {
			return list[i], true
		}
	}
	return ifaceEntry{}, false
}

// FindInterface looks up typeName for user, in order: device-interpose (if
// user is connected to a device), then port-interpose, then port base. When
// interposeOK is false, only the port base registration is considered.
func (m *Manager) FindInterface(user *AsynUser, typeName string, interposeOK bool) (any, any, error) {
	if user.port == nil {
		return nil, nil, failUser(user, status.User.Newf("asyn: user is not connected to a port"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()

	if interposeOK {
		if user.device != nil {
			if e, ok := lastMatchingInterposer(user.device.ep.interposed, typeName); ok {
				return e.vtable, e.driverPvt, nil
			}
		}
		if e, ok := lastMatchingInterposer(p.endpoint.interposed, typeName); ok {
			return e.vtable, e.driverPvt, nil
		}
	}
	if e, ok := p.interfaces[typeName]; ok {
		return e.vtable, e.driverPvt, nil
	}
	return nil, nil, failUser(user, status.User.Newf("asyn: interface %q not found on port %q", typeName, p.Name()))
}
