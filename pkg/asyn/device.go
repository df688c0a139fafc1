package asyn

import "fmt"

// Device is an addressable sub-endpoint within a multi-device port. Devices
// are never destroyed once created; they come into existence lazily, the
// first time a user connects to a new address on a multi-device port.
type Device struct {
	port *Port
	addr int
	ep   endpointState
}

func (d *Device) state() *endpointState { return &d.ep }

func (d *Device) name() string { return fmt.Sprintf("%s[%d]", d.port.portName, d.addr) }

// newDevice creates a device whose EndpointState inherits autoConnect and
// the current trace configuration from the owning port at creation time, as
// required by the data-model invariant; the two then evolve independently.
func newDevice(port *Port, addr int, portAutoConnect bool, trace traceRecord) *Device {
	return &Device{
		port: port,
		addr: addr,
		ep: endpointState{
			enabled:     true,
			autoConnect: portAutoConnect,
			trace:       trace,
		},
	}
}

// deviceFor returns the device at addr on p, creating it on demand when the
// port is multi-device and addr is non-negative. Callers must hold p.mu.
func (p *Port) deviceFor(addr int) *Device {
	if !p.multiDevice || addr < 0 {
		return nil
	}
	if d, ok := p.devices[addr]; ok {
		return d
	}
	d := newDevice(p, addr, p.endpoint.autoConnect, p.endpoint.trace)
	p.devices[addr] = d
	return d
}
