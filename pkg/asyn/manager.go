// Package asyn implements the core of an asynchronous I/O manager and
// driver framework: port/device/user registration, a per-port priority
// request scheduler, a multi-step exclusive lock protocol, connection-state
// exception fan-out, a typed interface/interposer registry, and a
// mask-filtered trace subsystem.
//
// The concrete transport drivers (serial, TCP, GPIB...), the record-engine
// layer that would wrap this manager for a scan-driven database, and
// higher-level typed interfaces are all external collaborators; this
// package only schedules callbacks that perform I/O while holding a port's
// logical lock.
package asyn

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"

	"github.com/datawire/goasyn/pkg/asyn/status"
)

// Manager owns the set of registered ports and the process-wide trace
// lock. Unlike the original C library, it is an explicitly constructed
// runtime object: nothing here is a package-level global, so tests (and a
// single process hosting more than one instrument subsystem) can each
// build an independent Manager.
type Manager struct {
	mu    sync.Mutex
	ports map[string]*Port

	traceMu      sync.Mutex
	traceDefault traceRecord

	group   *dgroup.Group
	metrics metricsSink
}

// NewManager constructs a Manager whose port worker goroutines are
// supervised under ctx: cancelling ctx stops every port worker. metrics may
// be nil, in which case observability calls are no-ops.
func NewManager(ctx context.Context, metrics MetricsSink) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		ports:   make(map[string]*Port),
		group:   dgroup.NewGroup(ctx, dgroup.GroupConfig{}),
		metrics: metrics,
		traceDefault: traceRecord{
			mask:         TraceError,
			truncateSize: defaultTruncateSize,
		},
	}
}

// Wait blocks until every port worker goroutine has exited, returning the
// first error any of them reported.
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// Shutdown disables every registered port, so its worker parks at the
// phase-1 gate, and gives any port whose own endpoint is connected a chance
// to disconnect cleanly through its registered asynCommon interface. It
// returns the aggregate of whatever disconnect errors those drivers report;
// one port's failure does not stop the rest from being attempted. Callers
// run this before cancelling the context that supervises the port workers.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	ports := make([]*Port, 0, len(m.ports))
	for _, p := range m.ports {
		ports = append(ports, p)
	}
	m.mu.Unlock()

	var result *multierror.Error
	for _, p := range ports {
		p.mu.Lock()
		p.endpoint.enabled = false
		connected := p.endpoint.connected
		common, driverPvt, ok := findCommonLocked(p, p)
		p.mu.Unlock()

		if connected && ok {
			transient := NewUser(RequestHandlerFunc(func(*AsynUser) {}), nil)
			transient.port = p
			transient.addr = -1
			if err := common.Disconnect(driverPvt, transient); err != nil {
				result = multierror.Append(result, status.Transient.Newf("port %q: %v", p.portName, err))
			}
		}
		p.wakeWorker()
	}
	return result.ErrorOrNil()
}

// RegisterPort creates a new port named name and starts its dedicated
// worker goroutine. It fails if name is already registered.
//
// priority and stackSize are carried for fidelity with the source
// interface but are metadata only: Go goroutines have neither OS thread
// priority nor a fixed stack to size (see DESIGN.md).
func (m *Manager) RegisterPort(name string, multiDevice, autoConnect bool, priority, stackSize int) (*Port, error) {
	m.traceMu.Lock()
	traceDefault := m.traceDefault
	m.traceMu.Unlock()

	m.mu.Lock()
	if _, exists := m.ports[name]; exists {
		m.mu.Unlock()
		return nil, status.User.Newf("asyn: port %q already registered", name)
	}
	p := newPort(name, multiDevice, autoConnect, priority, stackSize, m.metrics, traceDefault)
	m.ports[name] = p
	m.mu.Unlock()

	m.group.Go("port/"+name, func(ctx context.Context) error {
		dlog.Infof(ctx, "port %q worker starting (multiDevice=%v autoConnect=%v)", name, multiDevice, autoConnect)
		p.workerLoop(ctx)
		dlog.Infof(ctx, "port %q worker stopped", name)
		return nil
	})
	return p, nil
}

func (m *Manager) lookupPort(name string) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.ports[name]
	if !ok {
		return nil, status.User.Newf("asyn: port %q not registered", name)
	}
	return p, nil
}

// IsMultiDevice reports whether portName was registered with multiDevice=true.
func (m *Manager) IsMultiDevice(portName string) (bool, error) {
	p, err := m.lookupPort(portName)
	if err != nil {
		return false, err
	}
	return p.multiDevice, nil
}

// CreateUser allocates a new, unconnected user handle.
func (m *Manager) CreateUser(handler RequestHandler, timeoutHandler TimeoutHandler) *AsynUser {
	return NewUser(handler, timeoutHandler)
}

// FreeUser releases user. It fails if the user is still connected to a
// port; callers must DisconnectUser first.
func (m *Manager) FreeUser(user *AsynUser) error {
	if user.port != nil {
		return failUser(user, status.User.New("asyn: cannot free a user still connected to a port"))
	}
	return nil
}

// ConnectUser connects user to portName, materializing the addressed
// device on demand if addr >= 0 and the port is multi-device. This is pure
// bookkeeping: it never touches the transport.
func (m *Manager) ConnectUser(user *AsynUser, portName string, addr int) error {
	if user.port != nil {
		return failUser(user, status.User.New("asyn: user is already connected to a port"))
	}
	p, err := m.lookupPort(portName)
	if err != nil {
		return failUser(user, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	user.port = p
	user.addr = addr
	user.device = p.deviceFor(addr)
	return nil
}

// DisconnectUser clears user's port/device back-references. It fails if the
// user is queued, holds a lock, or has an active exception subscription,
// since any of those would strand scheduler or subscriber state.
func (m *Manager) DisconnectUser(user *AsynUser) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: user is not connected to a port"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()

	if user.isQueued {
		return failUser(user, status.User.New("asyn: cannot disconnect a queued user"))
	}
	if user.lockCount > 0 {
		return failUser(user, status.User.New("asyn: cannot disconnect a user holding a lock"))
	}
	if user.exceptionSub != nil {
		return failUser(user, status.User.New("asyn: cannot disconnect a user with an active exception subscription"))
	}
	user.port = nil
	user.device = nil
	user.addr = -1
	return nil
}

// GetAddr returns the address user is connected at, or -1 if unaddressed.
func (m *Manager) GetAddr(user *AsynUser) int {
	return user.addr
}

// PortReport is a point-in-time snapshot of one port's state, returned by
// Report.
type PortReport struct {
	Name        string
	MultiDevice bool
	Enabled     bool
	Connected   bool
	AutoConnect bool
	NumDevices  int
	QueueDepths [numUserPriorities]int
}

// Report returns a snapshot of every registered port, for diagnostics.
func (m *Manager) Report() []PortReport {
	m.mu.Lock()
	names := make([]string, 0, len(m.ports))
	ports := make([]*Port, 0, len(m.ports))
	for name, p := range m.ports {
		names = append(names, name)
		ports = append(ports, p)
	}
	m.mu.Unlock()

	reports := make([]PortReport, len(ports))
	for i, p := range ports {
		p.mu.Lock()
		r := PortReport{
			Name:        p.portName,
			MultiDevice: p.multiDevice,
			Enabled:     p.endpoint.enabled,
			Connected:   p.endpoint.connected,
			AutoConnect: p.endpoint.autoConnect,
			NumDevices:  len(p.devices),
		}
		for pr := Low; pr < numUserPriorities; pr++ {
			r.QueueDepths[pr] = len(p.queues[pr])
		}
		p.mu.Unlock()
		reports[i] = r
	}
	_ = names
	return reports
}
