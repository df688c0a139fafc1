package asyn

import (
	"context"
	"sync"
)

// Port is a registered named communication endpoint: a dedicated worker
// goroutine, a mutex guarding everything below, one FIFO per user priority
// plus a reserved Connect FIFO, a device table, and a registered-interface
// table.
type Port struct {
	portName    string
	multiDevice bool

	priorityHint  int
	stackSizeHint int

	mu sync.Mutex

	endpoint endpointState

	queues       [numUserPriorities][]*AsynUser
	connectQueue []*AsynUser
	dirty        bool

	devices    map[int]*Device
	interfaces map[string]ifaceEntry

	wake chan struct{}

	metrics metricsSink
}

func (p *Port) state() *endpointState { return &p.endpoint }
func (p *Port) name() string          { return p.portName }

// Name returns the port's registered name.
func (p *Port) Name() string { return p.portName }

// IsMultiDevice reports whether the port was registered with multiDevice=true.
func (p *Port) IsMultiDevice() bool { return p.multiDevice }

func newPort(name string, multiDevice, autoConnect bool, priorityHint, stackSizeHint int, metrics metricsSink, traceDefault traceRecord) *Port {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Port{
		portName:      name,
		multiDevice:   multiDevice,
		priorityHint:  priorityHint,
		stackSizeHint: stackSizeHint,
		endpoint: endpointState{
			enabled:     true,
			autoConnect: autoConnect,
			trace:       traceDefault,
		},
		devices:    make(map[int]*Device),
		interfaces: make(map[string]ifaceEntry),
		wake:       make(chan struct{}, 1),
		metrics:    metrics,
	}
}

// markDirtyLocked sets the scheduler dirty flag, forcing the worker's
// inner selection loop to restart on its next iteration. Callers must hold
// p.mu.
func (p *Port) markDirtyLocked() {
	p.dirty = true
}

// wakeWorker signals the port's worker goroutine without blocking if it is
// already pending a wake.
func (p *Port) wakeWorker() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// resolveEndpointLocked returns the device at addr (materializing it on
// demand) if addr >= 0 and the port is multi-device, otherwise the port
// itself. Callers must hold p.mu.
func (p *Port) resolveEndpointLocked(addr int) endpoint {
	if d := p.deviceFor(addr); d != nil {
		return d
	}
	return p
}

// shutdown wakes the worker so it re-checks its context; no other
// bookkeeping is needed since ports are never unregistered. Nothing in this
// package calls it: the workers stop when the Manager's context is
// cancelled.
func (p *Port) shutdown(_ context.Context) {
	p.wakeWorker()
}
