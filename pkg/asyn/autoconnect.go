package asyn

import (
	"context"
	"time"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/time/rate"

	"github.com/datawire/goasyn/pkg/asyn/status"
)

// AsynCommon is the interface every transport driver registers under the
// name "asynCommon": the pair of calls the framework invokes to attempt a
// connection and to release one. A driver reports the *outcome* of a
// connection attempt asynchronously, by calling back into ExceptionConnect
// or ExceptionDisconnect once it knows; Connect and Disconnect returning nil
// here only means the attempt was dispatched without a local error.
type AsynCommon interface {
	Connect(driverPvt any, user *AsynUser) error
	Disconnect(driverPvt any, user *AsynUser) error
}

// minReconnectInterval bounds how often the worker retries a disconnected,
// auto-connecting endpoint.
const minReconnectInterval = 2 * time.Second

// autoConnect attempts to (re)connect the endpoint at addr on p (-1 means
// the port itself). An attempt made less than minReconnectInterval after the
// endpoint's last disconnect first sleeps the difference, and repeated
// attempts against the same endpoint are paced to at most one per
// minReconnectInterval by a token-bucket limiter kept on the endpoint's
// state. Must be called with p.mu NOT held.
func (p *Port) autoConnect(ctx context.Context, addr int) {
	p.mu.Lock()
	ep := p.resolveEndpointLocked(addr)
	st := ep.state()
	if st.reconnectLimiter == nil {
		st.reconnectLimiter = rate.NewLimiter(rate.Every(minReconnectInterval), 1)
	}
	lim := st.reconnectLimiter
	sinceDisconnect := time.Since(st.lastDisconnect)
	common, driverPvt, ok := findCommonLocked(p, ep)
	p.mu.Unlock()

	if !ok {
		return
	}

	if wait := minReconnectInterval - sinceDisconnect; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	if r := lim.Reserve(); r.Delay() > 0 {
		delay := r.Delay()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return
		}
	}

	transient := NewUser(RequestHandlerFunc(func(*AsynUser) {}), nil)
	transient.port = p
	transient.addr = addr
	if d, isDevice := ep.(*Device); isDevice {
		transient.device = d
	}

	if err := common.Connect(driverPvt, transient); err != nil {
		dlog.Debugf(ctx, "port %q auto-connect attempt failed: %v", p.portName, err)
	}
}

// findCommonLocked resolves the "asynCommon" interface governing ep,
// honoring interposers the same way FindInterface does for ordinary
// lookups. Callers must hold p.mu.
func findCommonLocked(p *Port, ep endpoint) (AsynCommon, any, bool) {
	st := ep.state()
	if e, ok := lastMatchingInterposer(st.interposed, "asynCommon"); ok {
		if c, isCommon := e.vtable.(AsynCommon); isCommon {
			return c, e.driverPvt, true
		}
	}
	if e, ok := lastMatchingInterposer(p.endpoint.interposed, "asynCommon"); ok {
		if c, isCommon := e.vtable.(AsynCommon); isCommon {
			return c, e.driverPvt, true
		}
	}
	if e, ok := p.interfaces["asynCommon"]; ok {
		if c, isCommon := e.vtable.(AsynCommon); isCommon {
			return c, e.driverPvt, true
		}
	}
	return nil, nil, false
}

// ExceptionConnect reports that user's endpoint has transitioned to
// connected. Transport drivers call this once a dispatched Connect attempt
// actually succeeds.
func (m *Manager) ExceptionConnect(user *AsynUser) error {
	return m.setConnected(user, true)
}

// ExceptionDisconnect reports that user's endpoint has transitioned to
// disconnected.
func (m *Manager) ExceptionDisconnect(user *AsynUser) error {
	return m.setConnected(user, false)
}

func (m *Manager) setConnected(user *AsynUser, connected bool) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: connection exception on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	ep := user.endpoint()
	st := ep.state()
	if st.connected == connected {
		p.mu.Unlock()
		return nil
	}
	st.connected = connected
	if connected {
		st.numberConnects++
	} else {
		st.lastDisconnect = time.Now()
	}
	p.markDirtyLocked()
	emitException(p, ep, ExceptionConnectKind)
	p.mu.Unlock()

	p.metrics.ConnectionState(ep.name(), connected)
	p.wakeWorker()
	return nil
}

// Enable sets whether user's endpoint is scheduled at all: while a port is
// disabled its worker does nothing on each wake, and requests addressed to
// a disabled device are skipped in phase 3. Re-enabling wakes the worker.
func (m *Manager) Enable(user *AsynUser, enabled bool) error {
	return m.setBoolState(user, enabled, ExceptionEnableKind, func(st *endpointState, v bool) { st.enabled = v })
}

// SetAutoConnect sets whether the worker auto-connects user's endpoint when
// it finds it disconnected.
func (m *Manager) SetAutoConnect(user *AsynUser, autoConnect bool) error {
	return m.setBoolState(user, autoConnect, ExceptionAutoConnectKind, func(st *endpointState, v bool) { st.autoConnect = v })
}

func (m *Manager) setBoolState(user *AsynUser, value bool, kind ExceptionKind, apply func(*endpointState, bool)) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: state change on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	ep := user.endpoint()
	apply(ep.state(), value)
	p.markDirtyLocked()
	emitException(p, ep, kind)
	p.mu.Unlock()
	p.wakeWorker()
	return nil
}

// IsConnected reports user's endpoint connection state.
func (m *Manager) IsConnected(user *AsynUser) (bool, error) {
	return m.boolState(user, func(st *endpointState) bool { return st.connected })
}

// IsEnabled reports user's endpoint enabled state.
func (m *Manager) IsEnabled(user *AsynUser) (bool, error) {
	return m.boolState(user, func(st *endpointState) bool { return st.enabled })
}

// IsAutoConnect reports user's endpoint auto-connect state.
func (m *Manager) IsAutoConnect(user *AsynUser) (bool, error) {
	return m.boolState(user, func(st *endpointState) bool { return st.autoConnect })
}

func (m *Manager) boolState(user *AsynUser, read func(*endpointState) bool) (bool, error) {
	if user.port == nil {
		return false, failUser(user, status.User.New("asyn: state query on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()
	return read(user.endpoint().state()), nil
}
