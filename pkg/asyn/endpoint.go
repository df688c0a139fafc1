package asyn

import (
	"time"

	"golang.org/x/time/rate"
)

// endpointState is the per-port and per-device common record described in
// the data model: connection bookkeeping, the lock holder slot, the
// interposer overlay list, and the two exception subscriber lists. A Port
// and a Device each embed one; every field is guarded by the owning port's
// mutex (see Port.mu).
type endpointState struct {
	enabled        bool
	connected      bool
	autoConnect    bool
	numberConnects int
	lastDisconnect time.Time

	lockHolder *AsynUser

	interposed []ifaceEntry

	exceptionUsers   []*exceptionSubscription
	exceptionWaiters []*exceptionSubscription
	exceptionActive  bool

	// exceptionNotifyWaiters holds one channel per ExceptionCallbackRemove
	// call parked while a notification cycle is in flight; emitException
	// closes each of them once the cycle finishes, letting every parked
	// caller wake, re-acquire p.mu, and retry.
	exceptionNotifyWaiters []chan struct{}

	trace traceRecord

	// reconnectLimiter paces repeated auto-connect attempts against this
	// endpoint; it is created lazily on first use.
	reconnectLimiter *rate.Limiter
}

// endpoint is implemented by both *Port and *Device, letting scheduler and
// exception code operate uniformly on "whichever endpoint a request names"
// without caring whether that's the port itself or one of its devices.
type endpoint interface {
	state() *endpointState
	name() string
}
