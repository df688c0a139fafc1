package asyn

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// errBufCap is the capacity of every AsynUser's error-message buffer. The
// spec requires at least 160 bytes and truncation rather than reallocation;
// we size it generously above the floor and enforce the cap in setError.
const errBufCap = 256

// RequestHandler is invoked by the port worker when a queued request is
// selected to run. This is the idiomatic replacement for the original
// C callback function pointer: a one-method capability interface, called
// on the port's worker goroutine, outside the port lock.
type RequestHandler interface {
	OnQueue(user *AsynUser)
}

// TimeoutHandler is invoked on the timer goroutine when a queued request's
// timeout fires before it was selected to run.
type TimeoutHandler interface {
	OnTimeout(user *AsynUser)
}

// RequestHandlerFunc adapts a plain function to a RequestHandler.
type RequestHandlerFunc func(user *AsynUser)

// OnQueue implements RequestHandler.
func (f RequestHandlerFunc) OnQueue(user *AsynUser) { f(user) }

// TimeoutHandlerFunc adapts a plain function to a TimeoutHandler.
type TimeoutHandlerFunc func(user *AsynUser)

// OnTimeout implements TimeoutHandler.
func (f TimeoutHandlerFunc) OnTimeout(user *AsynUser) { f(user) }

// AsynUser is a client-owned request context: a handle on a (port, device)
// pair, holding the fields the scheduler, lock protocol, and exception
// fan-out all need to track about one caller.
//
// Fields below are guarded by the owning port's mutex (p.mu) once the user
// is connected, matching the "port mutex guards all lists/flags/lockHolder"
// rule in the concurrency model; errBuf and errLen are guarded by errMu
// since error-buffer writes can happen from the timer goroutine
// concurrently with a caller reading GetError.
type AsynUser struct {
	ID uuid.UUID

	handler        RequestHandler
	timeoutHandler TimeoutHandler

	port   *Port
	device *Device
	addr   int // -1 if not addressed

	isQueued  bool
	priority  Priority
	lockCount int
	timer     *time.Timer

	exceptionSub *exceptionSubscription

	errMu  sync.Mutex
	errBuf [errBufCap]byte
	errLen int
}

// NewUser creates a user handle that is not yet connected to any port.
// handler is required; timeoutHandler may be nil if the caller never
// queues with a positive timeout.
func NewUser(handler RequestHandler, timeoutHandler TimeoutHandler) *AsynUser {
	return &AsynUser{
		ID:             uuid.New(),
		handler:        handler,
		timeoutHandler: timeoutHandler,
		addr:           -1,
	}
}

// setError truncates msg to errBufCap and stores it as the user's last
// error reason. It never reallocates the buffer.
func (u *AsynUser) setError(msg string) {
	u.errMu.Lock()
	defer u.errMu.Unlock()
	n := copy(u.errBuf[:], msg)
	u.errLen = n
}

func (u *AsynUser) setErrorf(format string, args ...interface{}) {
	u.setError(fmt.Sprintf(format, args...))
}

// failUser records err's message in user's error buffer and returns err
// unchanged. Every Manager operation that fails against a specific user
// routes its error return through this so GetError reflects the last
// reason, the way pasynUser->errorMessage does in the source library. A
// nil err is a no-op.
func failUser(user *AsynUser, err error) error {
	if err != nil {
		user.setError(err.Error())
	}
	return err
}

// GetError returns the last error reason recorded for this user.
func (u *AsynUser) GetError() string {
	u.errMu.Lock()
	defer u.errMu.Unlock()
	return string(u.errBuf[:u.errLen])
}

// IsQueued reports whether the user currently appears on some port's
// priority list. Safe to call without holding the port lock; the caller
// must accept it may be stale the instant it returns for a racing user.
func (u *AsynUser) IsQueued() bool {
	if u.port == nil {
		return false
	}
	u.port.mu.Lock()
	defer u.port.mu.Unlock()
	return u.isQueued
}

// LockCount returns the user's current lock nesting count.
func (u *AsynUser) LockCount() int {
	if u.port == nil {
		return u.lockCount
	}
	u.port.mu.Lock()
	defer u.port.mu.Unlock()
	return u.lockCount
}

// endpoint returns whichever endpoint (device or port) this user is
// addressed at. Callers must hold u.port.mu.
func (u *AsynUser) endpoint() endpoint {
	if u.device != nil {
		return u.device
	}
	return u.port
}

// endpointName renders a human-readable name for trace lines: the port name
// alone, or "port[addr]" when the user is addressed at a device.
func (u *AsynUser) endpointName() string {
	return u.endpoint().name()
}
