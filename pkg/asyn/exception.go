package asyn

import "github.com/datawire/goasyn/pkg/asyn/status"

// ExceptionKind identifies which endpoint-state change a subscription is
// notified about.
type ExceptionKind int

const (
	ExceptionConnectKind ExceptionKind = iota
	ExceptionEnableKind
	ExceptionAutoConnectKind
	ExceptionTraceMaskKind
)

func (k ExceptionKind) String() string {
	switch k {
	case ExceptionConnectKind:
		return "Connect"
	case ExceptionEnableKind:
		return "Enable"
	case ExceptionAutoConnectKind:
		return "AutoConnect"
	case ExceptionTraceMaskKind:
		return "TraceMask"
	default:
		return "Unknown"
	}
}

// ExceptionCallback is invoked when a subscribed endpoint's connection,
// enable, or auto-connect state changes.
type ExceptionCallback interface {
	OnException(user *AsynUser, kind ExceptionKind)
}

// ExceptionCallbackFunc adapts a plain function to an ExceptionCallback.
type ExceptionCallbackFunc func(user *AsynUser, kind ExceptionKind)

// OnException implements ExceptionCallback.
func (f ExceptionCallbackFunc) OnException(user *AsynUser, kind ExceptionKind) { f(user, kind) }

// exceptionSubscription links a user to the callback invoked on its
// endpoint's state changes.
type exceptionSubscription struct {
	user     *AsynUser
	callback ExceptionCallback
}

// ExceptionCallbackAdd subscribes user to its endpoint's state-change
// notifications. If a notification is already unwinding for this endpoint
// when the call arrives, the subscription is parked on exceptionWaiters and
// only takes effect once that notification's iteration completes: a
// callback can never observe the very list it is running against mutate
// underneath it.
func (m *Manager) ExceptionCallbackAdd(user *AsynUser, callback ExceptionCallback) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: exceptionCallbackAdd on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()

	if user.exceptionSub != nil {
		return failUser(user, status.User.New("asyn: user already has an exception subscription"))
	}
	sub := &exceptionSubscription{user: user, callback: callback}
	user.exceptionSub = sub

	st := user.endpoint().state()
	if st.exceptionActive {
		st.exceptionWaiters = append(st.exceptionWaiters, sub)
	} else {
		st.exceptionUsers = append(st.exceptionUsers, sub)
	}
	return nil
}

// ExceptionCallbackRemove cancels user's subscription. If a notification
// cycle is in flight for this endpoint, it enqueues a private channel on
// exceptionNotifyWaiters and blocks until emitException closes it, then
// retries under lock: the call only returns once exceptionActive has gone
// back to false, so the caller can safely free user immediately afterward
// without risking a callback invocation from a cycle that started before
// the removal.
func (m *Manager) ExceptionCallbackRemove(user *AsynUser) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: exceptionCallbackRemove on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := user.exceptionSub
	if sub == nil {
		return failUser(user, status.User.New("asyn: user has no exception subscription"))
	}

	st := user.endpoint().state()
	for st.exceptionActive {
		wait := make(chan struct{})
		st.exceptionNotifyWaiters = append(st.exceptionNotifyWaiters, wait)
		p.mu.Unlock()
		<-wait
		p.mu.Lock()
	}

	st.exceptionUsers = removeSubscription(st.exceptionUsers, sub)
	st.exceptionWaiters = removeSubscription(st.exceptionWaiters, sub)
	user.exceptionSub = nil
	return nil
}

func removeSubscription(list []*exceptionSubscription, sub *exceptionSubscription) []*exceptionSubscription {
	for i, s := range list {
		if s == sub {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// emitException runs one notification cycle for ep's subscribers: it marks
// the endpoint's notification as active so any ExceptionCallbackAdd/Remove
// racing in from another goroutine parks instead of mutating the list mid
// iteration, invokes every currently-subscribed callback outside the port
// lock, then splices the parked waiters into the live list and clears the
// active flag. Callers must hold p.mu and it is held again on return. A
// reentrant call (a callback itself triggering another exception on the
// same endpoint) is a no-op; the outer call's final splice picks up
// whatever changed.
func emitException(p *Port, ep endpoint, kind ExceptionKind) {
	st := ep.state()
	if st.exceptionActive {
		return
	}
	st.exceptionActive = true
	subs := append([]*exceptionSubscription(nil), st.exceptionUsers...)

	p.mu.Unlock()
	for _, sub := range subs {
		sub.callback.OnException(sub.user, kind)
	}
	p.mu.Lock()

	st.exceptionUsers = append(st.exceptionUsers, st.exceptionWaiters...)
	st.exceptionWaiters = nil
	st.exceptionActive = false

	waiters := st.exceptionNotifyWaiters
	st.exceptionNotifyWaiters = nil
	for _, wait := range waiters {
		close(wait)
	}
}
