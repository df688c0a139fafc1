package asyn

import (
	"time"

	"github.com/datawire/goasyn/pkg/asyn/status"
)

// queueListLocked returns the FIFO backing priority on p. Callers must hold
// p.mu.
func (p *Port) queueListLocked(priority Priority) *[]*AsynUser {
	if priority == Connect {
		return &p.connectQueue
	}
	return &p.queues[priority]
}

// QueueRequest submits user's callback to be run by its port's worker at
// priority, returning an error if user is not connected or is already
// queued. If timeout is positive, the request is automatically cancelled
// and the user's TimeoutHandler invoked if it has not been selected to run
// within that duration.
//
// If user currently holds the addressed endpoint's lock, the request is
// inserted at the head of priority's list instead of the tail: the "fast
// path for lock holder" that lets a holder interleave follow-up requests
// ahead of competing entries at the same priority.
func (m *Manager) QueueRequest(user *AsynUser, priority Priority, timeout time.Duration) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: queueRequest on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()

	if user.isQueued {
		p.mu.Unlock()
		return failUser(user, status.User.New("asyn: user is already queued"))
	}

	ep := user.endpoint()
	st := ep.state()

	list := p.queueListLocked(priority)
	if st.lockHolder == user {
		*list = append([]*AsynUser{user}, *list...)
	} else {
		*list = append(*list, user)
	}
	user.isQueued = true
	user.priority = priority

	if timeout > 0 {
		user.timer = time.AfterFunc(timeout, func() { m.fireTimeout(user) })
	}

	p.markDirtyLocked()
	p.metrics.QueueDepth(p.portName, priority, len(*list))
	p.mu.Unlock()

	p.wakeWorker()
	return nil
}

// CancelResult reports the outcome of CancelRequest.
type CancelResult int

const (
	NotQueued CancelResult = iota
	Cancelled
)

func (r CancelResult) String() string {
	if r == Cancelled {
		return "Cancelled"
	}
	return "NotQueued"
}

// CancelRequest removes user from whichever priority list currently holds
// it, if any. It is safe to call from the user's own goroutine or from the
// timeout timer's goroutine.
func (m *Manager) CancelRequest(user *AsynUser) (CancelResult, error) {
	if user.port == nil {
		// Reports an error rather than silently succeeding, unlike the
		// source routine it's modeled on, which dereferences the port
		// before checking it for nil.
		return NotQueued, failUser(user, status.User.New("asyn: cancelRequest on a user with no port"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()

	if !user.isQueued {
		return NotQueued, nil
	}

	list := p.queueListLocked(user.priority)
	*list = removeUser(*list, user)
	user.isQueued = false
	disarmTimerLocked(user)

	p.markDirtyLocked()
	p.wakeWorker()
	return Cancelled, nil
}

// fireTimeout is the timer-goroutine entry point: it cancels the request
// and, only if the entry was actually still queued (i.e. it hadn't already
// been selected to run, or cancelled, between arming and firing), invokes
// the user's TimeoutHandler.
func (m *Manager) fireTimeout(user *AsynUser) {
	result, err := m.CancelRequest(user)
	if err != nil || result != Cancelled {
		return
	}
	if user.port != nil {
		user.port.metrics.TimeoutFired(user.port.portName)
	}
	if user.timeoutHandler != nil {
		user.timeoutHandler.OnTimeout(user)
	}
}

// disarmTimerLocked stops and clears user's pending timer, if any. Callers
// must hold user.port.mu.
func disarmTimerLocked(user *AsynUser) {
	if user.timer != nil {
		user.timer.Stop()
		user.timer = nil
	}
}

func removeUser(list []*AsynUser, user *AsynUser) []*AsynUser {
	for i, u := range list {
		if u == user {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
