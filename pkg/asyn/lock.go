package asyn

import "github.com/datawire/goasyn/pkg/asyn/status"

// Lock increments user's lock nesting count. It does not by itself make
// user the endpoint's lock holder: the worker only assigns lockHolder when
// it actually selects a locked user's queued request to run (see
// workerLoop). Holding a lock without ever queuing a request simply reserves
// the right to jump the queue the next time this user does queue one.
func (m *Manager) Lock(user *AsynUser) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: lock on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	defer p.mu.Unlock()
	if user.isQueued {
		return failUser(user, status.User.New("asyn: cannot lock a queued user"))
	}
	user.lockCount++
	return nil
}

// Unlock decrements user's lock nesting count. When it reaches zero and
// user is the endpoint's current lock holder, the holder slot is cleared
// and the worker is woken so other priorities can proceed against the now
// unheld endpoint.
func (m *Manager) Unlock(user *AsynUser) error {
	if user.port == nil {
		return failUser(user, status.User.New("asyn: unlock on an unconnected user"))
	}
	p := user.port
	p.mu.Lock()
	if user.isQueued {
		p.mu.Unlock()
		return failUser(user, status.User.New("asyn: cannot unlock a queued user"))
	}
	if user.lockCount == 0 {
		p.mu.Unlock()
		return failUser(user, status.User.New("asyn: unlock called without a matching lock"))
	}
	user.lockCount--
	releasedHold := false
	if user.lockCount == 0 {
		st := user.endpoint().state()
		if st.lockHolder == user {
			st.lockHolder = nil
			p.markDirtyLocked()
			releasedHold = true
		}
	}
	p.mu.Unlock()

	if releasedHold {
		p.wakeWorker()
	}
	return nil
}

// LockPort is a convenience wrapper that locks and then immediately queues
// a High-priority request using user's already-registered RequestHandler,
// the common "acquire exclusive access, then do one thing" pattern.
func (m *Manager) LockPort(user *AsynUser) error {
	if err := m.Lock(user); err != nil {
		return err
	}
	return m.QueueRequest(user, High, 0)
}

// UnlockPort is the inverse of LockPort: it releases user's lock. It is
// provided for symmetry with the source API; callers may also call Unlock
// directly.
func (m *Manager) UnlockPort(user *AsynUser) error {
	return m.Unlock(user)
}
