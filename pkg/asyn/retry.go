package asyn

import (
	"context"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/dlib/dutil"

	"github.com/datawire/goasyn/pkg/asyn/status"
)

const defaultPollDelay = 100 * time.Millisecond
const defaultMaxPollDelay = 3 * time.Second

// WaitConnected blocks, polling user's endpoint connection state with an
// increasing delay, until it becomes connected or ctx is done. It is meant
// for synchronous callers (CLI tooling, tests) that need to block until a
// worker's auto-connect loop (or a driver's own out-of-band dispatch) has
// brought an endpoint up; the scheduler itself never blocks this way.
//
// durations takes 0 to 3 values, in order: the initial poll delay, the
// maximum delay the backoff grows to, and an overall timeout after which
// WaitConnected gives up even if ctx is not done.
func (m *Manager) WaitConnected(ctx context.Context, user *AsynUser, durations ...time.Duration) (err error) {
	delay := defaultPollDelay
	maxDelay := defaultMaxPollDelay
	maxTime := time.Duration(0)

	switch len(durations) {
	case 3:
		maxTime = durations[2]
		fallthrough
	case 2:
		if durations[1] > 0 {
			maxDelay = durations[1]
		}
		fallthrough
	case 1:
		if durations[0] > 0 {
			delay = durations[0]
		}
	}
	if maxDelay < delay {
		maxDelay = delay
	}

	if maxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxTime)
		defer cancel()
	}

	if user.port == nil {
		return failUser(user, status.User.New("asyn: waitConnected on an unconnected user"))
	}
	user.port.mu.Lock()
	name := user.endpointName()
	user.port.mu.Unlock()

	defer func() {
		if pe := dutil.PanicToError(recover()); pe != nil {
			err = pe
		}
	}()

	for {
		connected, err := m.IsConnected(user)
		if err != nil {
			return err
		}
		if connected {
			return nil
		}

		dlog.Debugf(ctx, "waiting %s for %q to connect", delay, name)
		select {
		case <-ctx.Done():
			return failUser(user, status.Transient.Newf("asyn: timed out waiting for %q to connect", name))
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
