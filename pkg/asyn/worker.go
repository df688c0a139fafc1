package asyn

import "context"

// workerLoop is the port's dedicated scheduler goroutine: the central
// algorithm of the whole framework. It drains Connect-priority requests
// first on every wake, then gates on the port's connection state (trying
// auto-connect if appropriate), then services High/Medium/Low requests
// until the queue becomes "stuck" (nothing runnable, or a concurrent state
// change marked the scheduler dirty and forced a restart).
func (p *Port) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		p.mu.Lock()
		if !p.endpoint.enabled {
			p.mu.Unlock()
			continue
		}

		// Phase 1: drain all Connect-priority entries first, regardless of
		// connectivity.
		for len(p.connectQueue) > 0 {
			e := p.connectQueue[0]
			p.connectQueue = p.connectQueue[1:]
			e.isQueued = false
			disarmTimerLocked(e)
			p.mu.Unlock()
			e.handler.OnQueue(e)
			p.mu.Lock()
		}

		// Phase 2: gate on port connection.
		if !p.endpoint.connected && p.endpoint.autoConnect {
			p.mu.Unlock()
			p.autoConnect(ctx, -1)
			p.mu.Lock()
		}
		if !p.endpoint.connected {
			p.mu.Unlock()
			continue
		}

		p.serviceUserPriorities(ctx)
		p.mu.Unlock()
	}
}

// serviceUserPriorities runs phase 3 of the worker loop. Callers must hold
// p.mu on entry and it is held again on return.
func (p *Port) serviceUserPriorities(ctx context.Context) {
	for {
		p.dirty = false

		selected, restart := p.selectNextLocked(ctx)
		if restart {
			continue
		}
		if selected == nil {
			return
		}

		ep := selected.endpoint()
		st := ep.state()
		if selected.lockCount > 0 {
			st.lockHolder = selected
		}
		disarmTimerLocked(selected)

		p.mu.Unlock()
		selected.handler.OnQueue(selected)
		p.mu.Lock()

		if p.dirty {
			continue
		}
	}
}

// selectNextLocked scans High, Medium, then Low for the first runnable
// entry: its endpoint must be enabled and connected (triggering an
// auto-connect attempt first if appropriate), and its endpoint's lock
// holder must be nil or the entry's own user. Callers must hold p.mu.
//
// It returns (nil, false) when nothing is runnable and the queues are
// quiescent, or (nil, true) to signal the caller to restart scheduling
// because a concurrent state change (an auto-connect attempt that touched
// p.dirty) invalidated the scan in progress.
func (p *Port) selectNextLocked(ctx context.Context) (selected *AsynUser, restart bool) {
	for _, pr := range userPriorities {
		list := p.queues[pr]
		for _, e := range list {
			ep := e.endpoint()
			st := ep.state()
			if !st.enabled {
				continue
			}
			if !st.connected && st.autoConnect {
				if e.addr >= 0 {
					p.mu.Unlock()
					p.autoConnect(ctx, e.addr)
					p.mu.Lock()
					if p.dirty {
						return nil, true
					}
				}
			}
			if !st.connected {
				continue
			}
			if st.lockHolder == nil || st.lockHolder == e {
				p.queues[pr] = removeUser(p.queues[pr], e)
				e.isQueued = false
				return e, false
			}
		}
	}
	return nil, false
}
