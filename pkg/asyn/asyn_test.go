package asyn

import (
	"context"
	"testing"
)

// recordingHandler is a RequestHandler that forwards every selected user to
// a channel, so tests can observe scheduling order without sleeping.
type recordingHandler struct {
	ch chan *AsynUser
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan *AsynUser, 16)}
}

func (h *recordingHandler) OnQueue(user *AsynUser) {
	h.ch <- user
}

// fakeCommon is a minimal AsynCommon that reports success back through the
// same Manager it was built with, the way a real transport driver would.
type fakeCommon struct {
	mgr           *Manager
	connectErr    error
	disconnectErr error
	connectHits   int
}

func (f *fakeCommon) Connect(_ any, user *AsynUser) error {
	f.connectHits++
	if f.connectErr != nil {
		return f.connectErr
	}
	return f.mgr.ExceptionConnect(user)
}

func (f *fakeCommon) Disconnect(_ any, user *AsynUser) error {
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	return f.mgr.ExceptionDisconnect(user)
}

func newTestManager(t *testing.T) (*Manager, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewManager(ctx, nil), ctx
}
