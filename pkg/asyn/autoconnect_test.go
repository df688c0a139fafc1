package asyn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoConnectDispatchesThroughRegisteredCommon(t *testing.T) {
	m, ctx := newTestManager(t)
	p, err := m.RegisterPort("P1", false, true, 0, 0)
	require.NoError(t, err)

	fc := &fakeCommon{mgr: m}
	require.NoError(t, m.RegisterInterface("P1", "asynCommon", fc, nil))

	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))

	p.autoConnect(ctx, -1)

	connected, err := m.IsConnected(user)
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, 1, fc.connectHits)
}

func TestAutoConnectWithoutRegisteredCommonIsNoop(t *testing.T) {
	m, ctx := newTestManager(t)
	p, err := m.RegisterPort("P1", false, true, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))

	p.autoConnect(ctx, -1) // nothing registered: must not panic

	connected, err := m.IsConnected(user)
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestFindCommonLockedPrefersInterposer(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)

	base := &fakeCommon{mgr: m}
	require.NoError(t, m.RegisterInterface("P1", "asynCommon", base, "base"))

	overlay := &fakeCommon{mgr: m}
	_, err = m.InterposeInterface("P1", -1, "asynCommon", overlay, "overlay")
	require.NoError(t, err)

	p.mu.Lock()
	common, driverPvt, ok := findCommonLocked(p, p)
	p.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "overlay", driverPvt)
	assert.Same(t, overlay, common)
}

func TestFindCommonLockedFalseWhenNothingRegistered(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)

	p.mu.Lock()
	_, _, ok := findCommonLocked(p, p)
	p.mu.Unlock()
	assert.False(t, ok)
}

func TestEnableAndSetAutoConnectEmitExceptions(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))

	rec := &exceptionRecorder{}
	require.NoError(t, m.ExceptionCallbackAdd(user, rec))

	require.NoError(t, m.Enable(user, false))
	enabled, err := m.IsEnabled(user)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, m.SetAutoConnect(user, true))
	ac, err := m.IsAutoConnect(user)
	require.NoError(t, err)
	assert.True(t, ac)

	assert.Equal(t, []ExceptionKind{ExceptionEnableKind, ExceptionAutoConnectKind}, rec.events)
}

func TestStateQueriesRequireConnectedUser(t *testing.T) {
	m, _ := newTestManager(t)
	user := m.CreateUser(newRecordingHandler(), nil)
	_, err := m.IsConnected(user)
	assert.Error(t, err)
	_, err = m.IsEnabled(user)
	assert.Error(t, err)
	_, err = m.IsAutoConnect(user)
	assert.Error(t, err)
	assert.Error(t, m.Enable(user, true))
	assert.Error(t, m.SetAutoConnect(user, true))
}
