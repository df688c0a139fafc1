package asyn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetErrorEmptyUntilAFailure(t *testing.T) {
	m, _ := newTestManager(t)
	user := m.CreateUser(newRecordingHandler(), nil)
	assert.Empty(t, user.GetError())

	err := m.DisconnectUser(user)
	require.Error(t, err)
	assert.Equal(t, err.Error(), user.GetError())
	assert.NotEmpty(t, user.GetError())
}

func TestGetErrorReflectsLastFailureOnly(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)

	firstErr := m.Lock(user)
	require.Error(t, firstErr)
	assert.Equal(t, firstErr.Error(), user.GetError())

	require.NoError(t, m.ConnectUser(user, "P1", -1))
	secondErr := m.Unlock(user)
	require.Error(t, secondErr)
	assert.Equal(t, secondErr.Error(), user.GetError())
	assert.NotEqual(t, firstErr.Error(), secondErr.Error())
}

func TestSetErrorTruncatesToBufferCap(t *testing.T) {
	u := &AsynUser{}
	u.setError(strings.Repeat("x", errBufCap+50))
	assert.Len(t, u.GetError(), errBufCap)
}

func TestLockRejectsQueuedUser(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	p.mu.Lock()
	p.endpoint.enabled = false
	p.mu.Unlock()

	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))
	require.NoError(t, m.QueueRequest(user, Low, 0))

	err = m.Lock(user)
	require.Error(t, err)
	assert.Equal(t, err.Error(), user.GetError())
}

func TestUnlockRejectsQueuedUser(t *testing.T) {
	m, _ := newTestManager(t)
	p, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))
	require.NoError(t, m.Lock(user))

	p.mu.Lock()
	p.endpoint.enabled = false
	p.mu.Unlock()
	require.NoError(t, m.QueueRequest(user, Low, 0))

	err = m.Unlock(user)
	require.Error(t, err)
	assert.Equal(t, err.Error(), user.GetError())
}
