package asyn

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMaskGatesTracePrint(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))

	var buf bytes.Buffer
	require.NoError(t, m.SetTraceFile(user, &buf))
	require.NoError(t, m.SetTraceMask(user, TraceFlow))

	m.TracePrint(user, TraceError, "should not appear")
	assert.Empty(t, buf.String())

	m.TracePrint(user, TraceFlow, "hello %d", 42)
	assert.Contains(t, buf.String(), "hello 42")
}

func TestTracePrintIOTruncatesAndReportsCount(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))

	var buf bytes.Buffer
	require.NoError(t, m.SetTraceFile(user, &buf))
	require.NoError(t, m.SetTraceMask(user, TraceError))
	require.NoError(t, m.SetTraceTruncateSize(user, 4))

	m.TracePrintIO(user, TraceError, []byte("ABCDEFGH"), "io")
	assert.Contains(t, buf.String(), "ABCD")
	assert.Contains(t, buf.String(), "4 more bytes truncated")
}

func TestSetTraceMaskNilUserSetsProcessDefault(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.SetTraceMask(nil, TraceIODriver))
	mask, err := m.GetTraceMask(nil)
	require.NoError(t, err)
	assert.Equal(t, TraceIODriver, mask)

	_, err = m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))
	got, err := m.GetTraceMask(user)
	require.NoError(t, err)
	assert.Equal(t, TraceIODriver, got)
}

func TestTraceMaskStringFormatting(t *testing.T) {
	assert.Equal(t, "None", TraceMask(0).String())
	assert.Equal(t, "Error", TraceError.String())
	assert.Equal(t, "Error|Flow", (TraceError | TraceFlow).String())
}

func TestRenderIOModes(t *testing.T) {
	assert.Equal(t, "4142", renderIO([]byte("AB"), TraceIOHex))
	assert.Equal(t, `"AB"`, renderIO([]byte("AB"), TraceIOEscape))
	assert.Equal(t, "A.", renderIO([]byte{0x41, 0x01}, 0))
}

func TestRenderIOHexWrapsAt20Bytes(t *testing.T) {
	buf := bytes.Repeat([]byte{0xAB}, 25)
	got := renderIO(buf, TraceIOHex)
	want := hex.EncodeToString(buf[:20]) + "\n" + hex.EncodeToString(buf[20:])
	assert.Equal(t, want, got)
}

func TestGetTraceIOMaskFileTruncateSizeRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RegisterPort("P1", false, false, 0, 0)
	require.NoError(t, err)
	user := m.CreateUser(newRecordingHandler(), nil)
	require.NoError(t, m.ConnectUser(user, "P1", -1))

	require.NoError(t, m.SetTraceIOMask(user, TraceIOHex))
	mask, err := m.GetTraceIOMask(user)
	require.NoError(t, err)
	assert.Equal(t, TraceIOHex, mask)

	var buf bytes.Buffer
	require.NoError(t, m.SetTraceFile(user, &buf))
	w, err := m.GetTraceFile(user)
	require.NoError(t, err)
	assert.Same(t, &buf, w)

	require.NoError(t, m.SetTraceTruncateSize(user, 7))
	size, err := m.GetTraceTruncateSize(user)
	require.NoError(t, err)
	assert.Equal(t, 7, size)
}

func TestTraceLockUnlockSerializesAccess(t *testing.T) {
	m, _ := newTestManager(t)
	m.TraceLock()
	m.TraceUnlock()
}

func TestTraceCallsRequireConnectedUser(t *testing.T) {
	m, _ := newTestManager(t)
	user := m.CreateUser(newRecordingHandler(), nil)
	assert.Error(t, m.SetTraceMask(user, TraceFlow))
	_, err := m.GetTraceMask(user)
	assert.Error(t, err)
}
