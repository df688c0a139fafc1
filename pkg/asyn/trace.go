package asyn

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/datawire/goasyn/pkg/asyn/status"
)

// TraceMask selects which categories of diagnostic line TracePrint emits.
type TraceMask uint32

const (
	TraceError TraceMask = 1 << iota
	TraceIODevice
	TraceIOFilter
	TraceIODriver
	TraceFlow
)

func (m TraceMask) String() string {
	var parts []string
	if m&TraceError != 0 {
		parts = append(parts, "Error")
	}
	if m&TraceIODevice != 0 {
		parts = append(parts, "IODevice")
	}
	if m&TraceIOFilter != 0 {
		parts = append(parts, "IOFilter")
	}
	if m&TraceIODriver != 0 {
		parts = append(parts, "IODriver")
	}
	if m&TraceFlow != 0 {
		parts = append(parts, "Flow")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// TraceIOMask selects how TracePrintIO renders the buffer that accompanies
// a trace line.
type TraceIOMask uint32

const (
	TraceIOASCII TraceIOMask = 1 << iota
	TraceIOEscape
	TraceIOHex
)

// defaultTruncateSize is the number of I/O bytes TracePrintIO renders
// before truncating, for endpoints that have not set their own limit.
const defaultTruncateSize = 80

// traceRecord is one endpoint's trace configuration: which reason
// categories are enabled, how I/O buffers render, the truncation limit, and
// the sink lines are written to. The zero value traces nothing and writes
// to stdout once something is enabled.
type traceRecord struct {
	mask         TraceMask
	ioMask       TraceIOMask
	truncateSize int
	sink         io.Writer
}

func (r *traceRecord) writer() io.Writer {
	if r.sink != nil {
		return r.sink
	}
	return os.Stdout
}

func (r *traceRecord) limit() int {
	if r.truncateSize > 0 {
		return r.truncateSize
	}
	return defaultTruncateSize
}

// traceRecordFor returns the traceRecord governing user's endpoint. Callers
// must hold user.port.mu.
func traceRecordFor(user *AsynUser) *traceRecord {
	return &user.endpoint().state().trace
}

// SetTraceMask sets which reason categories are traced for user's endpoint.
// If user is nil, it instead sets the default new ports are registered
// with.
func (m *Manager) SetTraceMask(user *AsynUser, mask TraceMask) error {
	if user == nil {
		m.traceMu.Lock()
		m.traceDefault.mask = mask
		m.traceMu.Unlock()
		return nil
	}
	if user.port == nil {
		return failUser(user, status.User.New("asyn: setTraceMask on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	traceRecordFor(user).mask = mask
	return nil
}

// GetTraceMask returns the reason mask currently governing user, or the
// process-wide default if user is nil.
func (m *Manager) GetTraceMask(user *AsynUser) (TraceMask, error) {
	if user == nil {
		m.traceMu.Lock()
		defer m.traceMu.Unlock()
		return m.traceDefault.mask, nil
	}
	if user.port == nil {
		return 0, failUser(user, status.User.New("asyn: getTraceMask on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	return traceRecordFor(user).mask, nil
}

// GetTraceIOMask returns the I/O rendering mask currently governing user, or
// the process-wide default if user is nil.
func (m *Manager) GetTraceIOMask(user *AsynUser) (TraceIOMask, error) {
	if user == nil {
		m.traceMu.Lock()
		defer m.traceMu.Unlock()
		return m.traceDefault.ioMask, nil
	}
	if user.port == nil {
		return 0, failUser(user, status.User.New("asyn: getTraceIOMask on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	return traceRecordFor(user).ioMask, nil
}

// SetTraceIOMask sets how TracePrintIO renders buffers for user's endpoint.
func (m *Manager) SetTraceIOMask(user *AsynUser, mask TraceIOMask) error {
	if user == nil {
		m.traceMu.Lock()
		m.traceDefault.ioMask = mask
		m.traceMu.Unlock()
		return nil
	}
	if user.port == nil {
		return failUser(user, status.User.New("asyn: setTraceIOMask on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	traceRecordFor(user).ioMask = mask
	return nil
}

// SetTraceTruncateSize sets the number of I/O bytes rendered before
// truncation for user's endpoint.
func (m *Manager) SetTraceTruncateSize(user *AsynUser, size int) error {
	if user == nil {
		m.traceMu.Lock()
		m.traceDefault.truncateSize = size
		m.traceMu.Unlock()
		return nil
	}
	if user.port == nil {
		return failUser(user, status.User.New("asyn: setTraceTruncateSize on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	traceRecordFor(user).truncateSize = size
	return nil
}

// GetTraceTruncateSize returns the I/O truncation limit currently governing
// user, or the process-wide default if user is nil.
func (m *Manager) GetTraceTruncateSize(user *AsynUser) (int, error) {
	if user == nil {
		m.traceMu.Lock()
		defer m.traceMu.Unlock()
		return m.traceDefault.limit(), nil
	}
	if user.port == nil {
		return 0, failUser(user, status.User.New("asyn: getTraceTruncateSize on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	return traceRecordFor(user).limit(), nil
}

// SetTraceFile redirects user's endpoint trace output to w; a nil w resets
// it to stdout.
func (m *Manager) SetTraceFile(user *AsynUser, w io.Writer) error {
	if user == nil {
		m.traceMu.Lock()
		m.traceDefault.sink = w
		m.traceMu.Unlock()
		return nil
	}
	if user.port == nil {
		return failUser(user, status.User.New("asyn: setTraceFile on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	traceRecordFor(user).sink = w
	return nil
}

// GetTraceFile returns the io.Writer user's endpoint currently traces to
// (stdout if none was set), or the process-wide default sink if user is nil.
func (m *Manager) GetTraceFile(user *AsynUser) (io.Writer, error) {
	if user == nil {
		m.traceMu.Lock()
		defer m.traceMu.Unlock()
		return m.traceDefault.writer(), nil
	}
	if user.port == nil {
		return nil, failUser(user, status.User.New("asyn: getTraceFile on an unconnected user"))
	}
	user.port.mu.Lock()
	defer user.port.mu.Unlock()
	return traceRecordFor(user).writer(), nil
}

// TraceLock acquires the process-wide trace mutex that serializes every
// line TracePrint/TracePrintIO write. Callers that need to interleave their
// own raw output with traced lines take this lock first, write, then call
// TraceUnlock, the same serialization TracePrint itself uses internally.
func (m *Manager) TraceLock() {
	m.traceMu.Lock()
}

// TraceUnlock releases the lock acquired by TraceLock.
func (m *Manager) TraceUnlock() {
	m.traceMu.Unlock()
}

// TracePrint emits a formatted line if any bit of reason is enabled for
// user's endpoint. Lines are serialized process-wide through Manager.traceMu
// so concurrent ports never interleave partial lines.
func (m *Manager) TracePrint(user *AsynUser, reason TraceMask, format string, args ...interface{}) {
	if user == nil || user.port == nil {
		return
	}
	user.port.mu.Lock()
	rec := traceRecordFor(user)
	enabled := rec.mask&reason != 0
	w := rec.writer()
	name := user.endpointName()
	user.port.mu.Unlock()
	if !enabled {
		return
	}

	m.traceMu.Lock()
	fmt.Fprintf(w, "%s %-8s %s: %s\n", time.Now().Format(time.RFC3339Nano), reason, name, fmt.Sprintf(format, args...))
	m.traceMu.Unlock()
	user.port.metrics.TraceLine(user.port.portName)
}

// TracePrintIO is TracePrint plus a rendering of buf according to the
// endpoint's TraceIOMask, truncated to its configured limit.
func (m *Manager) TracePrintIO(user *AsynUser, reason TraceMask, buf []byte, format string, args ...interface{}) {
	if user == nil || user.port == nil {
		return
	}
	user.port.mu.Lock()
	rec := traceRecordFor(user)
	enabled := rec.mask&reason != 0
	ioMask := rec.ioMask
	limit := rec.limit()
	w := rec.writer()
	name := user.endpointName()
	user.port.mu.Unlock()
	if !enabled {
		return
	}

	shown := buf
	truncated := false
	if len(shown) > limit {
		shown = shown[:limit]
		truncated = true
	}

	m.traceMu.Lock()
	fmt.Fprintf(w, "%s %-8s %s: %s\n", time.Now().Format(time.RFC3339Nano), reason, name, fmt.Sprintf(format, args...))
	fmt.Fprintln(w, renderIO(shown, ioMask))
	if truncated {
		fmt.Fprintf(w, "... %d more bytes truncated\n", len(buf)-limit)
	}
	m.traceMu.Unlock()
	user.port.metrics.TraceLine(user.port.portName)
}

// hexLineWidth is the number of source bytes rendered per row by renderIO's
// hex mode.
const hexLineWidth = 20

func renderIO(buf []byte, mask TraceIOMask) string {
	switch {
	case mask&TraceIOHex != 0:
		return hexDump(buf)
	case mask&TraceIOEscape != 0:
		return strconv.Quote(string(buf))
	default:
		return asciiVisible(buf)
	}
}

// hexDump renders buf as hex, wrapped at hexLineWidth bytes per line.
func hexDump(buf []byte) string {
	var b strings.Builder
	for i := 0; i < len(buf); i += hexLineWidth {
		end := i + hexLineWidth
		if end > len(buf) {
			end = len(buf)
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(hex.EncodeToString(buf[i:end]))
	}
	return b.String()
}

func asciiVisible(buf []byte) string {
	var b strings.Builder
	for _, c := range buf {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
