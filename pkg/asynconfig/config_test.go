package asynconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/goasyn/pkg/asyn"
)

func TestLoadDefaultsWithoutEnv(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Empty(t, cfg.Ports)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("ASYN_LOG_LEVEL", "debug")
	t.Setenv("ASYN_METRICS_ADDR", ":9999")
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
}

func TestLoadParsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ports.yaml")
	contents := "ports:\n  - name: P1\n    multiDevice: true\n    autoConnect: true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv("ASYN_CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Ports, 1)
	assert.Equal(t, "P1", cfg.Ports[0].Name)
	assert.True(t, cfg.Ports[0].MultiDevice)
	assert.True(t, cfg.Ports[0].AutoConnect)
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	t.Setenv("ASYN_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestTraceMaskParsing(t *testing.T) {
	cfg := &Config{Env: Env{DefaultTraceMask: "Flow|Error"}}
	assert.Equal(t, asyn.TraceFlow|asyn.TraceError, cfg.TraceMask())

	cfg = &Config{Env: Env{DefaultTraceMask: ""}}
	assert.Equal(t, asyn.TraceError, cfg.TraceMask())

	cfg = &Config{Env: Env{DefaultTraceMask: "Bogus"}}
	assert.Equal(t, asyn.TraceError, cfg.TraceMask())
}

func TestRegisterPortsRegistersEveryEntry(t *testing.T) {
	m := asyn.NewManager(context.Background(), nil)
	cfg := &Config{Ports: []PortSpec{
		{Name: "P1", MultiDevice: true, AutoConnect: true},
		{Name: "P2"},
	}}
	require.NoError(t, RegisterPorts(m, cfg))

	md, err := m.IsMultiDevice("P1")
	require.NoError(t, err)
	assert.True(t, md)
	md, err = m.IsMultiDevice("P2")
	require.NoError(t, err)
	assert.False(t, md)
}

func TestRegisterPortsStopsOnFirstError(t *testing.T) {
	m := asyn.NewManager(context.Background(), nil)
	cfg := &Config{Ports: []PortSpec{
		{Name: "P1"},
		{Name: "P1"}, // duplicate: RegisterPort must fail
	}}
	assert.Error(t, RegisterPorts(m, cfg))
}
