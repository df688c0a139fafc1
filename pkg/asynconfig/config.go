// Package asynconfig loads the process-wide configuration for a host that
// embeds the manager: which ports to auto-register at startup and at what
// priority, plus the log level, metrics address and default trace mask. The
// auto-connect pacing interval is fixed in pkg/asyn and is not read from
// configuration. Configuration is assembled the way the reference
// codebase assembles its own process Env: environment variables parsed by
// github.com/sethvargo/go-envconfig, here supplemented with an optional YAML
// file for the structured, per-port settings environment variables don't
// represent well.
package asynconfig

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/datawire/goasyn/pkg/asyn"
)

// Env is the flat, environment-driven half of the configuration: process
// behavior that operators expect to override without editing a file.
type Env struct {
	LogLevel          string `env:"ASYN_LOG_LEVEL,default=info"`
	MetricsAddr       string `env:"ASYN_METRICS_ADDR,default=:9090"`
	ConfigFile        string `env:"ASYN_CONFIG_FILE,default="`
	DefaultTraceMask  string `env:"ASYN_DEFAULT_TRACE_MASK,default=Error"`
	ShutdownGrace     int    `env:"ASYN_SHUTDOWN_GRACE_SECONDS,default=5"`
}

// PortSpec describes one port to register at startup, the YAML-file half of
// the configuration: this shape doesn't map cleanly onto flat environment
// variables, so it's declared in a file named by Env.ConfigFile instead.
type PortSpec struct {
	Name          string `yaml:"name"`
	MultiDevice   bool   `yaml:"multiDevice"`
	AutoConnect   bool   `yaml:"autoConnect"`
	PriorityHint  int    `yaml:"priorityHint"`
	StackSizeHint int    `yaml:"stackSizeHint"`
}

// FileConfig is the parsed shape of Env.ConfigFile.
type FileConfig struct {
	Ports []PortSpec `yaml:"ports"`
}

// Config is the fully-loaded configuration: the environment settings plus
// whatever ports a config file named.
type Config struct {
	Env
	Ports []PortSpec
}

// Load reads Env from the process environment and, if Env.ConfigFile names
// a file, parses it as YAML into the Ports list.
func Load(ctx context.Context) (*Config, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, errors.Wrap(err, "asynconfig")
	}

	cfg := &Config{Env: env}
	if env.ConfigFile == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(env.ConfigFile)
	if err != nil {
		return nil, errors.Wrapf(err, "asynconfig: reading %s", env.ConfigFile)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrapf(err, "asynconfig: parsing %s", env.ConfigFile)
	}
	cfg.Ports = fc.Ports
	return cfg, nil
}

// TraceMask parses the Env.DefaultTraceMask string (a "|"-joined list of
// reason names) into an asyn.TraceMask, defaulting to asyn.TraceError if the
// string is empty or unrecognized.
func (c *Config) TraceMask() asyn.TraceMask {
	return parseTraceMask(c.DefaultTraceMask)
}

func parseTraceMask(s string) asyn.TraceMask {
	names := map[string]asyn.TraceMask{
		"Error":     asyn.TraceError,
		"IODevice":  asyn.TraceIODevice,
		"IOFilter":  asyn.TraceIOFilter,
		"IODriver":  asyn.TraceIODriver,
		"Flow":      asyn.TraceFlow,
	}
	var mask asyn.TraceMask
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '|' {
			if m, ok := names[s[start:i]]; ok {
				mask |= m
			}
			start = i + 1
		}
	}
	if mask == 0 {
		return asyn.TraceError
	}
	return mask
}

// RegisterPorts registers every port named in cfg.Ports with m, returning
// the first registration error encountered.
func RegisterPorts(m *asyn.Manager, cfg *Config) error {
	for _, ps := range cfg.Ports {
		if _, err := m.RegisterPort(ps.Name, ps.MultiDevice, ps.AutoConnect, ps.PriorityHint, ps.StackSizeHint); err != nil {
			return errors.Wrapf(err, "asynconfig: registering port %q", ps.Name)
		}
	}
	return nil
}
