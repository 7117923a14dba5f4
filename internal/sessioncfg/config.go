// Package sessioncfg loads the caller-owned configuration a debug
// session needs before it connects: where the debug agent listens, how
// long to wait for a response, and (for the host-extended dialect) the
// protocol handshake info to echo back. This is the direct analogue of
// the teacher's project.yaml registration loader
// (internal/daemon/project.go), adapted from "which git repo and agent
// command" to "which debug agent and protocol identity".
package sessioncfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ianremillard/scriptdbg/internal/session"
)

// Config is the parsed contents of a session config YAML file.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// RequestTimeout as a Go duration string (e.g. "10s"); zero value
	// means the Connection default applies.
	RequestTimeout string `yaml:"request_timeout"`

	// Protocol carries the host-extended handshake echo info. Omit the
	// section entirely to run the base (non-host-extended) dialect.
	Protocol *ProtocolConfig `yaml:"protocol"`
}

// ProtocolConfig mirrors session.ProtocolInfo in YAML form.
type ProtocolConfig struct {
	Version          int    `yaml:"version"`
	TargetModuleUUID string `yaml:"target_module_uuid"`
	Passcode         string `yaml:"passcode"`
}

// DefaultPort is used when a config omits port.
const DefaultPort = 19144

// Load reads and parses a session config file. A missing host defaults to
// "127.0.0.1"; a missing or zero port defaults to DefaultPort.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sessioncfg: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sessioncfg: parse %s: %w", path, err)
	}

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	return &cfg, nil
}

// Addr returns the "host:port" dial target.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout parses RequestTimeout, returning (0, nil) when unset so callers
// can fall back to the Connection default.
func (c *Config) Timeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("sessioncfg: invalid request_timeout %q: %w", c.RequestTimeout, err)
	}
	return d, nil
}

// ProtocolInfo converts the YAML protocol section to session.ProtocolInfo,
// or returns nil if the config has none.
func (c *Config) ProtocolInfo() *session.ProtocolInfo {
	if c.Protocol == nil {
		return nil
	}
	return &session.ProtocolInfo{
		Version:          c.Protocol.Version,
		TargetModuleUUID: c.Protocol.TargetModuleUUID,
		Passcode:         c.Protocol.Passcode,
	}
}

// LoadBreakpoints reads a breakpoint set from a YAML file keyed by source
// path, the format the out-of-scope REPL front end would persist and
// push via Session.SetBreakpoints on every mutation (spec.md §3: "The
// full set is owned by the caller").
func LoadBreakpoints(path string) (map[string][]session.Breakpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sessioncfg: read %s: %w", path, err)
	}
	var out map[string][]session.Breakpoint
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("sessioncfg: parse %s: %w", path, err)
	}
	return out, nil
}
