// Package config loads the flight software TOML configuration shared by the
// radio service and the health app.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dora-sat/flight/internal/comms"
	"github.com/dora-sat/flight/internal/health"
	"github.com/dora-sat/flight/internal/serialmux"
)

// DefaultConfigPath is where the services look for their configuration.
const DefaultConfigPath = "/etc/flight/flight.toml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root of the configuration file.
type Config struct {
	Radio  RadioConfig  `toml:"radio"`
	Comms  comms.Config `toml:"comms"`
	API    APIConfig    `toml:"api"`
	DB     DBConfig     `toml:"db"`
	Health HealthConfig `toml:"health"`
}

// RadioConfig describes the radio UART.
type RadioConfig struct {
	Device string `toml:"device"`
	serialmux.PortOptions
	// MaxRead and BackoffMS tune the message framer.
	MaxRead   int  `toml:"max_read"`
	BackoffMS int  `toml:"backoff_ms"`
	Disabled  bool `toml:"disabled"`
}

// APIConfig configures the query surface.
type APIConfig struct {
	Listen     string `toml:"listen"`
	GRPCListen string `toml:"grpc_listen"`
	// AllowedDirs bounds the files reachable through the file transfer
	// endpoints and command output redirection.
	AllowedDirs []string `toml:"allowed_dirs"`
}

// DBConfig configures the telemetry database.
type DBConfig struct {
	Path        string `toml:"path"`
	LogMessages bool   `toml:"log_messages"`
	// MessageRetention drops logged radio messages older than this. Zero
	// keeps them forever.
	MessageRetention time.Duration `toml:"message_retention"`
}

// HealthConfig configures the health beacon.
type HealthConfig struct {
	// RadioAddr receives beacon datagrams; normally a comms downlink port.
	RadioAddr    string             `toml:"radio_addr"`
	TelemetryURL string             `toml:"telemetry_url"`
	Interval     time.Duration      `toml:"interval"`
	Disks        health.DiskTargets `toml:"disks"`
}

// Default returns the configuration used for any key the file omits.
func Default() *Config {
	return &Config{
		Radio: RadioConfig{
			Device:      "/dev/ttyS2",
			PortOptions: serialmux.DefaultPortOptions(),
			MaxRead:     serialmux.MaxRead,
			BackoffMS:   int(serialmux.DefaultBackoff / time.Millisecond),
		},
		Comms: comms.DefaultConfig(),
		API: APIConfig{
			Listen:      "127.0.0.1:8080",
			GRPCListen:  "127.0.0.1:8090",
			AllowedDirs: []string{"/home/system", "/tmp"},
		},
		DB: DBConfig{
			Path:        "/home/system/telemetry.db",
			LogMessages: true,
		},
		Health: HealthConfig{
			RadioAddr:    "127.0.0.1:8161",
			TelemetryURL: "http://127.0.0.1:8080/telemetry/insert",
			Disks:        health.DefaultDiskTargets(),
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(cleanPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown config keys in %s: %s", cleanPath, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if !c.Radio.Disabled && strings.TrimSpace(c.Radio.Device) == "" {
		return fmt.Errorf("radio.device is required unless radio.disabled is set")
	}
	if _, err := c.Radio.PortOptions.Normalize(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	if c.Radio.MaxRead <= 0 {
		return fmt.Errorf("radio.max_read must be positive, got %d", c.Radio.MaxRead)
	}
	if c.Radio.BackoffMS <= 0 {
		return fmt.Errorf("radio.backoff_ms must be positive, got %d", c.Radio.BackoffMS)
	}
	if err := c.Comms.Validate(); err != nil {
		return fmt.Errorf("comms: %w", err)
	}
	if c.Comms.DownlinkHost != "" && net.ParseIP(c.Comms.DownlinkHost) == nil {
		return fmt.Errorf("comms.downlink_host %q is not an IP address", c.Comms.DownlinkHost)
	}
	for name, addr := range map[string]string{
		"api.listen":        c.API.Listen,
		"api.grpc_listen":   c.API.GRPCListen,
		"health.radio_addr": c.Health.RadioAddr,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, addr, err)
		}
	}
	for _, dir := range c.API.AllowedDirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("api.allowed_dirs entry %q must be absolute", dir)
		}
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.DB.MessageRetention < 0 {
		return fmt.Errorf("db.message_retention must not be negative")
	}
	if c.Health.Interval < 0 {
		return fmt.Errorf("health.interval must not be negative")
	}
	return nil
}

// Backoff returns the framer idle backoff as a duration.
func (r RadioConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMS) * time.Millisecond
}
