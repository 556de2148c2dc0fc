package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName       = "config.yaml"
	ModelBackendFileName = "model_backend.yaml"
)

// Timing modes for Device.Timing
const (
	// TimingAuto uses device timestamps when the device supports them.
	TimingAuto = "auto"
	// TimingHost always times on the host clock.
	TimingHost = "host"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Device struct {
		Backend          string   `yaml:"backend"`
		PowerPreference  string   `yaml:"powerPreference"`
		DisabledFeatures []string `yaml:"disabledFeatures"`
		Timing           string   `yaml:"timing"`

		// Workers bounds the software device's parallel workgroups; zero means one per CPU.
		Workers int `yaml:"workers"`
	} `yaml:"device"`
	Bench struct {
		Trials    int     `yaml:"trials"`
		Seed      uint64  `yaml:"seed"`
		Epsilon   float32 `yaml:"epsilon"`
		SpotCheck bool    `yaml:"spotCheck"`
	} `yaml:"bench"`
	Server struct {
		ListenAddress   string        `yaml:"listenAddress"`
		ListenPort      int           `yaml:"listenPort"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	ModelBackendPath string `yaml:"modelBackendPath"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills every unset field. A relative ModelBackendPath is kept as is.
func (c *Config) ApplyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = "info"
	}
	if c.Device.Backend == "" {
		c.Device.Backend = "software"
	}
	if c.Device.PowerPreference == "" {
		c.Device.PowerPreference = "high-performance"
	}
	if c.Device.Timing == "" {
		c.Device.Timing = TimingAuto
	}
	if c.Bench.Trials == 0 {
		c.Bench.Trials = 10
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = "127.0.0.1"
	}
	if c.Server.ListenPort == 0 {
		c.Server.ListenPort = 8090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.ModelBackendPath == "" {
		c.ModelBackendPath = ModelBackendFileName
	}
}

// Validate rejects values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Device.Timing {
	case TimingAuto, TimingHost:
	default:
		return fmt.Errorf("invalid device.timing %q: want %q or %q", c.Device.Timing, TimingAuto, TimingHost)
	}
	switch c.Device.PowerPreference {
	case "high-performance", "low-power", "default":
	default:
		return fmt.Errorf("invalid device.powerPreference %q", c.Device.PowerPreference)
	}
	if c.Bench.Trials < 1 {
		return fmt.Errorf("bench.trials must be at least 1, got %d", c.Bench.Trials)
	}
	if c.Bench.Epsilon < 0 {
		return fmt.Errorf("bench.epsilon must not be negative")
	}
	if c.Device.Workers < 0 {
		return fmt.Errorf("device.workers must not be negative")
	}
	return nil
}

// PreferDeviceTimestamps reports whether device timestamps should be used when offered.
func (c *Config) PreferDeviceTimestamps() bool {
	return c.Device.Timing != TimingHost
}

// ListenAddr is the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddress, c.Server.ListenPort)
}

// ResolveModelBackendPath returns ModelBackendPath, joined onto home when relative.
func (c *Config) ResolveModelBackendPath(home string) string {
	if filepath.IsAbs(c.ModelBackendPath) || home == "" {
		return c.ModelBackendPath
	}
	return filepath.Join(home, c.ModelBackendPath)
}

// GetDefaultConfigHome is ~/.gpubench, or the working directory when the home
// directory cannot be determined.
func GetDefaultConfigHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".gpubench")
}

// ConfigPath is the config file inside a home directory.
func ConfigPath(home string) string {
	return filepath.Join(home, ConfigFileName)
}
