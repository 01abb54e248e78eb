// Package config loads the gprobe YAML configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/probe"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBadger = "badger"
)

// Config is the top-level configuration file.
type Config struct {
	Connection Connection `yaml:"connection"`

	// Addr is the HTTP listen address of `serve`.
	Addr string `yaml:"addr"`

	DataDir string `yaml:"data_dir"`

	// Store selects the calibration backend: memory, file or badger.
	Store string `yaml:"store"`

	Log Log `yaml:"log"`

	Timings probe.Timings `yaml:"timings"`
	Context probe.Context `yaml:"context"`
	Methods Methods       `yaml:"methods"`
}

// Connection describes how to reach the controller. With SPJS set, Port
// names the port on the server; otherwise it is a local serial device.
type Connection struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	SPJS string `yaml:"spjs"`

	// PollInterval is how often a status report is requested over serial.
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Methods holds the default parameters of each probing method.
type Methods struct {
	TouchPlate probe.TouchPlate `yaml:"touchplate"`
	BitSetter  probe.BitSetter  `yaml:"bitsetter"`
	BitZero    probe.BitZero    `yaml:"bitzero"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	return &Config{
		Connection: Connection{
			Port:         "/dev/ttyUSB0",
			Baud:         115200,
			PollInterval: 200 * time.Millisecond,
		},
		Addr:    ":9091",
		DataDir: "./data",
		Store:   StoreFile,
		Log:     Log{Level: "info"},
		Timings: probe.DefaultTimings(),
		Context: probe.DefaultContext(),
		Methods: Methods{
			TouchPlate: probe.TouchPlate{PlateThickness: 15, ProbeDistance: 25, ProbeFeedrate: 100},
			BitSetter: probe.BitSetter{
				Position:      coord.Point{X: -5, Y: -5, Z: -10},
				ProbeDistance: 50,
				ProbeFeedrate: 150,
			},
			BitZero: probe.BitZero{ProbeDistance: 15, ProbeFeedrate: 75, ProbeThickness: 12.7},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write config")
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GPROBE_PORT"); v != "" {
		c.Connection.Port = v
	}
	if v := os.Getenv("GPROBE_SPJS"); v != "" {
		c.Connection.SPJS = v
	}
	if v := os.Getenv("GPROBE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GPROBE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings no session could run with.
func (c *Config) Validate() error {
	if c.Connection.Port == "" {
		return errors.New("connection.port is required")
	}
	if c.Connection.Baud <= 0 {
		return errors.Errorf("connection.baud must be positive, got %d", c.Connection.Baud)
	}
	if c.Connection.PollInterval < 0 {
		return errors.New("connection.poll_interval must not be negative")
	}

	switch c.Store {
	case StoreMemory:
	case StoreFile, StoreBadger:
		if c.DataDir == "" {
			return errors.Errorf("data_dir is required for the %s store", c.Store)
		}
	default:
		return errors.Errorf("unknown store %q (valid: memory, file, badger)", c.Store)
	}

	t := c.Timings
	for name, d := range map[string]time.Duration{
		"probe_delay": t.ProbeDelay,
		"dwell_delay": t.DwellDelay,
		"line_delay":  t.LineDelay,
		"debounce":    t.Debounce,
		"fallback":    t.Fallback,
	} {
		if d <= 0 {
			return errors.Errorf("timings.%s must be positive, got %s", name, d)
		}
	}
	if t.Epsilon <= 0 {
		return errors.Errorf("timings.epsilon must be positive, got %g", t.Epsilon)
	}
	if t.BestEffortRatio <= 0 || t.BestEffortRatio > 1 {
		return errors.Errorf("timings.best_effort_ratio must be in (0,1], got %g", t.BestEffortRatio)
	}

	if _, err := c.Context.WCSIndex(); err != nil {
		return errors.Wrap(err, "context")
	}
	if c.Context.RetractDistance <= 0 {
		return errors.New("context.retract_distance must be positive")
	}

	for name, m := range map[string]probe.Method{
		"touchplate": c.Methods.TouchPlate,
		"bitsetter":  c.Methods.BitSetter,
		"bitzero":    c.Methods.BitZero,
	} {
		if _, err := probe.Build(m, c.Context); err != nil {
			return errors.Wrap(err, "methods."+name)
		}
	}
	return nil
}

// StorePath returns the file or directory of the configured store.
func (c *Config) StorePath() string {
	switch c.Store {
	case StoreFile:
		return filepath.Join(c.DataDir, "calibration.json")
	case StoreBadger:
		return filepath.Join(c.DataDir, "calibration")
	}
	return ""
}

// Method returns the configured defaults for the named method. Manual and
// custom carry no defaults.
func (c *Config) Method(name string) (probe.Method, error) {
	switch name {
	case "touchplate":
		return c.Methods.TouchPlate, nil
	case "bitsetter":
		return c.Methods.BitSetter, nil
	case "bitzero":
		return c.Methods.BitZero, nil
	case "manual":
		return probe.Manual{Axes: []probe.Axis{probe.AxisZ}}, nil
	case "custom":
		return probe.Custom{}, nil
	}
	return nil, errors.Errorf("unknown method %q", name)
}
