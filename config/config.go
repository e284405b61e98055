package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"midiseq/midi"
)

// ErrBadDevice is returned by Validate for an unusable device entry
var ErrBadDevice = errors.New("bad device")

// Driver selects the backend of a device
type Driver string

const (
	DriverRaw     Driver = "raw"
	DriverPort    Driver = "port"
	DriverSerial  Driver = "serial"
	DriverVirtual Driver = "virtual"
)

// DeviceConfig defines one MIDI unit
type DeviceConfig struct {
	Unit   uint8  `json:"unit" yaml:"unit"`
	Driver Driver `json:"driver,omitempty" yaml:"driver,omitempty"`
	// Path is the device node for raw and serial, the port name for port
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"` // in, out or inout
	Baud int    `json:"baud,omitempty" yaml:"baud,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Devices  []DeviceConfig `json:"devices,omitempty" yaml:"devices,omitempty"`
	Output   uint8          `json:"output" yaml:"output"`
	Tempo    int            `json:"tempo,omitempty" yaml:"tempo,omitempty"`
	TPB      int            `json:"tpb,omitempty" yaml:"tpb,omitempty"`
	Throttle int            `json:"throttle,omitempty" yaml:"throttle,omitempty"`
	Ctls     []midi.CtlInfo `json:"ctls,omitempty" yaml:"ctls,omitempty"`
	LogLevel string         `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	Debug    bool           `json:"debug,omitempty" yaml:"debug,omitempty"`

	path string // where it was loaded from
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tempo:    120,
		TPB:      24,
		Throttle: 20,
		LogLevel: "info",
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midiseq"), nil
}

// SystemPath is looked up after the user files
var SystemPath = "/etc/midiseq/config.yaml"

// SearchPaths returns the files Load tries, in order
func SearchPaths() []string {
	var paths []string
	if dir, err := ConfigDir(); err == nil {
		for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return append(paths, SystemPath)
}

// Load reads the config at path. With an empty path the search paths are
// tried and defaults are returned when none exists.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	for _, p := range SearchPaths() {
		cfg, err := LoadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return DefaultConfig(), nil
}

// LoadFile reads one config file; the format follows the extension
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Path returns the file the config was loaded from, empty for defaults
func (c *Config) Path() string { return c.path }

// Validate reports every problem of the config
func (c *Config) Validate() error {
	var errs []error
	units := make(map[uint8]bool)
	for i, d := range c.Devices {
		if units[d.Unit] {
			errs = append(errs, fmt.Errorf("%w: device %d: unit %d used twice", ErrBadDevice, i, d.Unit))
		}
		units[d.Unit] = true
		switch d.Driver {
		case "", DriverRaw, DriverSerial, DriverPort:
			if d.Path == "" {
				errs = append(errs, fmt.Errorf("%w: device %d: no path", ErrBadDevice, i))
			}
		case DriverVirtual:
		default:
			errs = append(errs, fmt.Errorf("%w: device %d: unknown driver %q", ErrBadDevice, i, d.Driver))
		}
		if _, err := midi.ParseMode(d.Mode); err != nil {
			errs = append(errs, fmt.Errorf("%w: device %d: %v", ErrBadDevice, i, err))
		}
		if d.Baud < 0 {
			errs = append(errs, fmt.Errorf("%w: device %d: bad baud rate %d", ErrBadDevice, i, d.Baud))
		}
	}
	if c.Tempo < 40 || c.Tempo > 240 {
		errs = append(errs, fmt.Errorf("tempo %d not in 40..240", c.Tempo))
	}
	if c.TPB <= 0 {
		errs = append(errs, fmt.Errorf("bad ticks per beat %d", c.TPB))
	}
	if c.Throttle <= 0 {
		errs = append(errs, fmt.Errorf("bad throttle %d", c.Throttle))
	}
	if _, err := c.CtlTable(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("bad log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// CtlTable returns the default controller table with the configured
// controllers added
func (c *Config) CtlTable() (*midi.CtlTable, error) {
	t := midi.DefaultCtlTable()
	for _, ctl := range c.Ctls {
		if err := t.Set(ctl); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// OpenDevices opens every configured device. On failure the devices
// already open are closed.
func (c *Config) OpenDevices() ([]midi.Device, error) {
	var devs []midi.Device
	for _, d := range c.Devices {
		mode, err := midi.ParseMode(d.Mode)
		if err != nil {
			closeAll(devs)
			return nil, err
		}
		dev, err := midi.Open(d.Unit, string(d.Driver), d.Path, mode, d.Baud)
		if err != nil {
			closeAll(devs)
			return nil, fmt.Errorf("unit %d: %w", d.Unit, err)
		}
		devs = append(devs, dev)
	}
	return devs, nil
}

func closeAll(devs []midi.Device) {
	for _, d := range devs {
		d.Close()
	}
}

// Save writes the config as JSON to the file it was loaded from, or to
// config.json in ConfigDir
func (c *Config) Save() error {
	path := c.path
	if path == "" || strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.json")
	}
	return c.SaveAs(path)
}

// SaveAs writes the config as JSON to path
func (c *Config) SaveAs(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	c.path = path
	return nil
}

// FindDevice finds a device config by unit
func (c *Config) FindDevice(unit uint8) *DeviceConfig {
	for i := range c.Devices {
		if c.Devices[i].Unit == unit {
			return &c.Devices[i]
		}
	}
	return nil
}

// AddDevice adds or updates a device config
func (c *Config) AddDevice(d DeviceConfig) {
	for i := range c.Devices {
		if c.Devices[i].Unit == d.Unit {
			c.Devices[i] = d
			return
		}
	}
	c.Devices = append(c.Devices, d)
}
