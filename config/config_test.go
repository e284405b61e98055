package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"midiseq/midi"
)

const yamlConfig = `
devices:
  - unit: 0
    driver: port
    path: "Keystation 49"
    mode: in
  - unit: 1
    driver: serial
    path: /dev/ttyUSB0
    mode: out
    baud: 31250
output: 1
tempo: 100
ctls:
  - name: breath
    num: 2
    frame: true
logLevel: debug
`

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Devices) != 2 || cfg.Devices[1].Driver != DriverSerial || cfg.Devices[1].Baud != 31250 {
		t.Fatalf("devices %+v", cfg.Devices)
	}
	// unset fields keep their defaults
	if cfg.Tempo != 100 || cfg.TPB != 24 || cfg.Throttle != 20 || cfg.Output != 1 {
		t.Fatalf("config %+v", cfg)
	}
	ctls, err := cfg.CtlTable()
	if err != nil {
		t.Fatal(err)
	}
	if !ctls.IsFrame(2) || !ctls.IsFrame(7) {
		t.Fatal("controller table misses breath or volume")
	}
	if d := cfg.FindDevice(0); d == nil || d.Path != "Keystation 49" {
		t.Fatalf("find %+v", d)
	}
}

func TestSaveJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddDevice(DeviceConfig{Unit: 2, Driver: DriverVirtual, Mode: "inout"})
	cfg.AddDevice(DeviceConfig{Unit: 2, Driver: DriverRaw, Path: "/dev/midi2"})
	cfg.Ctls = []midi.CtlInfo{{Name: "foot", Num: 4, Default: 0, Frame: true}}

	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if err := cfg.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Path() != path || len(got.Devices) != 1 || got.Devices[0].Path != "/dev/midi2" {
		t.Fatalf("reloaded %+v", got)
	}
	if len(got.Ctls) != 1 || got.Ctls[0].Name != "foot" {
		t.Fatalf("ctls %+v", got.Ctls)
	}
}

func TestSearchOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	old := SystemPath
	SystemPath = filepath.Join(home, "none.yaml")
	t.Cleanup(func() { SystemPath = old })

	cfg, err := Load("")
	if err != nil || cfg.Path() != "" || cfg.Tempo != 120 {
		t.Fatalf("defaults: %+v %v", cfg, err)
	}

	dir := filepath.Join(home, ".config", "midiseq")
	os.MkdirAll(dir, 0755)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"tempo": 90}`), 0644)
	os.WriteFile(filepath.Join(dir, "config.yml"), []byte("tempo: 80\n"), 0644)
	cfg, err = Load("")
	if err != nil || cfg.Tempo != 80 {
		t.Fatalf("yml first: %+v %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"duplicate unit", func(c *Config) {
			c.Devices = []DeviceConfig{{Unit: 1, Driver: DriverVirtual}, {Unit: 1, Driver: DriverVirtual}}
		}, "used twice"},
		{"no path", func(c *Config) { c.Devices = []DeviceConfig{{Unit: 0, Driver: DriverRaw}} }, "no path"},
		{"driver", func(c *Config) { c.Devices = []DeviceConfig{{Unit: 0, Driver: "alsa"}} }, "unknown driver"},
		{"mode", func(c *Config) { c.Devices = []DeviceConfig{{Unit: 0, Driver: DriverVirtual, Mode: "both"}} }, "mode"},
		{"tempo", func(c *Config) { c.Tempo = 300 }, "tempo"},
		{"ctl", func(c *Config) { c.Ctls = []midi.CtlInfo{{Name: "x", Num: 40, Fine: true}} }, "below 32"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want %q", err, tt.want)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Devices = []DeviceConfig{{Unit: 0, Driver: "alsa"}, {Unit: 0, Driver: DriverVirtual}}
	if err := cfg.Validate(); !errors.Is(err, ErrBadDevice) || strings.Count(err.Error(), "\n") != 1 {
		t.Fatalf("every problem reported: %v", err)
	}
}

func TestOpenDevices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Devices = []DeviceConfig{{Unit: 3, Driver: DriverVirtual, Path: "v"}}
	devs, err := cfg.OpenDevices()
	if err != nil || len(devs) != 1 || devs[0].Unit() != 3 {
		t.Fatalf("%v %v", devs, err)
	}
	devs[0].Close()

	cfg.Devices = append(cfg.Devices, DeviceConfig{Unit: 4, Driver: "alsa"})
	if _, err := cfg.OpenDevices(); !errors.Is(err, midi.ErrUnknownDevice) {
		t.Fatalf("got %v", err)
	}
}
